package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/poiscan/internal/engine/provider"
	"github.com/rendis/poiscan/internal/model"
)

// fakeProvider scripts responses per call index (1-based). Safe for use from
// concurrent group traversals.
type fakeProvider struct {
	mu       sync.Mutex
	capacity int
	respond  func(req provider.SearchRequest, call int) ([]model.Place, error)
	calls    int
	requests []provider.SearchRequest
}

func (f *fakeProvider) SearchNearby(_ context.Context, req provider.SearchRequest) ([]model.Place, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req, call)
}

func (f *fakeProvider) Capacity() int { return f.capacity }

// fullPage returns exactly capacity places with identities unique to the
// call, i.e. a permanent truncation signal.
func fullPage(capacity, call int) []model.Place {
	places := make([]model.Place, capacity)
	for i := range places {
		places[i] = model.Place{ID: fmt.Sprintf("c%d-p%d", call, i)}
	}
	return places
}

func testOpts() Options {
	return Options{
		MinTileRadius: 1,
		MaxDepth:      30,
		OverlapFactor: 0.7,
		MaxCalls:      1000,
		Timeout:       time.Second,
	}
}

var testGroup = model.CategoryGroup{Label: "restaurant", Tags: []string{"restaurant"}}

func TestSchedulerBudgetExactness(t *testing.T) {
	// An inexhaustible queue must consume the budget exactly, never more.
	fake := &fakeProvider{capacity: 4, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		return fullPage(4, call), nil
	}}
	opts := testOpts()
	opts.MaxCalls = 10

	s := &Scheduler{Provider: fake, Opts: opts}
	budget := NewBudget(opts.MaxCalls)
	s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 10000}, testGroup, budget)

	assert.Equal(t, 10, fake.calls)
	assert.Equal(t, 10, budget.Made())
	assert.Greater(t, s.Stats.TilesDropped.Load(), int64(0))
}

func TestSchedulerDepthBound(t *testing.T) {
	// Always-truncating provider, depth capped at 2: exactly three levels
	// are queried (1 + 4 + 16) and no depth-2 tile is subdivided.
	fake := &fakeProvider{capacity: 2, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		return fullPage(2, call), nil
	}}
	opts := testOpts()
	opts.MaxDepth = 2

	s := &Scheduler{Provider: fake, Opts: opts}
	s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 8000}, testGroup, NewBudget(opts.MaxCalls))

	assert.Equal(t, 21, fake.calls)
	for _, req := range fake.requests {
		assert.GreaterOrEqual(t, req.RadiusM, 2000.0) // 8000 / 2^2
	}
}

func TestSchedulerRadiusFloor(t *testing.T) {
	// Children at the floor radius are queried but never subdivided.
	fake := &fakeProvider{capacity: 2, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		return fullPage(2, call), nil
	}}
	opts := testOpts()
	opts.MinTileRadius = 500

	s := &Scheduler{Provider: fake, Opts: opts}
	s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 1000}, testGroup, NewBudget(opts.MaxCalls))

	assert.Equal(t, 5, fake.calls)
}

func TestSchedulerNoSubdivisionBelowCapacity(t *testing.T) {
	// A partial page means the tile is exhaustively covered: one call only.
	fake := &fakeProvider{capacity: 20, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		return fullPage(19, call), nil
	}}

	s := &Scheduler{Provider: fake, Opts: testOpts()}
	reg := s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 10000}, testGroup, NewBudget(100))

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 19, reg.Len())
}

func TestSchedulerDedupFirstTileWins(t *testing.T) {
	// The same identity reported by overlapping tiles keeps the attributes
	// recorded by the first tile processed.
	fake := &fakeProvider{capacity: 2, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		if call == 1 {
			return []model.Place{
				{ID: "dup", Name: "from first tile", Rating: 4.8},
				{ID: "solo", Name: "only once"},
			}, nil
		}
		return []model.Place{{ID: "dup", Name: "from later tile", Rating: 1.1}}, nil
	}}

	s := &Scheduler{Provider: fake, Opts: testOpts()}
	reg := s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 10000}, testGroup, NewBudget(100))

	// First call is a full page, so four children are queried too.
	assert.Equal(t, 5, fake.calls)
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Get("dup")
	require.True(t, ok)
	assert.Equal(t, "from first tile", got.Name)
	assert.Equal(t, 4.8, got.Rating)
	assert.Equal(t, "restaurant", got.Group)
}

func TestSchedulerProviderFailureContinues(t *testing.T) {
	// A failing tile yields zero results and no children; the traversal
	// carries on with the remaining queue.
	fake := &fakeProvider{capacity: 2, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		switch call {
		case 1:
			return fullPage(2, call), nil
		case 2:
			return nil, &provider.AuthError{StatusCode: 403}
		default:
			return []model.Place{{ID: fmt.Sprintf("ok-%d", call)}}, nil
		}
	}}

	s := &Scheduler{Provider: fake, Opts: testOpts()}
	budget := NewBudget(100)
	reg := s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 10000}, testGroup, budget)

	assert.Equal(t, 5, fake.calls)
	assert.Equal(t, int64(1), s.Stats.FailedCalls.Load())
	// 2 from the root page + one from each surviving child.
	assert.Equal(t, 5, reg.Len())
	// The failed call still consumed budget.
	assert.Equal(t, 5, budget.Made())
}

func TestSchedulerBreadthFirstOrder(t *testing.T) {
	// The root's four children are all queried before any grandchild.
	fake := &fakeProvider{capacity: 2, respond: func(req provider.SearchRequest, call int) ([]model.Place, error) {
		return fullPage(2, call), nil
	}}
	opts := testOpts()
	opts.MaxCalls = 9

	s := &Scheduler{Provider: fake, Opts: opts}
	s.Run(context.Background(), model.Tile{Lat: 32, Lng: 34, RadiusM: 8000}, testGroup, NewBudget(opts.MaxCalls))

	require.Len(t, fake.requests, 9)
	assert.Equal(t, 8000.0, fake.requests[0].RadiusM)
	for _, req := range fake.requests[1:5] {
		assert.Equal(t, 4000.0, req.RadiusM)
	}
	for _, req := range fake.requests[5:] {
		assert.Equal(t, 2000.0, req.RadiusM)
	}
}

func TestSchedulerContextCancelStopsTraversal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeProvider{capacity: 2, respond: func(_ provider.SearchRequest, call int) ([]model.Place, error) {
		if call == 3 {
			cancel()
		}
		return fullPage(2, call), nil
	}}

	s := &Scheduler{Provider: fake, Opts: testOpts()}
	s.Run(ctx, model.Tile{Lat: 32, Lng: 34, RadiusM: 8000}, testGroup, NewBudget(1000))

	assert.Equal(t, 3, fake.calls)
}
