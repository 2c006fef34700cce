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

// syntheticProvider reports truncation for every tile of 2km radius or more
// and a partial page below that, with deterministic per-call identities and
// one "anchor" place repeated on every page to exercise dedup.
//
// Page layout for call c: slot 0 is the anchor (rating 4.5, 100 reviews);
// slot j >= 1 is a fresh identity with rating 5-(j%5) and 10*(j+1) reviews.
type syntheticProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *syntheticProvider) Capacity() int { return 20 }

func (p *syntheticProvider) SearchNearby(_ context.Context, req provider.SearchRequest) ([]model.Place, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()

	n := 5
	if req.RadiusM >= 2000 {
		n = 20
	}

	places := make([]model.Place, n)
	places[0] = model.Place{ID: "anchor", Name: "Anchor", Rating: 4.5, ReviewCount: 100}
	for j := 1; j < n; j++ {
		places[j] = model.Place{
			ID:          fmt.Sprintf("c%03d-p%02d", call, j),
			Name:        fmt.Sprintf("Place %d-%d", call, j),
			Lat:         req.Lat,
			Lng:         req.Lng,
			Rating:      5 - float64(j%5),
			ReviewCount: 10 * (j + 1),
		}
	}
	return places, nil
}

func TestAdaptiveSearchEndToEnd(t *testing.T) {
	// Radii descend 15000 -> 7500 -> 3750 -> 1875; truncation stops below
	// 2000m, so the traversal queries 1 + 4 + 16 + 64 = 85 tiles: 21 full
	// pages and 64 partial ones.
	//
	// Unique identities: 1 anchor + 21*19 + 64*4          = 656
	// Rating >= 4 keeps the anchor, 7 of each full page's 19 fresh places
	// (slots 1,5,6,10,11,15,16) and 1 of each partial page's 4 (slot 1):
	// 1 + 21*7 + 64*1                                     = 212
	p := &syntheticProvider{}
	eng := &Engine{
		Provider: p,
		Opts: Options{
			MinTileRadius: 500,
			MaxDepth:      5,
			OverlapFactor: 0.7,
			MaxCalls:      200,
			Timeout:       time.Second,
		},
	}

	res, err := eng.Search(context.Background(), 32.0853, 34.7818, 15000,
		[]model.CategoryGroup{{Label: "restaurant", Tags: []string{"restaurant"}}},
		Filters{MinRating: 4})
	require.NoError(t, err)

	assert.Equal(t, 85, res.Metrics.APICalls)
	assert.Equal(t, 0, res.Metrics.FailedCalls)
	assert.Equal(t, 656, res.Metrics.UniqueBeforeFilter)
	assert.Equal(t, 212, res.Metrics.UniqueAfterFilter)
	require.Len(t, res.Places, 212)

	// Rating descending, review count breaking ties.
	for i := 1; i < len(res.Places); i++ {
		prev, cur := res.Places[i-1], res.Places[i]
		if prev.Rating == cur.Rating {
			assert.GreaterOrEqual(t, prev.ReviewCount, cur.ReviewCount)
		} else {
			assert.Greater(t, prev.Rating, cur.Rating)
		}
	}
	assert.Equal(t, 5.0, res.Places[0].Rating)
}

func TestAdaptiveSearchBudgetExhaustion(t *testing.T) {
	// With a tiny budget the queue is truncated softly: metrics expose the
	// exhausted budget so the caller can tell coverage is partial.
	p := &syntheticProvider{}
	eng := &Engine{
		Provider: p,
		Opts:     Options{MinTileRadius: 500, MaxDepth: 5, OverlapFactor: 0.7, MaxCalls: 3, Timeout: time.Second},
	}

	res, err := eng.Search(context.Background(), 32.0853, 34.7818, 15000,
		[]model.CategoryGroup{{Label: "restaurant", Tags: []string{"restaurant"}}}, Filters{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Metrics.APICalls)
	assert.Equal(t, 3, p.calls)
}

// perGroupProvider answers each group with the same identity under a
// different name, below capacity so no subdivision happens.
type perGroupProvider struct{}

func (perGroupProvider) Capacity() int { return 20 }

func (perGroupProvider) SearchNearby(_ context.Context, req provider.SearchRequest) ([]model.Place, error) {
	return []model.Place{
		{ID: "shared", Name: "as seen by " + req.Categories[0]},
		{ID: "only-" + req.Categories[0]},
	}, nil
}

func TestAdaptiveSearchCrossGroupDedup(t *testing.T) {
	eng := &Engine{Provider: perGroupProvider{}, Opts: Options{OverlapFactor: 0.7}}

	groups := []model.CategoryGroup{
		{Label: "restaurant", Tags: []string{"restaurant"}},
		{Label: "cafe", Tags: []string{"cafe"}},
	}
	res, err := eng.Search(context.Background(), 32.0853, 34.7818, 1000, groups, Filters{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Metrics.APICalls)
	assert.Equal(t, 3, res.Metrics.UniqueBeforeFilter)

	// Group processing order decides ownership of the shared identity,
	// regardless of which traversal goroutine finished first.
	byID := map[string]model.Place{}
	for _, p := range res.Places {
		byID[p.ID] = p
	}
	require.Contains(t, byID, "shared")
	assert.Equal(t, "as seen by restaurant", byID["shared"].Name)
	assert.Equal(t, "restaurant", byID["shared"].Group)
}

func TestAdaptiveSearchRejectsInvalidInput(t *testing.T) {
	p := &syntheticProvider{}
	eng := &Engine{Provider: p, Opts: Options{OverlapFactor: 0.7}}
	groups := []model.CategoryGroup{{Label: "restaurant", Tags: []string{"restaurant"}}}

	cases := []struct {
		name             string
		lat, lng, radius float64
		groups           []model.CategoryGroup
	}{
		{"latitude too high", 91, 34, 1000, groups},
		{"latitude too low", -91, 34, 1000, groups},
		{"longitude too high", 32, 181, 1000, groups},
		{"longitude too low", 32, -181, 1000, groups},
		{"zero radius", 32, 34, 0, groups},
		{"negative radius", 32, 34, -5, groups},
		{"no groups", 32, 34, 1000, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Search(context.Background(), tc.lat, tc.lng, tc.radius, tc.groups, Filters{})
			require.Error(t, err)
		})
	}

	// Fail fast: no budget may be consumed on invalid input.
	assert.Equal(t, 0, p.calls)
}

func TestAdaptiveSearchRejectsBadOverlap(t *testing.T) {
	p := &syntheticProvider{}
	groups := []model.CategoryGroup{{Label: "restaurant", Tags: []string{"restaurant"}}}

	for _, overlap := range []float64{-0.5, 1.2} {
		eng := &Engine{Provider: p, Opts: Options{OverlapFactor: overlap}}
		_, err := eng.Search(context.Background(), 32, 34, 1000, groups, Filters{})
		require.Error(t, err)
	}
	assert.Equal(t, 0, p.calls)
}
