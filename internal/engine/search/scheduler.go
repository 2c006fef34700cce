package search

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/rendis/poiscan/internal/engine/geo"
	"github.com/rendis/poiscan/internal/engine/provider"
	"github.com/rendis/poiscan/internal/model"
)

// Stats carries live counters for progress reporting. Safe for concurrent
// reads while traversals run.
type Stats struct {
	TilesSearched atomic.Int64
	TilesSplit    atomic.Int64
	TilesDropped  atomic.Int64
	PlacesFound   atomic.Int64
	FailedCalls   atomic.Int64
}

// Options bound one adaptive search run. Zero values fall back to the
// defaults below.
type Options struct {
	MinTileRadius float64       // floor below which a tile is never subdivided
	MaxDepth      int           // ceiling on subdivision depth
	OverlapFactor float64       // child-offset multiplier, must be in (0, 1]
	MaxCalls      int           // provider call budget per traversal
	Timeout       time.Duration // per-call deadline
}

const (
	defaultMinTileRadius = 500.0
	defaultMaxDepth      = 5
	defaultMaxCalls      = 200
	defaultTimeout       = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MinTileRadius <= 0 {
		o.MinTileRadius = defaultMinTileRadius
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.OverlapFactor == 0 {
		o.OverlapFactor = geo.DefaultOverlapFactor
	}
	if o.MaxCalls <= 0 {
		o.MaxCalls = defaultMaxCalls
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// Scheduler drives one category-group traversal over a FIFO tile queue.
// Traversal is breadth-first: a tile's children are appended behind every
// tile already queued, so the whole disc is covered depth by depth.
type Scheduler struct {
	Provider provider.Client
	Opts     Options
	Logger   *log.Logger
	Stats    *Stats
	// OnPlaces, if set, is called with each tile's newly discovered places.
	OnPlaces func([]model.Place)
}

// Run processes tiles starting from initial until the queue empties or the
// budget is exhausted. A tile is subdivided only when the provider returned
// a full page (the truncation signal), its radius is above the floor, and
// its depth is below the ceiling. Provider failures yield zero results for
// that tile and the traversal continues; they are never fatal.
func (s *Scheduler) Run(ctx context.Context, initial model.Tile, group model.CategoryGroup, budget *Budget) *Registry {
	if s.Stats == nil {
		s.Stats = &Stats{}
	}

	reg := NewRegistry()
	capacity := s.Provider.Capacity()

	queue := []model.Tile{initial}
	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return reg
		default:
		}

		tile := queue[0]
		queue = queue[1:]

		if !budget.Spend() {
			// Soft truncation: the rest of the queue is dropped and
			// coverage is partial, visible through the call count.
			s.Stats.TilesDropped.Add(int64(len(queue) + 1))
			s.logf("BUDGET group=%s dropped=%d", group.Label, len(queue)+1)
			return reg
		}
		s.Stats.TilesSearched.Add(1)

		results, err := s.query(ctx, tile, group)
		if err != nil {
			s.Stats.FailedCalls.Add(1)
			s.logf("ERROR group=%s tile=%.5f,%.5f r=%.0f depth=%d class=%s err=%v",
				group.Label, tile.Lat, tile.Lng, tile.RadiusM, tile.Depth,
				provider.Classify(err), err)
			continue
		}

		var fresh []model.Place
		for _, p := range results {
			p.Group = group.Label
			if reg.Insert(p) {
				fresh = append(fresh, p)
			}
		}
		s.Stats.PlacesFound.Add(int64(len(fresh)))
		if s.OnPlaces != nil && len(fresh) > 0 {
			s.OnPlaces(fresh)
		}

		if len(results) >= capacity && tile.RadiusM > s.Opts.MinTileRadius && tile.Depth < s.Opts.MaxDepth {
			children := geo.Subdivide(tile, s.Opts.OverlapFactor)
			queue = append(queue, children[:]...)
			s.Stats.TilesSplit.Add(1)
		}
	}

	return reg
}

func (s *Scheduler) query(ctx context.Context, tile model.Tile, group model.CategoryGroup) ([]model.Place, error) {
	qctx := ctx
	if s.Opts.Timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.Opts.Timeout)
		defer cancel()
	}
	return s.Provider.SearchNearby(qctx, provider.SearchRequest{
		Lat:        tile.Lat,
		Lng:        tile.Lng,
		RadiusM:    tile.RadiusM,
		Categories: group.Tags,
	})
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
