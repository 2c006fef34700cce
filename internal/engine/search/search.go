package search

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/rendis/poiscan/internal/engine/provider"
	"github.com/rendis/poiscan/internal/model"
)

// Engine owns the collaborators shared by every traversal of one run.
type Engine struct {
	Provider provider.Client
	Opts     Options
	Logger   *log.Logger
	Stats    *Stats
	// OnPlaces, if set, receives each tile's newly discovered places while
	// traversals run. Called from per-group goroutines.
	OnPlaces func([]model.Place)
}

// Search runs one traversal per category group and merges the results.
// Groups share no mutable state until the merge, so they run concurrently,
// each with its own budget and registry. Invalid input is rejected before
// any tile is scheduled.
func (e *Engine) Search(ctx context.Context, lat, lng, radiusM float64, groups []model.CategoryGroup, filters Filters) (Result, error) {
	if lat < -90 || lat > 90 {
		return Result{}, fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return Result{}, fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	if !(radiusM > 0) {
		return Result{}, fmt.Errorf("radius must be positive, got %v", radiusM)
	}
	if len(groups) == 0 {
		return Result{}, fmt.Errorf("at least one category group is required")
	}

	opts := e.Opts.withDefaults()
	if opts.OverlapFactor <= 0 || opts.OverlapFactor > 1 {
		return Result{}, fmt.Errorf("overlap factor %.2f outside (0, 1]: coverage guarantee would not hold", opts.OverlapFactor)
	}

	stats := e.Stats
	if stats == nil {
		stats = &Stats{}
	}

	budgets := make([]*Budget, len(groups))
	registries := make([]*Registry, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		budgets[i] = NewBudget(opts.MaxCalls)
		g.Go(func() error {
			sched := &Scheduler{
				Provider: e.Provider,
				Opts:     opts,
				Logger:   e.Logger,
				Stats:    stats,
				OnPlaces: e.OnPlaces,
			}
			initial := model.Tile{Lat: lat, Lng: lng, RadiusM: radiusM}
			registries[i] = sched.Run(gctx, initial, group, budgets[i])
			return nil
		})
	}
	g.Wait()

	res := Aggregate(registries, filters)
	for _, b := range budgets {
		res.Metrics.APICalls += b.Made()
	}
	res.Metrics.FailedCalls = int(stats.FailedCalls.Load())

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}
