package search

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/rendis/poiscan/internal/engine/geo"
	"github.com/rendis/poiscan/internal/model"
)

// Filters are applied once, after all traversals have merged.
type Filters struct {
	MinRating  float64
	MinReviews int
	// OpenPredicate, if set, keeps only places whose weekday hours satisfy it.
	OpenPredicate func(weekdayHours []string) bool
	// Region, if set, keeps only places inside the polygon.
	Region orb.MultiPolygon
}

// Metrics describe one completed run. They always accompany the place list
// so a partial-coverage result is never indistinguishable from a complete
// one: a caller seeing APICalls at its budget can retry with a larger one.
type Metrics struct {
	APICalls           int `json:"api_calls"`
	FailedCalls        int `json:"failed_calls"`
	UniqueBeforeFilter int `json:"unique_before_filter"`
	UniqueAfterFilter  int `json:"unique_after_filter"`
}

// Result is the final output of an adaptive search.
type Result struct {
	Places  []model.Place `json:"places"`
	Metrics Metrics       `json:"metrics"`
}

// Aggregate merges per-group registries in group order, deduplicating again
// by identity (first group wins on collisions), applies post-filters, and
// sorts by rating descending with review count as tiebreaker. The sort is
// stable so equal-key places retain merge order.
func Aggregate(registries []*Registry, filters Filters) Result {
	merged := NewRegistry()
	for _, reg := range registries {
		if reg == nil {
			continue
		}
		for _, p := range reg.Places() {
			merged.Insert(p)
		}
	}

	all := merged.Places()

	var kept []model.Place
	for _, p := range all {
		if filters.MinRating > 0 && p.Rating < filters.MinRating {
			continue
		}
		if filters.MinReviews > 0 && p.ReviewCount < filters.MinReviews {
			continue
		}
		if filters.OpenPredicate != nil && !filters.OpenPredicate(p.WeekdayHours) {
			continue
		}
		kept = append(kept, p)
	}
	if len(filters.Region) > 0 {
		kept = geo.FilterRegion(kept, filters.Region)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Rating != kept[j].Rating {
			return kept[i].Rating > kept[j].Rating
		}
		return kept[i].ReviewCount > kept[j].ReviewCount
	})

	return Result{
		Places: kept,
		Metrics: Metrics{
			UniqueBeforeFilter: len(all),
			UniqueAfterFilter:  len(kept),
		},
	}
}

// OpenOnDay returns a predicate keeping places whose hours line for the
// given weekday (e.g. "Saturday") exists and is not marked closed.
func OpenOnDay(day string) func([]string) bool {
	return func(weekdayHours []string) bool {
		for _, line := range weekdayHours {
			if strings.HasPrefix(line, day+":") {
				return !strings.Contains(line, "Closed")
			}
		}
		return false
	}
}
