package model

// Tile is a circular search region: center, radius in meters, and the
// subdivision depth at which it was created. Tiles are value types and are
// never mutated after creation; the traversal itself is the only record of
// the parent/child hierarchy.
type Tile struct {
	Lat     float64
	Lng     float64
	RadiusM float64
	Depth   int
}

// Place represents one discovered point of interest. The ID is the
// provider-assigned stable identity, unique per real-world entity.
// Immutable after creation.
type Place struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	WeekdayHours []string `json:"weekday_hours,omitempty"` // 7 entries, or empty
	MapsURL      string   `json:"maps_url,omitempty"`
	Group        string   `json:"group"` // label of the category group that found it
}

// CategoryGroup is an ordered set of provider category tags queried together
// as a single logical pass, so that truncation and subdivision decisions are
// made against their combined result count.
type CategoryGroup struct {
	Label string
	Tags  []string
}

// SearchParams holds the caller-supplied inputs for one adaptive search.
type SearchParams struct {
	// Mode 1: by place name (geocoded to a center)
	Place string

	// Mode 2: by coordinates
	Lat     float64
	Lng     float64
	RadiusM float64

	Groups []CategoryGroup

	// Post-filters
	MinRating  float64
	MinReviews int

	DBPath string
}

func (p *SearchParams) IsCoordMode() bool {
	return p.Lat != 0 || p.Lng != 0
}
