package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/rendis/poiscan/internal/model"
)

// FilterRegion removes places whose coordinates fall outside the polygon.
func FilterRegion(places []model.Place, region orb.MultiPolygon) []model.Place {
	var inside []model.Place
	for _, p := range places {
		if p.Lat == 0 && p.Lng == 0 {
			continue
		}
		point := orb.Point{p.Lng, p.Lat} // orb.Point is [lng, lat]
		if planar.MultiPolygonContains(region, point) {
			inside = append(inside, p)
		}
	}
	return inside
}
