package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/rendis/poiscan/internal/model"
)

// metersPerDegLat is the length of one degree of latitude. Longitude degrees
// shrink with cos(lat); Subdivide corrects per parent latitude.
const metersPerDegLat = 111320.0

// DefaultOverlapFactor is the validated child-offset multiplier. Child
// centers sit at diagonal offsets, overlap*sqrt(2) child radii from the
// parent center, so the parent center stays inside every child disc only
// while overlap <= 1/sqrt(2) ~ 0.707. At 0.8 the child centers overshoot
// that bound and entities near the parent center are missed; 0.7 sits just
// under it.
const DefaultOverlapFactor = 0.7

// Subdivide splits a parent tile into four half-radius children centered at
// the four diagonal offsets from the parent center, childRadius*overlap
// meters away on each axis. Pure computation, no I/O.
func Subdivide(parent model.Tile, overlap float64) [4]model.Tile {
	childRadius := parent.RadiusM / 2
	offsetM := childRadius * overlap

	latOff := offsetM / metersPerDegLat
	lngOff := latOff / math.Cos(parent.Lat*math.Pi/180.0)

	depth := parent.Depth + 1
	return [4]model.Tile{
		{Lat: parent.Lat + latOff, Lng: parent.Lng - lngOff, RadiusM: childRadius, Depth: depth},
		{Lat: parent.Lat + latOff, Lng: parent.Lng + lngOff, RadiusM: childRadius, Depth: depth},
		{Lat: parent.Lat - latOff, Lng: parent.Lng + lngOff, RadiusM: childRadius, Depth: depth},
		{Lat: parent.Lat - latOff, Lng: parent.Lng - lngOff, RadiusM: childRadius, Depth: depth},
	}
}

// DistanceM returns the haversine distance in meters between two coordinates.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}

// Contains reports whether the coordinate lies within the tile's disc.
func Contains(t model.Tile, lat, lng float64) bool {
	return DistanceM(t.Lat, t.Lng, lat, lng) <= t.RadiusM
}
