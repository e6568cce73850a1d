// Package geo decides which work location, if any, a coordinate falls inside.
package geo

import (
	"math"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Radius returns the effective radius of loc, falling back to defaultRadius.
func Radius(loc database.WorkLocation, defaultRadius int) float64 {
	if loc.RadiusMeters != nil && *loc.RadiusMeters > 0 {
		return float64(*loc.RadiusMeters)
	}
	return float64(defaultRadius)
}

// Locate returns the first active location whose radius contains p, or nil.
// Locations without coordinates are skipped. The boundary is inclusive.
func Locate(p Point, locations []database.WorkLocation, defaultRadius int) *database.WorkLocation {
	for i := range locations {
		loc := &locations[i]
		if !loc.IsActive || loc.Latitude == nil || loc.Longitude == nil {
			continue
		}
		center := Point{Lat: *loc.Latitude, Lng: *loc.Longitude}
		if Haversine(p, center) <= Radius(*loc, defaultRadius) {
			return loc
		}
	}
	return nil
}

// Distance describes how far a point is from one location.
type Distance struct {
	Location database.WorkLocation `json:"location"`
	Meters   float64               `json:"meters"`
	Radius   float64               `json:"radius"`
	Inside   bool                  `json:"inside"`
}

// Distances reports the distance from p to every location that has coordinates,
// in input order. Used for diagnostics.
func Distances(p Point, locations []database.WorkLocation, defaultRadius int) []Distance {
	out := make([]Distance, 0, len(locations))
	for _, loc := range locations {
		if loc.Latitude == nil || loc.Longitude == nil {
			continue
		}
		d := Haversine(p, Point{Lat: *loc.Latitude, Lng: *loc.Longitude})
		r := Radius(loc, defaultRadius)
		out = append(out, Distance{Location: loc, Meters: d, Radius: r, Inside: loc.IsActive && d <= r})
	}
	return out
}
