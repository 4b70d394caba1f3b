package geo

import (
	"math"
)

// EarthRadius is the mean Earth radius in meters used for all distances.
const EarthRadius = 6371000.0

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NamedEntity is a geographic feature parsed from a provider payload:
// a measuring station, a district, a waterway, a constituency.
type NamedEntity struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location Coordinate `json:"location"`
}

// Distance returns the haversine great-circle distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Nearest returns the candidate closest to the given coordinate.
// Ties keep the first candidate encountered. ok is false for an empty list.
func Nearest(candidates []NamedEntity, to Coordinate) (NamedEntity, bool) {
	return NearestWithin(candidates, to, math.Inf(1))
}

// NearestWithin is Nearest restricted to candidates at most radius meters away.
func NearestWithin(candidates []NamedEntity, to Coordinate, radius float64) (NamedEntity, bool) {
	var (
		best    NamedEntity
		found   bool
		minDist = math.Inf(1)
	)
	for _, c := range candidates {
		d := Distance(c.Location, to)
		if d > radius {
			continue
		}
		if !found || d < minDist {
			best = c
			minDist = d
			found = true
		}
	}
	return best, found
}

// Moved reports whether b is more than deadband meters away from a.
func Moved(a, b Coordinate, deadband float64) bool {
	return Distance(a, b) > deadband
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
