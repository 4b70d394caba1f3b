package geo

import (
	"math"
	"testing"
)

var (
	cologne = Coordinate{Latitude: 50.9375, Longitude: 6.9603}
	bonn    = Coordinate{Latitude: 50.7374, Longitude: 7.0982}
	berlin  = Coordinate{Latitude: 52.5200, Longitude: 13.4050}
)

func TestDistanceSymmetricAndZero(t *testing.T) {
	pairs := [][2]Coordinate{
		{cologne, bonn},
		{bonn, berlin},
		{{Latitude: -33.86, Longitude: 151.21}, {Latitude: 40.71, Longitude: -74.0}},
		{{Latitude: 0, Longitude: 179.9}, {Latitude: 0, Longitude: -179.9}},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1])
		ba := Distance(p[1], p[0])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("distance not symmetric: %v vs %v", ab, ba)
		}
		if d := Distance(p[0], p[0]); d != 0 {
			t.Errorf("distance to self = %v, want 0", d)
		}
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// Cologne to Bonn is roughly 24.3 km.
	d := Distance(cologne, bonn)
	if d < 23500 || d > 25000 {
		t.Fatalf("expected ~24km, got %.0fm", d)
	}

	// One degree of latitude along a meridian.
	d = Distance(Coordinate{Latitude: 0}, Coordinate{Latitude: 1})
	want := EarthRadius * math.Pi / 180
	if math.Abs(d-want) > 1e-6 {
		t.Fatalf("expected %.3f, got %.3f", want, d)
	}
}

func TestNearest(t *testing.T) {
	if _, ok := Nearest(nil, cologne); ok {
		t.Fatal("expected no result for empty candidate list")
	}

	far := NamedEntity{ID: "b", Name: "Berlin", Location: berlin}
	got, ok := Nearest([]NamedEntity{far}, cologne)
	if !ok || got.ID != "b" {
		t.Fatalf("singleton list must return its element, got %+v ok=%v", got, ok)
	}

	candidates := []NamedEntity{
		{ID: "berlin", Location: berlin},
		{ID: "bonn", Location: bonn},
		{ID: "bonn-twin", Location: bonn},
	}
	got, ok = Nearest(candidates, cologne)
	if !ok || got.ID != "bonn" {
		t.Fatalf("expected first of tied nearest candidates, got %+v", got)
	}
}

func TestNearestWithin(t *testing.T) {
	candidates := []NamedEntity{{ID: "bonn", Location: bonn}}
	if _, ok := NearestWithin(candidates, cologne, 10000); ok {
		t.Fatal("bonn is outside a 10km radius of cologne")
	}
	if _, ok := NearestWithin(candidates, cologne, 30000); !ok {
		t.Fatal("bonn is inside a 30km radius of cologne")
	}
}

func TestMoved(t *testing.T) {
	a := Coordinate{Latitude: 50.0, Longitude: 7.0}
	// ~55 m north.
	b := Coordinate{Latitude: 50.0005, Longitude: 7.0}
	if Moved(a, b, 100) {
		t.Fatal("55m must stay within a 100m deadband")
	}
	// ~222 m north.
	c := Coordinate{Latitude: 50.002, Longitude: 7.0}
	if !Moved(a, c, 100) {
		t.Fatal("222m must leave a 100m deadband")
	}
}
