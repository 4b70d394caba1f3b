package resolver

import (
	"testing"

	"github.com/ultralove/dod/internal/geo"
)

var query = geo.Coordinate{Latitude: 50.0, Longitude: 7.0}

func TestResolveSynchronizedStationsPickNearest(t *testing.T) {
	// "Rhein" is about 1 km north of the query location.
	waterways := []geo.NamedEntity{
		{ID: "w1", Name: "Rhein", Location: geo.Coordinate{Latitude: 50.009, Longitude: 7.0}},
		{ID: "w2", Name: "Mosel", Location: geo.Coordinate{Latitude: 50.3, Longitude: 7.6}},
	}
	// The two Rhein stations are about 2 km apart; an unrelated station sits closest.
	stations := []geo.NamedEntity{
		{ID: "s503", Name: "Rhein-Km 503", Location: geo.Coordinate{Latitude: 50.018, Longitude: 7.0}},
		{ID: "s500", Name: "Rhein-Km 500", Location: geo.Coordinate{Latitude: 50.0, Longitude: 7.012}},
		{ID: "sieg", Name: "Siegburg", Location: geo.Coordinate{Latitude: 50.002, Longitude: 7.0}},
	}

	r := New(5000, 10000)
	got, ok := r.Resolve(query, stations, waterways)
	if !ok {
		t.Fatal("expected a resolved station")
	}
	if got.Entity.ID != "s500" {
		t.Fatalf("expected s500, got %s (%s)", got.Entity.ID, got.Entity.Name)
	}
	if !got.Synchronized || got.Feature != "Rhein" {
		t.Fatalf("expected synchronization with Rhein, got %+v", got)
	}
	if got.Entity.Name != "Rhein-Km 500" {
		t.Fatalf("synchronized names must be kept verbatim, got %q", got.Entity.Name)
	}
}

func TestResolveNameMatchIsCaseInsensitive(t *testing.T) {
	waterways := []geo.NamedEntity{{Name: "rhein", Location: geo.Coordinate{Latitude: 50.009, Longitude: 7.0}}}
	stations := []geo.NamedEntity{
		{ID: "near", Name: "Other", Location: query},
		{ID: "match", Name: "BONN RHEIN", Location: geo.Coordinate{Latitude: 50.01, Longitude: 7.0}},
	}
	got, ok := New(5000, 10000).Resolve(query, stations, waterways)
	if !ok || got.Entity.ID != "match" {
		t.Fatalf("expected case-insensitive match, got %+v", got)
	}
}

func TestResolveFallsBackToNearestPrimary(t *testing.T) {
	waterways := []geo.NamedEntity{{Name: "Mosel", Location: geo.Coordinate{Latitude: 50.005, Longitude: 7.0}}}
	stations := []geo.NamedEntity{
		{ID: "far", Name: "Rhein", Location: geo.Coordinate{Latitude: 51.0, Longitude: 7.0}},
		{ID: "near", Name: "BAD HONNEF", Location: geo.Coordinate{Latitude: 50.001, Longitude: 7.0}},
	}
	got, ok := New(5000, 10000).Resolve(query, stations, waterways)
	if !ok {
		t.Fatal("expected fallback resolution")
	}
	if got.Entity.ID != "near" || got.Synchronized {
		t.Fatalf("expected unsynchronized nearest station, got %+v", got)
	}
	if got.Entity.Name != "Bad Honnef" {
		t.Fatalf("expected capitalized name, got %q", got.Entity.Name)
	}
}

func TestResolveSyncThresholdExcludesDistantNamesakes(t *testing.T) {
	feature := geo.NamedEntity{Name: "Rhein", Location: geo.Coordinate{Latitude: 50.009, Longitude: 7.0}}
	stations := []geo.NamedEntity{
		// Named after the feature but ~55 km away from it.
		{ID: "namesake", Name: "Rhein-Pegel", Location: geo.Coordinate{Latitude: 50.5, Longitude: 7.0}},
		{ID: "near", Name: "Kripp", Location: geo.Coordinate{Latitude: 50.003, Longitude: 7.0}},
	}
	got, ok := New(5000, 10000).Resolve(query, stations, []geo.NamedEntity{feature})
	if !ok || got.Entity.ID != "near" {
		t.Fatalf("expected fallback to nearest station, got %+v", got)
	}
}

func TestResolveSecondaryOutsideSearchRadius(t *testing.T) {
	waterways := []geo.NamedEntity{{Name: "Rhein", Location: geo.Coordinate{Latitude: 50.2, Longitude: 7.0}}}
	stations := []geo.NamedEntity{
		{ID: "rhein", Name: "Rhein", Location: geo.Coordinate{Latitude: 50.19, Longitude: 7.0}},
		{ID: "near", Name: "Kripp", Location: geo.Coordinate{Latitude: 50.01, Longitude: 7.0}},
	}
	got, ok := New(5000, 100000).Resolve(query, stations, waterways)
	if !ok || got.Entity.ID != "near" || got.Synchronized {
		t.Fatalf("feature beyond search radius must be ignored, got %+v", got)
	}
}

func TestResolveNoCoverage(t *testing.T) {
	waterways := []geo.NamedEntity{{Name: "Rhein", Location: query}}
	if _, ok := New(0, 0).Resolve(query, nil, waterways); ok {
		t.Fatal("empty primary list must not resolve")
	}
}

func TestResolveWithoutSecondaryDataset(t *testing.T) {
	stations := []geo.NamedEntity{
		{ID: "a", Name: "köln", Location: geo.Coordinate{Latitude: 50.9, Longitude: 6.9}},
		{ID: "b", Name: "bonn", Location: geo.Coordinate{Latitude: 50.1, Longitude: 7.0}},
	}
	got, ok := New(0, 0).Resolve(query, stations, nil)
	if !ok || got.Entity.ID != "b" || got.Entity.Name != "Bonn" {
		t.Fatalf("unexpected association %+v", got)
	}
	if got.Distance <= 0 {
		t.Fatalf("expected positive distance, got %v", got.Distance)
	}
}
