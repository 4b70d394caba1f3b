package resolver

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ultralove/dod/internal/geo"
)

const (
	// DefaultSearchRadius bounds the lookup of the secondary feature.
	DefaultSearchRadius = 25000.0
	// DefaultSyncThreshold bounds how far a synchronized station may sit from the feature.
	DefaultSyncThreshold = 50000.0
)

// Resolver picks the entity a controller should read from for a given location.
// Primary entities (stations) are matched against the nearest secondary
// feature (waterway) by name and distance; without a match the nearest
// primary entity wins.
type Resolver struct {
	SearchRadius  float64
	SyncThreshold float64
}

// Association is the outcome of one resolution, valid for a single refresh cycle.
type Association struct {
	Entity       geo.NamedEntity `json:"entity"`
	Location     geo.Coordinate  `json:"location"`
	Distance     float64         `json:"distanceMeters"`
	Feature      string          `json:"feature,omitempty"`
	Synchronized bool            `json:"synchronized"`
}

// New returns a Resolver, substituting defaults for non-positive parameters.
func New(searchRadius, syncThreshold float64) *Resolver {
	if searchRadius <= 0 {
		searchRadius = DefaultSearchRadius
	}
	if syncThreshold <= 0 {
		syncThreshold = DefaultSyncThreshold
	}
	return &Resolver{SearchRadius: searchRadius, SyncThreshold: syncThreshold}
}

// Resolve returns the best primary entity for loc. ok is false only when
// primary is empty, which means the area has no coverage.
func (r *Resolver) Resolve(loc geo.Coordinate, primary, secondary []geo.NamedEntity) (Association, bool) {
	if len(primary) == 0 {
		return Association{}, false
	}

	if feature, ok := geo.NearestWithin(secondary, loc, r.SearchRadius); ok {
		synced := r.synchronize(feature, primary)
		if entity, ok := geo.Nearest(synced, loc); ok {
			return Association{
				Entity:       entity,
				Location:     loc,
				Distance:     geo.Distance(entity.Location, loc),
				Feature:      feature.Name,
				Synchronized: true,
			}, true
		}
	}

	entity, _ := geo.Nearest(primary, loc)
	entity.Name = normalizeName(entity.Name)
	return Association{
		Entity:   entity,
		Location: loc,
		Distance: geo.Distance(entity.Location, loc),
	}, true
}

// synchronize keeps primary entities whose name mentions the feature and
// which lie within the synchronization threshold of it.
func (r *Resolver) synchronize(feature geo.NamedEntity, primary []geo.NamedEntity) []geo.NamedEntity {
	name := strings.ToLower(strings.TrimSpace(feature.Name))
	if name == "" {
		return nil
	}
	var out []geo.NamedEntity
	for _, p := range primary {
		if !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		if geo.Distance(p.Location, feature.Location) >= r.SyncThreshold {
			continue
		}
		out = append(out, p)
	}
	return out
}

// normalizeName turns upstream free text like "KÖLN-RHEIN" into "Köln-Rhein".
func normalizeName(name string) string {
	return cases.Title(language.German).String(strings.TrimSpace(name))
}
