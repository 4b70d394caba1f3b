package pipeline

import (
	"context"
	"time"

	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/series"
)

// Key identifies one processed series.
type Key struct {
	Controller string          `json:"controller" validate:"required"`
	Selector   series.Selector `json:"selector" validate:"required"`
}

func (k Key) String() string {
	return k.Controller + ":" + string(k.Selector)
}

// Display is the presentation metadata consumers use to label a series.
type Display struct {
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Precision   int      `json:"precision" yaml:"precision" validate:"gte=0,lte=6"`
	Warning     *float64 `json:"warning,omitempty" yaml:"warning"`
	Alarm       *float64 `json:"alarm,omitempty" yaml:"alarm"`
}

// Result is the outcome of one successful selector refresh.
type Result struct {
	Controller     string                `json:"controller"`
	Selector       series.Selector       `json:"selector"`
	Entity         geo.NamedEntity       `json:"entity"`
	Synchronized   bool                  `json:"synchronized"`
	DistanceMeters float64               `json:"distanceMeters"`
	Location       geo.Coordinate        `json:"location"`
	ComputedAt     time.Time             `json:"computedAt"`
	Unit           series.Unit           `json:"unit"`
	Display        Display               `json:"display"`
	Step           time.Duration         `json:"step"`
	Values         []series.ProcessValue `json:"values"`
	Nowcast        *series.ProcessValue  `json:"nowcast,omitempty"`
	Forecast       []series.ProcessValue `json:"forecast,omitempty"`
}

// Key returns the store key of r.
func (r Result) Key() Key {
	return Key{Controller: r.Controller, Selector: r.Selector}
}

// Store persists results. Implementations keep the last successful result
// per key until a newer one arrives.
type Store interface {
	SaveResult(ctx context.Context, r Result) error
	GetLatest(ctx context.Context, key Key) (Result, error)
	GetRange(ctx context.Context, key Key, from, to time.Time) ([]Result, error)
}

// Observer records refresh outcomes. Optional.
type Observer interface {
	ObserveRefresh(controller, selector, outcome string, d time.Duration)
}

// Refresh outcomes reported to the Observer.
const (
	OutcomeOK         = "ok"
	OutcomeNoCoverage = "no_coverage"
	OutcomeNoData     = "no_data"
	OutcomeError      = "error"
)
