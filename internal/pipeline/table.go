package pipeline

import (
	"fmt"
	"time"

	"github.com/ultralove/dod/internal/forecast"
	"github.com/ultralove/dod/internal/series"
)

// DefaultAlpha weights the latest observation in the nowcast.
const DefaultAlpha = 0.7

// FeedSpec points at an entity list.
type FeedSpec struct {
	URL    string `yaml:"url" validate:"required,url"`
	Format string `yaml:"format" validate:"omitempty,oneof=generic pegelonline pegelonline-gauges pegelonline-waters"`
}

// SmoothingSpec selects the noise filter. Kind "" or "none" disables it.
type SmoothingSpec struct {
	Kind   string  `yaml:"kind" validate:"omitempty,oneof=none moving-average gaussian"`
	Window int     `yaml:"window" validate:"gte=0"`
	Sigma  float64 `yaml:"sigma" validate:"gte=0"`
}

// Smoother builds the configured series.Smoother, nil when disabled.
func (s SmoothingSpec) Smoother() (series.Smoother, error) {
	switch s.Kind {
	case "", "none":
		return nil, nil
	case "moving-average":
		if s.Window < 1 {
			return nil, fmt.Errorf("moving-average needs a window >= 1")
		}
		return series.MovingAverage{Window: s.Window}, nil
	case "gaussian":
		if _, err := series.GaussianKernel(s.Window, s.Sigma); err != nil {
			return nil, err
		}
		return series.Gaussian{Window: s.Window, Sigma: s.Sigma}, nil
	default:
		return nil, fmt.Errorf("unknown smoothing %q", s.Kind)
	}
}

// SelectorSpec is one quantity a controller produces.
type SelectorSpec struct {
	Name    series.Selector `yaml:"name" json:"name" validate:"required"`
	Unit    series.Unit     `yaml:"unit" json:"unit"`
	Display Display         `yaml:"display" json:"display"`
}

// ControllerSpec is one row of the controller table.
type ControllerSpec struct {
	Name         string         `yaml:"name" validate:"required"`
	Timeout      time.Duration  `yaml:"timeout" validate:"gte=0"`
	Step         time.Duration  `yaml:"step" validate:"gt=0"`
	Horizon      time.Duration  `yaml:"horizon" validate:"gte=0"`
	Entities     FeedSpec       `yaml:"entities"`
	Waters       *FeedSpec      `yaml:"waters" validate:"omitempty"`
	Measurements string         `yaml:"measurements" validate:"required"`
	Selectors    []SelectorSpec `yaml:"selectors" validate:"required,min=1,dive"`
	Smoothing    SmoothingSpec  `yaml:"smoothing"`
	// Alpha is the nowcast weight; nil means DefaultAlpha.
	Alpha          *float64       `yaml:"alpha" validate:"omitempty,gte=0,lte=1"`
	DisableNowcast bool           `yaml:"disableNowcast"`
	Order          forecast.Order `yaml:"order"`
	SearchRadius   float64        `yaml:"searchRadius" validate:"gte=0"`
	SyncThreshold  float64        `yaml:"syncThreshold" validate:"gte=0"`
	RatePerSec     float64        `yaml:"ratePerSec" validate:"gte=0"`
}

// NowcastAlpha resolves the configured alpha.
func (s ControllerSpec) NowcastAlpha() float64 {
	if s.Alpha == nil {
		return DefaultAlpha
	}
	return *s.Alpha
}

// Selector looks up a selector by name.
func (s ControllerSpec) Selector(name series.Selector) (SelectorSpec, bool) {
	for _, sel := range s.Selectors {
		if sel.Name == name {
			return sel, true
		}
	}
	return SelectorSpec{}, false
}

func floatPtr(v float64) *float64 { return &v }

// DefaultTable is the built-in controller table: water level and water
// temperature from the federal gauge network, synchronized with the
// waterway the gauge sits on.
func DefaultTable() []ControllerSpec {
	const pegel = "https://www.pegelonline.wsv.de/webservices/rest-api/v2"
	stations := func(ts string) FeedSpec {
		return FeedSpec{URL: pegel + "/stations.json?timeseries=" + ts, Format: "pegelonline-gauges"}
	}
	waters := FeedSpec{URL: pegel + "/stations.json", Format: "pegelonline-waters"}

	return []ControllerSpec{
		{
			Name:         "water-level",
			Timeout:      15 * time.Minute,
			Step:         15 * time.Minute,
			Horizon:      6 * time.Hour,
			Entities:     stations("W"),
			Waters:       &waters,
			Measurements: pegel + "/stations/{id}/{selector}/measurements.json?start=P3D",
			Selectors: []SelectorSpec{{
				Name: "W",
				Unit: "cm",
				Display: Display{
					Label:       "Water level",
					Description: "Gauge water level",
					Warning:     floatPtr(600),
					Alarm:       floatPtr(800),
				},
			}},
			Smoothing:     SmoothingSpec{Kind: "gaussian", Window: 5, Sigma: 1.0},
			Order:         forecast.DefaultOrder,
			SearchRadius:  25000,
			SyncThreshold: 50000,
			RatePerSec:    2,
		},
		{
			Name:         "water-temperature",
			Timeout:      time.Hour,
			Step:         time.Hour,
			Horizon:      12 * time.Hour,
			Entities:     stations("WT"),
			Waters:       &waters,
			Measurements: pegel + "/stations/{id}/{selector}/measurements.json?start=P7D",
			Selectors: []SelectorSpec{{
				Name:    "WT",
				Unit:    "°C",
				Display: Display{Label: "Water temperature", Precision: 1},
			}},
			Smoothing:     SmoothingSpec{Kind: "moving-average", Window: 3},
			Order:         forecast.DefaultOrder,
			SearchRadius:  50000,
			SyncThreshold: 50000,
			RatePerSec:    2,
		},
	}
}
