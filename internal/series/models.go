package series

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidStep is returned for a non-positive sampling interval.
	ErrInvalidStep = errors.New("sampling step must be positive")
	// ErrMixedUnits is returned when a series combines values of different units.
	ErrMixedUnits = errors.New("series mixes units")
	// ErrIrregular is returned when an operation needs a regularized series.
	ErrIrregular = errors.New("series is not regularized")
	// ErrSpanTooLarge is returned when a regular grid would exceed MaxGridPoints.
	ErrSpanTooLarge = errors.New("series span too large for sampling step")
)

// Quality describes how a data point was obtained.
// Higher values rank better for display.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityBad
	QualityUncertain
	QualityGood
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityUncertain:
		return "uncertain"
	case QualityBad:
		return "bad"
	default:
		return "unknown"
	}
}

// ParseQuality maps the textual form back to a Quality.
func ParseQuality(s string) Quality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return QualityGood
	case "uncertain":
		return QualityUncertain
	case "bad":
		return QualityBad
	default:
		return QualityUnknown
	}
}

// MarshalText encodes the quality as its name.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText decodes a quality name.
func (q *Quality) UnmarshalText(b []byte) error {
	*q = ParseQuality(string(b))
	return nil
}

// Worst returns the lower-ranked of a and b.
func Worst(a, b Quality) Quality {
	if a < b {
		return a
	}
	return b
}

// Unit is a unit-of-measure tag such as "cm", "µg/m³" or "µSv/h".
type Unit string

// Quantity is a magnitude with its unit.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// ProcessValue is one quality-annotated measurement. It is a value type:
// copies are cheap and the timestamp set at creation is never changed.
type ProcessValue struct {
	Quantity  Quantity  `json:"quantity"`
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProcessValue builds a ProcessValue with a UTC timestamp.
func NewProcessValue(value float64, unit Unit, quality Quality, ts time.Time) ProcessValue {
	return ProcessValue{
		Quantity:  Quantity{Value: value, Unit: unit},
		Quality:   quality,
		Timestamp: ts.UTC(),
	}
}

// Selector names the physical quantity or category a series carries.
type Selector string

// Series is an ordered list of values for one selector. Step is the
// sampling interval of a regularized series and zero for raw input.
type Series struct {
	Selector Selector       `json:"selector"`
	Step     time.Duration  `json:"step"`
	Values   []ProcessValue `json:"values"`
}

// Raw wraps unprocessed provider values into an irregular series.
func Raw(selector Selector, values []ProcessValue) Series {
	return Series{Selector: selector, Values: values}
}

// IsRegular reports whether the series went through Regularize.
func (s Series) IsRegular() bool {
	return s.Step > 0
}

// Len returns the number of values.
func (s Series) Len() int {
	return len(s.Values)
}

// Unit returns the unit of the series, taken from its first value.
func (s Series) Unit() Unit {
	if len(s.Values) == 0 {
		return ""
	}
	return s.Values[0].Quantity.Unit
}

// Last returns the most recent value.
func (s Series) Last() (ProcessValue, bool) {
	if len(s.Values) == 0 {
		return ProcessValue{}, false
	}
	return s.Values[len(s.Values)-1], true
}

// Regularize returns a new, regularized series sampled every step.
func (s Series) Regularize(step time.Duration) (Series, error) {
	values, err := Regularize(s.Values, step)
	if err != nil {
		return Series{}, fmt.Errorf("regularize %s: %w", s.Selector, err)
	}
	return Series{Selector: s.Selector, Step: step, Values: values}, nil
}

// Smooth applies sm to a regularized series.
func (s Series) Smooth(sm Smoother) (Series, error) {
	if !s.IsRegular() {
		return Series{}, fmt.Errorf("smooth %s: %w", s.Selector, ErrIrregular)
	}
	values, err := sm.Smooth(s.Values)
	if err != nil {
		return Series{}, fmt.Errorf("smooth %s: %w", s.Selector, err)
	}
	return Series{Selector: s.Selector, Step: s.Step, Values: values}, nil
}

// Nowcast estimates the next grid point of a regularized series.
func (s Series) Nowcast(alpha float64) (ProcessValue, bool) {
	if !s.IsRegular() {
		return ProcessValue{}, false
	}
	return Nowcast(s.Values, alpha)
}

func checkUnits(values []ProcessValue) error {
	if len(values) == 0 {
		return nil
	}
	unit := values[0].Quantity.Unit
	for _, v := range values[1:] {
		if v.Quantity.Unit != unit {
			return fmt.Errorf("%w: %q and %q", ErrMixedUnits, unit, v.Quantity.Unit)
		}
	}
	return nil
}
