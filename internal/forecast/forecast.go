package forecast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ultralove/dod/internal/series"
)

// Order is the autoregressive/differencing/moving-average order of the model.
type Order struct {
	AR           int `json:"p" yaml:"p" validate:"gte=0"`
	Differencing int `json:"d" yaml:"d" validate:"gte=0"`
	MA           int `json:"q" yaml:"q" validate:"gte=0"`
}

// DefaultOrder is used when a controller does not configure one.
var DefaultOrder = Order{AR: 2, Differencing: 1, MA: 1}

// Config is handed to the engine with every request.
type Config struct {
	Order    Order
	Interval time.Duration
}

// Point is the bare magnitude/timestamp pair the engine works on.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Engine is an external forecasting model. It only sees numbers and times.
type Engine interface {
	Predict(ctx context.Context, cfg Config, history []Point, horizon time.Duration) ([]Point, error)
}

// Observer is notified about forecast outcomes. Optional.
type Observer interface {
	ObserveForecast(selector string, ok bool)
}

// Adapter maps series onto an Engine and back. A failing engine never
// surfaces to the caller; it yields an empty forecast.
type Adapter struct {
	engine   Engine
	order    Order
	observer Observer
}

// NewAdapter creates an Adapter. A nil engine disables forecasting.
func NewAdapter(engine Engine, order Order, observer Observer) *Adapter {
	return &Adapter{engine: engine, order: order, observer: observer}
}

// Forecast predicts horizon ahead of s. Every returned point carries the
// series unit and QualityUncertain.
func (a *Adapter) Forecast(ctx context.Context, s series.Series, horizon time.Duration) (out []series.ProcessValue) {
	if a == nil || a.engine == nil || horizon <= 0 {
		return nil
	}
	if s.Len() == 0 {
		log.Printf("forecast: %s has no values; skipping", s.Selector)
		return nil
	}
	if !s.IsRegular() {
		log.Printf("forecast: %s is not regularized; skipping", s.Selector)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: forecast: engine panicked for %s: %v", s.Selector, r)
			out = nil
			a.observe(s.Selector, false)
		}
	}()

	history := make([]Point, len(s.Values))
	for i, v := range s.Values {
		history[i] = Point{Timestamp: v.Timestamp, Value: v.Quantity.Value}
	}

	cfg := Config{Order: a.order, Interval: s.Step}
	predictions, err := a.engine.Predict(ctx, cfg, history, horizon)
	if err != nil {
		log.Printf("ERROR: forecast: %s: %v", s.Selector, fmt.Errorf("engine: %w", err))
		a.observe(s.Selector, false)
		return nil
	}

	last, _ := s.Last()
	unit := s.Unit()
	out = make([]series.ProcessValue, 0, len(predictions))
	for _, p := range predictions {
		if !p.Timestamp.After(last.Timestamp) {
			continue
		}
		out = append(out, series.NewProcessValue(p.Value, unit, series.QualityUncertain, p.Timestamp))
	}
	a.observe(s.Selector, true)
	return out
}

func (a *Adapter) observe(selector series.Selector, ok bool) {
	if a.observer != nil {
		a.observer.ObserveForecast(string(selector), ok)
	}
}
