package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/providers"
	"github.com/ultralove/dod/internal/resolver"
	"github.com/ultralove/dod/internal/series"
)

// ErrNoCoverage means no entity serves the requested location.
var ErrNoCoverage = errors.New("no data source covers location")

// EntitySource lists the entities a controller can resolve against.
type EntitySource interface {
	Fetch(ctx context.Context) ([]geo.NamedEntity, error)
}

// MeasurementSource returns the raw history of one selector for one entity.
type MeasurementSource interface {
	Fetch(ctx context.Context, entityID string, selector series.Selector) (series.Series, error)
}

// Forecaster predicts the continuation of a regularized series.
type Forecaster interface {
	Forecast(ctx context.Context, s series.Series, horizon time.Duration) []series.ProcessValue
}

// Controller recomputes every selector of one table row for a location.
// It satisfies scheduler.Subscriber.
type Controller struct {
	spec         ControllerSpec
	primary      EntitySource
	secondary    EntitySource
	measurements MeasurementSource
	resolver     *resolver.Resolver
	smoother     series.Smoother
	forecaster   Forecaster
	store        Store
	observer     Observer
	limit        int
	now          func() time.Time

	mu          sync.Mutex
	association *resolver.Association
}

// ControllerDeps are the collaborators of a Controller. Secondary,
// Forecaster and Observer may be nil.
type ControllerDeps struct {
	Primary      EntitySource
	Secondary    EntitySource
	Measurements MeasurementSource
	Forecaster   Forecaster
	Store        Store
	Observer     Observer
	// Concurrency bounds parallel selector refreshes; zero means 4.
	Concurrency int
}

// NewController wires a Controller for spec.
func NewController(spec ControllerSpec, deps ControllerDeps) (*Controller, error) {
	if deps.Primary == nil || deps.Measurements == nil || deps.Store == nil {
		return nil, fmt.Errorf("controller %s: entity source, measurement source and store are required", spec.Name)
	}
	if spec.Step <= 0 {
		return nil, fmt.Errorf("controller %s: %w", spec.Name, series.ErrInvalidStep)
	}
	smoother, err := spec.Smoothing.Smoother()
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", spec.Name, err)
	}
	limit := deps.Concurrency
	if limit <= 0 {
		limit = 4
	}

	return &Controller{
		spec:         spec,
		primary:      deps.Primary,
		secondary:    deps.Secondary,
		measurements: deps.Measurements,
		resolver:     resolver.New(spec.SearchRadius, spec.SyncThreshold),
		smoother:     smoother,
		forecaster:   deps.Forecaster,
		store:        deps.Store,
		observer:     deps.Observer,
		limit:        limit,
		now:          time.Now,
	}, nil
}

// Name implements scheduler.Subscriber.
func (c *Controller) Name() string {
	return c.spec.Name
}

// Spec returns the table row the controller was built from.
func (c *Controller) Spec() ControllerSpec {
	return c.spec
}

// Association returns the entity resolved by the last refresh.
func (c *Controller) Association() (resolver.Association, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.association == nil {
		return resolver.Association{}, false
	}
	return *c.association, true
}

// Refresh implements scheduler.Subscriber. Failures are logged and the
// store keeps the previous results.
func (c *Controller) Refresh(ctx context.Context, loc geo.Coordinate) {
	start := time.Now()
	results, err := c.Run(ctx, loc)
	switch {
	case errors.Is(err, ErrNoCoverage):
		log.Printf("INFO: pipeline: %s: no coverage at %.5f,%.5f", c.spec.Name, loc.Latitude, loc.Longitude)
	case err != nil:
		log.Printf("ERROR: pipeline: %s: %v", c.spec.Name, err)
	default:
		log.Printf("pipeline: %s refreshed %d/%d selector(s) in %s",
			c.spec.Name, len(results), len(c.spec.Selectors), time.Since(start).Round(time.Millisecond))
	}
}

// Run performs one refresh cycle and returns the results that were stored.
// Selectors are processed concurrently; a failing selector is logged and
// skipped without affecting the others.
func (c *Controller) Run(ctx context.Context, loc geo.Coordinate) ([]Result, error) {
	start := time.Now()

	assoc, err := c.resolve(ctx, loc)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, ErrNoCoverage) {
			outcome = OutcomeNoCoverage
		}
		c.observe("", outcome, start)
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for _, sel := range c.spec.Selectors {
		sel := sel
		g.Go(func() error {
			selStart := time.Now()
			defer func() {
				if p := recover(); p != nil {
					log.Printf("ERROR: pipeline: %s/%s panicked: %v", c.spec.Name, sel.Name, p)
					c.observe(string(sel.Name), OutcomeError, selStart)
				}
			}()
			r, err := c.process(gctx, assoc, sel)
			if err != nil {
				// Do not propagate; the other selectors still run.
				log.Printf("pipeline: %s/%s: %v", c.spec.Name, sel.Name, err)
				c.observe(string(sel.Name), outcomeFor(err), selStart)
				return nil
			}
			if err := c.store.SaveResult(gctx, r); err != nil {
				log.Printf("ERROR: pipeline: %s/%s: save result: %v", c.spec.Name, sel.Name, err)
				c.observe(string(sel.Name), OutcomeError, selStart)
				return nil
			}
			c.observe(string(sel.Name), OutcomeOK, selStart)

			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Selector < results[j].Selector })
	return results, nil
}

func (c *Controller) resolve(ctx context.Context, loc geo.Coordinate) (resolver.Association, error) {
	primary, err := c.primary.Fetch(ctx)
	if errors.Is(err, providers.ErrNoData) {
		return resolver.Association{}, fmt.Errorf("%w: %v", ErrNoCoverage, err)
	}
	if err != nil {
		return resolver.Association{}, fmt.Errorf("fetch entities: %w", err)
	}

	var secondary []geo.NamedEntity
	if c.secondary != nil {
		secondary, err = c.secondary.Fetch(ctx)
		if err != nil {
			// Resolution falls back to the nearest entity.
			log.Printf("DEBUG: pipeline: %s: secondary feed unavailable: %v", c.spec.Name, err)
			secondary = nil
		}
	}

	assoc, ok := c.resolver.Resolve(loc, primary, secondary)
	if !ok {
		return resolver.Association{}, ErrNoCoverage
	}

	c.mu.Lock()
	c.association = &assoc
	c.mu.Unlock()
	return assoc, nil
}

func (c *Controller) process(ctx context.Context, assoc resolver.Association, sel SelectorSpec) (Result, error) {
	raw, err := c.measurements.Fetch(ctx, assoc.Entity.ID, sel.Name)
	if err != nil {
		return Result{}, fmt.Errorf("fetch measurements: %w", err)
	}

	s, err := raw.Regularize(c.spec.Step)
	if err != nil {
		return Result{}, err
	}
	if c.smoother != nil {
		if s, err = s.Smooth(c.smoother); err != nil {
			return Result{}, err
		}
	}

	unit := s.Unit()
	if unit == "" {
		unit = sel.Unit
	}
	r := Result{
		Controller:     c.spec.Name,
		Selector:       sel.Name,
		Entity:         assoc.Entity,
		Synchronized:   assoc.Synchronized,
		DistanceMeters: assoc.Distance,
		Location:       assoc.Location,
		ComputedAt:     c.now().UTC(),
		Unit:           unit,
		Display:        sel.Display,
		Step:           s.Step,
		Values:         s.Values,
	}

	if !c.spec.DisableNowcast {
		if nc, ok := s.Nowcast(c.spec.NowcastAlpha()); ok {
			r.Nowcast = &nc
		}
	}
	if c.forecaster != nil && c.spec.Horizon > 0 {
		r.Forecast = c.forecaster.Forecast(ctx, s, c.spec.Horizon)
	}
	return r, nil
}

func (c *Controller) observe(selector, outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRefresh(c.spec.Name, selector, outcome, time.Since(start))
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, providers.ErrNoData) || errors.Is(err, series.ErrSpanTooLarge) {
		return OutcomeNoData
	}
	return OutcomeError
}
