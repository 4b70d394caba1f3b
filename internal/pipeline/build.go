package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ultralove/dod/internal/forecast"
	"github.com/ultralove/dod/internal/providers"
	"github.com/ultralove/dod/internal/series"
)

// BuildOptions carry what the controllers built from a table share.
type BuildOptions struct {
	HTTPClient *http.Client
	// ForecastEngine, when set, gets one adapter per controller carrying
	// that controller's model order. Forecaster overrides it for all rows.
	ForecastEngine   forecast.Engine
	ForecastObserver forecast.Observer
	Forecaster       Forecaster
	Store      Store
	Observer   Observer
	// RequestObserver is handed to every provider client.
	RequestObserver providers.RequestObserver
	// RatePerSec is used for rows that do not set their own rate.
	RatePerSec float64
}

// Build creates one Controller per table row, each with its own resilient
// provider client.
func Build(table []ControllerSpec, opts BuildOptions) ([]*Controller, error) {
	seen := make(map[string]bool, len(table))
	controllers := make([]*Controller, 0, len(table))

	for _, spec := range table {
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate controller %q", spec.Name)
		}
		seen[spec.Name] = true

		rate := spec.RatePerSec
		if rate == 0 {
			rate = opts.RatePerSec
		}
		client := providers.NewClient(providers.ClientConfig{
			Name:       spec.Name,
			Client:     opts.HTTPClient,
			RatePerSec: rate,
			Observer:   opts.RequestObserver,
		})

		primary, err := providers.NewEntityFeed(client, spec.Entities.URL, spec.Entities.Format)
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", spec.Name, err)
		}
		deps := ControllerDeps{
			Primary:      primary,
			Measurements: newSelectorFeeds(client, spec),
			Forecaster:   forecasterFor(spec, opts),
			Store:        opts.Store,
			Observer:     opts.Observer,
		}
		if spec.Waters != nil {
			waters, err := providers.NewEntityFeed(client, spec.Waters.URL, spec.Waters.Format)
			if err != nil {
				return nil, fmt.Errorf("controller %s: %w", spec.Name, err)
			}
			deps.Secondary = waters
		}

		c, err := NewController(spec, deps)
		if err != nil {
			return nil, err
		}
		controllers = append(controllers, c)
	}
	return controllers, nil
}

func forecasterFor(spec ControllerSpec, opts BuildOptions) Forecaster {
	if opts.Forecaster != nil {
		return opts.Forecaster
	}
	if opts.ForecastEngine == nil {
		return nil
	}
	order := spec.Order
	if order == (forecast.Order{}) {
		order = forecast.DefaultOrder
	}
	return forecast.NewAdapter(opts.ForecastEngine, order, opts.ForecastObserver)
}

// selectorFeeds routes each selector to a feed stamping that selector's unit.
type selectorFeeds map[series.Selector]*providers.MeasurementFeed

func newSelectorFeeds(client *providers.Client, spec ControllerSpec) selectorFeeds {
	feeds := make(selectorFeeds, len(spec.Selectors))
	for _, sel := range spec.Selectors {
		feeds[sel.Name] = providers.NewMeasurementFeed(client, spec.Measurements, sel.Unit)
	}
	return feeds
}

func (f selectorFeeds) Fetch(ctx context.Context, entityID string, selector series.Selector) (series.Series, error) {
	feed, ok := f[selector]
	if !ok {
		return series.Series{}, fmt.Errorf("unknown selector %q", selector)
	}
	return feed.Fetch(ctx, entityID, selector)
}
