package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/ultralove/dod/internal/api/http"
	"github.com/ultralove/dod/internal/config"
	"github.com/ultralove/dod/internal/forecast"
	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/location"
	"github.com/ultralove/dod/internal/metrics"
	"github.com/ultralove/dod/internal/pipeline"
	"github.com/ultralove/dod/internal/providers"
	"github.com/ultralove/dod/internal/scheduler"
	"github.com/ultralove/dod/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the refresh loop and the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, storeOptions(cfg))
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	controllers, err := pipeline.Build(cfg.Controllers, pipeline.BuildOptions{
		HTTPClient:       httpClient,
		ForecastEngine:   newForecastEngine(cfg, httpClient, m),
		ForecastObserver: m,
		Store:            st,
		Observer:         m,
		RequestObserver:  m,
		RatePerSec:       cfg.ProviderRate,
	})
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.TickInterval, cfg.RefreshTimeout, m)
	for _, c := range controllers {
		id := sched.Register(c, c.Spec().Timeout)
		log.Printf("INFO: registered controller %s (%s)", c.Name(), id)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	tracker := location.NewTracker(location.DefaultDeadband,
		sched,
		location.ListenerFunc(func(geo.Coordinate) { m.LocationChanged() }),
	)
	if cfg.Location != nil {
		if _, err := tracker.Update(*cfg.Location); err != nil {
			return err
		}
	}

	app := httpapi.NewApp(true)
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Store:         st,
		Controllers:   cfg.Controllers,
		Location:      tracker,
		Subscriptions: sched,
		Geocoder:      providers.NewGeocoder(cfg.GeocoderAPIKey),
		Metrics:       m.Handler(),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: listening on :%s with %d controllers", cfg.Port, len(controllers))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}

func storeOptions(cfg *config.AppConfig) store.Options {
	return store.Options{
		Driver:      cfg.StoreDriver,
		BoltPath:    cfg.BoltPath,
		DatabaseURL: cfg.DatabaseURL,
		MaxHistory:  cfg.StoreMaxHistory,
		MaxAge:      cfg.StoreMaxAge,
	}
}

// newForecastEngine returns nil when no forecast service is configured.
func newForecastEngine(cfg *config.AppConfig, httpClient *http.Client, observer providers.RequestObserver) forecast.Engine {
	if cfg.ForecastURL == "" {
		return nil
	}
	client := providers.NewClient(providers.ClientConfig{
		Name:     "forecast",
		Client:   httpClient,
		Observer: observer,
	})
	return providers.NewForecastEngine(client, cfg.ForecastURL)
}
