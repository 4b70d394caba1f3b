package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/location"
	"github.com/ultralove/dod/internal/pipeline"
	"github.com/ultralove/dod/internal/series"
	"github.com/ultralove/dod/internal/store"
)

var inspectFlags struct {
	Latitude   float64
	Longitude  float64
	Controller string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Refresh every controller once for a position and print the results",
	Example: `  dod inspect --lat 50.7374 --lon 7.0982
  dod inspect --lat 50.7374 --lon 7.0982 --controller water-level`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.Float64Var(&inspectFlags.Latitude, "lat", 0, "latitude in decimal degrees")
	f.Float64Var(&inspectFlags.Longitude, "lon", 0, "longitude in decimal degrees")
	f.StringVar(&inspectFlags.Controller, "controller", "", "only run the named controller")
	inspectCmd.MarkFlagRequired("lat")
	inspectCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := geo.Coordinate{Latitude: inspectFlags.Latitude, Longitude: inspectFlags.Longitude}
	if err := location.Validate(loc); err != nil {
		return err
	}

	table := cfg.Controllers
	if inspectFlags.Controller != "" {
		table = nil
		for _, spec := range cfg.Controllers {
			if spec.Name == inspectFlags.Controller {
				table = append(table, spec)
			}
		}
		if len(table) == 0 {
			return fmt.Errorf("unknown controller %q", inspectFlags.Controller)
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	controllers, err := pipeline.Build(table, pipeline.BuildOptions{
		HTTPClient:     httpClient,
		ForecastEngine: newForecastEngine(cfg, httpClient, nil),
		Store:          store.NewMemoryStore(1, 0),
		RatePerSec:     cfg.ProviderRate,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RefreshTimeout)
	defer cancel()

	var results []pipeline.Result
	for _, c := range controllers {
		rs, err := c.Run(ctx, loc)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", c.Name(), err)
			continue
		}
		results = append(results, rs...)
	}
	if len(results) == 0 {
		return fmt.Errorf("no results for %.4f,%.4f", loc.Latitude, loc.Longitude)
	}
	renderResults(cmd.OutOrStdout(), results)
	return nil
}

// renderResults prints one row per processed series.
func renderResults(w io.Writer, results []pipeline.Result) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Controller", "Selector", "Station", "Distance", "Latest", "Nowcast", "Forecast"})
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	for _, r := range results {
		station := r.Entity.Name
		if r.Synchronized {
			station += " *"
		}
		latest := "-"
		if n := len(r.Values); n > 0 {
			latest = formatValue(r.Values[n-1], r.Display.Precision)
		}
		nowcast := "-"
		if r.Nowcast != nil {
			nowcast = formatValue(*r.Nowcast, r.Display.Precision)
		}
		tw.Append([]string{
			r.Controller,
			string(r.Selector),
			station,
			fmt.Sprintf("%.1f km", r.DistanceMeters/1000),
			latest,
			nowcast,
			strconv.Itoa(len(r.Forecast)),
		})
	}
	tw.Render()
}

func formatValue(v series.ProcessValue, precision int) string {
	s := strconv.FormatFloat(v.Quantity.Value, 'f', precision, 64)
	if v.Quantity.Unit != "" {
		s += " " + string(v.Quantity.Unit)
	}
	if v.Quality != series.QualityGood {
		s += " (" + v.Quality.String() + ")"
	}
	return s
}
