package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/pipeline"
	"github.com/ultralove/dod/internal/series"
)

func TestRenderResults(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	nowcast := series.NewProcessValue(318.4, "cm", series.QualityUncertain, ts.Add(time.Hour))
	results := []pipeline.Result{{
		Controller:     "water-level",
		Selector:       "W",
		Entity:         geo.NamedEntity{ID: "s500", Name: "Bonn"},
		Synchronized:   true,
		DistanceMeters: 2360,
		Display:        pipeline.Display{Precision: 1},
		Values: []series.ProcessValue{
			series.NewProcessValue(312, "cm", series.QualityGood, ts),
		},
		Nowcast: &nowcast,
		Forecast: []series.ProcessValue{
			series.NewProcessValue(320, "cm", series.QualityUncertain, ts.Add(2*time.Hour)),
		},
	}}

	var buf bytes.Buffer
	renderResults(&buf, results)
	out := buf.String()

	for _, want := range []string{"CONTROLLER", "water-level", "Bonn *", "2.4 km", "312.0 cm", "318.4 cm (" + series.QualityUncertain.String() + ")"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
