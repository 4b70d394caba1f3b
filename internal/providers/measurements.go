package providers

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/ultralove/dod/internal/series"
)

// MeasurementFeed fetches the raw history of one selector for one entity.
// The URL template may contain {id} and {selector}.
type MeasurementFeed struct {
	client   *Client
	template string
	unit     series.Unit
}

// NewMeasurementFeed creates a MeasurementFeed producing values in unit.
func NewMeasurementFeed(client *Client, template string, unit series.Unit) *MeasurementFeed {
	return &MeasurementFeed{client: client, template: template, unit: unit}
}

type measurementRow struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
}

// URL expands the template for an entity and selector.
func (f *MeasurementFeed) URL(entityID string, selector series.Selector) string {
	return strings.NewReplacer(
		"{id}", url.PathEscape(entityID),
		"{selector}", url.PathEscape(string(selector)),
	).Replace(f.template)
}

// Fetch returns the observed values as an irregular series. Every observed
// point is good. Rows with an unparsable timestamp or a missing or
// non-finite value are skipped; nothing usable is ErrNoData.
func (f *MeasurementFeed) Fetch(ctx context.Context, entityID string, selector series.Selector) (series.Series, error) {
	var rows []measurementRow
	if err := f.client.GetJSON(ctx, f.URL(entityID, selector), &rows); err != nil {
		return series.Series{}, err
	}

	values := make([]series.ProcessValue, 0, len(rows))
	var skipped int
	for _, r := range rows {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil || r.Value == nil || math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
			skipped++
			continue
		}
		values = append(values, series.NewProcessValue(*r.Value, f.unit, series.QualityGood, ts))
	}

	if skipped > 0 {
		log.Printf("DEBUG: %s: skipped %d malformed rows for %s/%s", f.client.Name(), skipped, entityID, selector)
	}
	if len(values) == 0 {
		return series.Series{}, fmt.Errorf("%s %s/%s: %w", f.client.Name(), entityID, selector, ErrNoData)
	}
	return series.Raw(selector, values), nil
}

func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
