package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/ultralove/dod/internal/forecast"
)

// ForecastEngine is a forecast.Engine backed by an HTTP model service.
type ForecastEngine struct {
	client *Client
	url    string
}

// NewForecastEngine creates a ForecastEngine posting to url.
func NewForecastEngine(client *Client, url string) *ForecastEngine {
	return &ForecastEngine{client: client, url: url}
}

type predictRequest struct {
	Order           forecast.Order   `json:"order"`
	IntervalSeconds int64            `json:"interval_seconds"`
	History         []forecast.Point `json:"history"`
	HorizonSeconds  int64            `json:"horizon_seconds"`
}

type predictResponse struct {
	Predictions []forecast.Point `json:"predictions"`
}

// Predict implements forecast.Engine.
func (e *ForecastEngine) Predict(ctx context.Context, cfg forecast.Config, history []forecast.Point, horizon time.Duration) ([]forecast.Point, error) {
	req := predictRequest{
		Order:           cfg.Order,
		IntervalSeconds: int64(cfg.Interval / time.Second),
		History:         history,
		HorizonSeconds:  int64(horizon / time.Second),
	}
	var resp predictResponse
	if err := e.client.PostJSON(ctx, e.url, req, &resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return resp.Predictions, nil
}
