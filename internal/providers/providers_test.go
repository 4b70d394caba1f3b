package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/ultralove/dod/internal/forecast"
	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/series"
)

func testClient(t *testing.T, name string) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		Name: name,
		Backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	})
}

func serveJSON(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := testClient(t, "retry").GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, got ok=%v calls=%d", out.OK, calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var out any
	err := testClient(t, "notfound").GetJSON(context.Background(), srv.URL, &out)
	if !errors.Is(err, errUnexpected) {
		t.Fatalf("expected unexpected status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("404 should not be retried, got %d calls", calls.Load())
	}
}

func TestClientGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out any
	err := testClient(t, "throttled").GetJSON(context.Background(), srv.URL, &out)
	if !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestEntityFeedGeneric(t *testing.T) {
	srv := serveJSON(t, `[
		{"id":"s500","name":"Rhein-Km 500","latitude":50.70,"longitude":7.15},
		{"id":"","name":"no id","latitude":1,"longitude":1},
		{"id":"s2","name":"no position"},
		{"id":"s3","name":"off the globe","latitude":123,"longitude":7}
	]`)
	feed, err := NewEntityFeed(testClient(t, "generic"), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := feed.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := geo.NamedEntity{ID: "s500", Name: "Rhein-Km 500", Location: geo.Coordinate{Latitude: 50.70, Longitude: 7.15}}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("unexpected entities %+v", got)
	}
}

func TestEntityFeedPegelonline(t *testing.T) {
	body := `[{"uuid":"593647aa","longname":"BONN","latitude":50.736,"longitude":7.106,"water":{"longname":"RHEIN"}}]`

	stations, err := NewEntityFeed(testClient(t, "pegel"), serveJSON(t, body).URL, FormatPegelonline)
	if err != nil {
		t.Fatal(err)
	}
	got, err := stations.Fetch(context.Background())
	if err != nil || len(got) != 1 || got[0].ID != "593647aa" || got[0].Name != "BONN" {
		t.Fatalf("stations: %+v %v", got, err)
	}

	waters, err := NewEntityFeed(testClient(t, "pegel-waters"), serveJSON(t, body).URL, FormatPegelonlineWaters)
	if err != nil {
		t.Fatal(err)
	}
	got, err = waters.Fetch(context.Background())
	if err != nil || len(got) != 1 || got[0].Name != "RHEIN" {
		t.Fatalf("waters: %+v %v", got, err)
	}

	gauges, err := NewEntityFeed(testClient(t, "pegel-gauges"), serveJSON(t, body).URL, FormatPegelonlineGauges)
	if err != nil {
		t.Fatal(err)
	}
	got, err = gauges.Fetch(context.Background())
	if err != nil || len(got) != 1 || got[0].ID != "593647aa" || got[0].Name != "BONN (RHEIN)" {
		t.Fatalf("gauges: %+v %v", got, err)
	}
}

func TestEntityFeedEmptyIsNoData(t *testing.T) {
	feed, _ := NewEntityFeed(testClient(t, "empty"), serveJSON(t, `[]`).URL, FormatGeneric)
	if _, err := feed.Fetch(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := NewEntityFeed(nil, "", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestMeasurementFeed(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`[
			{"timestamp":"2024-05-01T12:00:00+02:00","value":312},
			{"timestamp":"yesterday","value":1},
			{"timestamp":"2024-05-01T11:00:00Z"},
			{"timestamp":"2024-05-01T11:15:00Z","value":315.5}
		]`))
	}))
	defer srv.Close()

	feed := NewMeasurementFeed(testClient(t, "pegel-w"), srv.URL+"/stations/{id}/{selector}/measurements.json", "cm")
	s, err := feed.Fetch(context.Background(), "593647aa", "W")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if path != "/stations/593647aa/W/measurements.json" {
		t.Fatalf("unexpected path %q", path)
	}
	if s.IsRegular() || s.Selector != "W" || s.Len() != 2 {
		t.Fatalf("unexpected series %+v", s)
	}
	first := s.Values[0]
	if !first.Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) || first.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp not normalized to UTC: %s", first.Timestamp)
	}
	for _, v := range s.Values {
		if v.Quality != series.QualityGood || v.Quantity.Unit != "cm" {
			t.Fatalf("unexpected value %+v", v)
		}
	}
}

func TestMeasurementFeedMalformedIsNoData(t *testing.T) {
	feed := NewMeasurementFeed(testClient(t, "bad"), serveJSON(t, `[{"timestamp":"x","value":1}]`).URL, "cm")
	if _, err := feed.Fetch(context.Background(), "id", "W"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	broken := NewMeasurementFeed(testClient(t, "broken"), serveJSON(t, `{not json`).URL, "cm")
	if _, err := broken.Fetch(context.Background(), "id", "W"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestForecastEngine(t *testing.T) {
	var req predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"predictions":[{"timestamp":"2024-05-01T03:00:00Z","value":4.5}]}`))
	}))
	defer srv.Close()

	engine := NewForecastEngine(testClient(t, "engine"), srv.URL)
	history := []forecast.Point{
		{Timestamp: time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC), Value: 3},
		{Timestamp: time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC), Value: 4},
	}
	cfg := forecast.Config{Order: forecast.Order{AR: 2, Differencing: 1, MA: 1}, Interval: time.Hour}

	got, err := engine.Predict(context.Background(), cfg, history, 6*time.Hour)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(got) != 1 || got[0].Value != 4.5 {
		t.Fatalf("unexpected predictions %+v", got)
	}
	if req.IntervalSeconds != 3600 || req.HorizonSeconds != 21600 || req.Order.AR != 2 || len(req.History) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestGeocoder(t *testing.T) {
	if name, err := NewGeocoder("").PlaceName(context.Background(), geo.Coordinate{}); name != "" || err != nil {
		t.Fatalf("disabled geocoder returned %q, %v", name, err)
	}

	g := &Geocoder{reverse: func(loc geocoder.Location) ([]geocoder.Address, error) {
		return []geocoder.Address{{}, {City: "Bonn"}}, nil
	}}
	name, err := g.PlaceName(context.Background(), geo.Coordinate{Latitude: 50.73, Longitude: 7.1})
	if err != nil || name != "Bonn" {
		t.Fatalf("expected Bonn, got %q, %v", name, err)
	}

	failing := &Geocoder{reverse: func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("quota exceeded")
	}}
	if _, err := failing.PlaceName(context.Background(), geo.Coordinate{}); err == nil {
		t.Fatal("expected geocoder error")
	}
}
