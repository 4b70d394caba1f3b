package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TICK_INTERVAL", "")
	t.Setenv("DOD_CONTROLLERS_FILE", "")
	t.Setenv("LOCATION_LAT", "")
	t.Setenv("LOCATION_LON", "")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.TickInterval != time.Second || cfg.StoreDriver != "memory" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Location != nil {
		t.Fatal("no static location expected")
	}
	if len(cfg.Controllers) == 0 || cfg.Controllers[0].Name != "water-level" {
		t.Fatalf("default controller table missing: %+v", cfg.Controllers)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TICK_INTERVAL", "5s")
	t.Setenv("STORE_DRIVER", "bolt")
	t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "dod.db"))
	t.Setenv("LOCATION_LAT", "50.7374")
	t.Setenv("LOCATION_LON", "7.0982")
	t.Setenv("PROVIDER_RATE", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.TickInterval != 5*time.Second || cfg.ProviderRate != 0.5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Location == nil || cfg.Location.Latitude != 50.7374 {
		t.Fatalf("static location not parsed: %+v", cfg.Location)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":      {"TICK_INTERVAL": "soon"},
		"unknown driver":    {"STORE_DRIVER": "redis"},
		"postgres no url":   {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"half location":     {"LOCATION_LAT": "50.1", "LOCATION_LON": ""},
		"bad forecast url":  {"FORECAST_URL": "not a url"},
		"missing yaml file": {"DOD_CONTROLLERS_FILE": "/nonexistent/controllers.yaml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

const controllersYAML = `
controllers:
  - name: air
    timeout: 30m
    step: 1h
    horizon: 12h
    entities:
      url: https://example.org/stations.json
      format: generic
    measurements: https://example.org/stations/{id}/{selector}.json
    alpha: 0.5
    order: {p: 1, d: 0, q: 1}
    smoothing:
      kind: gaussian
      window: 5
      sigma: 1.5
    selectors:
      - name: pm10
        unit: "µg/m³"
        display:
          label: Particulate matter
          warning: 50
`

func TestLoadControllersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controllers.yaml")
	if err := os.WriteFile(path, []byte(controllersYAML), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOD_CONTROLLERS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Controllers) != 1 {
		t.Fatalf("expected 1 controller, got %d", len(cfg.Controllers))
	}
	c := cfg.Controllers[0]
	if c.Name != "air" || c.Timeout != 30*time.Minute || c.Step != time.Hour || c.Horizon != 12*time.Hour {
		t.Fatalf("unexpected timing %+v", c)
	}
	if c.NowcastAlpha() != 0.5 || c.Order.AR != 1 || c.Order.MA != 1 {
		t.Fatalf("unexpected model settings %+v", c)
	}
	if c.Smoothing.Kind != "gaussian" || c.Smoothing.Sigma != 1.5 {
		t.Fatalf("unexpected smoothing %+v", c.Smoothing)
	}
	sel, ok := c.Selector("pm10")
	if !ok || sel.Unit != "µg/m³" || sel.Display.Warning == nil || *sel.Display.Warning != 50 {
		t.Fatalf("unexpected selector %+v", sel)
	}
}

func TestLoadControllersFileInvalid(t *testing.T) {
	dir := t.TempDir()
	docs := map[string]string{
		"empty.yaml":     "controllers: []\n",
		"broken.yaml":    "controllers: [\n",
		"no-step.yaml":   strings.Replace(controllersYAML, "step: 1h", "step: 0s", 1),
		"bad-alpha.yaml": strings.Replace(controllersYAML, "alpha: 0.5", "alpha: 1.5", 1),
		"no-sigma.yaml":  strings.Replace(controllersYAML, "sigma: 1.5", "sigma: 0", 1),
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
				t.Fatal(err)
			}
			t.Setenv("DOD_CONTROLLERS_FILE", path)
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
