package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ultralove/dod/internal/geo"
	"github.com/ultralove/dod/internal/pipeline"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	// HTTPTimeout bounds every upstream request.
	HTTPTimeout time.Duration `validate:"gt=0"`
	// TickInterval is the scheduler resolution.
	TickInterval time.Duration `validate:"gt=0"`
	// RefreshTimeout bounds one controller refresh.
	RefreshTimeout time.Duration `validate:"gt=0"`

	StoreDriver     string        `validate:"oneof=memory bolt postgres"`
	StoreMaxHistory int           `validate:"gte=0"` // max number of results per key (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of results (0 = unlimited)
	BoltPath        string        `validate:"required_if=StoreDriver bolt"`
	DatabaseURL     string        `validate:"required_if=StoreDriver postgres"`

	ForecastURL    string  `validate:"omitempty,url"`
	GeocoderAPIKey string
	ProviderRate   float64 `validate:"gte=0"`

	// Location is the static start position, if configured.
	Location *geo.Coordinate

	Controllers []pipeline.ControllerSpec `validate:"required,min=1,dive"`
}

// controllersFile is the YAML document read from DOD_CONTROLLERS_FILE.
type controllersFile struct {
	Controllers []pipeline.ControllerSpec `yaml:"controllers"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = getenvDuration("TICK_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout, err = getenvDuration("REFRESH_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", "memory")
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // a day of 15-minute refreshes
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}
	cfg.BoltPath = getenvDefault("BOLT_PATH", "data/dod.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.ForecastURL = os.Getenv("FORECAST_URL")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.ProviderRate = getenvFloat("PROVIDER_RATE", 2)

	if cfg.Location, err = loadStaticLocation(); err != nil {
		return nil, err
	}

	cfg.Controllers = pipeline.DefaultTable()
	if path := os.Getenv("DOD_CONTROLLERS_FILE"); path != "" {
		if cfg.Controllers, err = LoadControllers(path); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadControllers reads a controller table from a YAML file.
func LoadControllers(path string) ([]pipeline.ControllerSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read controllers file: %w", err)
	}
	var doc controllersFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse controllers file %s: %w", path, err)
	}
	if len(doc.Controllers) == 0 {
		return nil, fmt.Errorf("controllers file %s defines no controllers", path)
	}
	return doc.Controllers, nil
}

// Validate checks the struct tags of cfg and its controller table.
func Validate(cfg *AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	seen := make(map[string]bool, len(cfg.Controllers))
	for _, c := range cfg.Controllers {
		if seen[c.Name] {
			return fmt.Errorf("invalid configuration: duplicate controller %q", c.Name)
		}
		seen[c.Name] = true
		if _, err := c.Smoothing.Smoother(); err != nil {
			return fmt.Errorf("invalid configuration: controller %s: %w", c.Name, err)
		}
	}
	return nil
}

func loadStaticLocation() (*geo.Coordinate, error) {
	lat, lon := os.Getenv("LOCATION_LAT"), os.Getenv("LOCATION_LON")
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("LOCATION_LAT and LOCATION_LON must be set together")
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCATION_LAT: %w", err)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCATION_LON: %w", err)
	}
	return &geo.Coordinate{Latitude: latitude, Longitude: longitude}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
