package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ultralove/dod/internal/pipeline"
)

// Options selects and configures a store backend.
type Options struct {
	Driver      string // memory | bolt | postgres
	BoltPath    string
	DatabaseURL string
	MaxHistory  int
	MaxAge      time.Duration
}

// Open returns the configured backend and a function releasing it.
func Open(ctx context.Context, opts Options) (pipeline.Store, func(), error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(opts.MaxHistory, opts.MaxAge), func() {}, nil
	case "bolt":
		s, err := OpenBolt(opts.BoltPath, opts.MaxHistory, opts.MaxAge)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, opts.DatabaseURL, opts.MaxHistory, opts.MaxAge)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
