package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ultralove/dod/internal/pipeline"
)

var (
	// ErrNotFound is returned when no result is available for a key.
	ErrNotFound = errors.New("no result for key")
)

// resultHistory holds the results of one key, oldest first.
type resultHistory struct {
	Results []pipeline.Result
}

// MemoryStore is a concurrency-safe in-memory result store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: controller:selector
	data map[string]*resultHistory

	// retention configuration
	maxHistory int           // max number of results per key
	maxAge     time.Duration // optional max age of results
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*resultHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveResult appends a result and enforces retention. The most recent
// result is always kept, however old.
func (s *MemoryStore) SaveResult(_ context.Context, r pipeline.Result) error {
	key := r.Key().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &resultHistory{}
		s.data[key] = history
	}
	history.Results = append(history.Results, r)
	history.Results = retain(history.Results, s.maxHistory, s.maxAge, s.now())
	return nil
}

// GetLatest returns the most recent result for key.
func (s *MemoryStore) GetLatest(_ context.Context, key pipeline.Key) (pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key.String()]
	if !ok || len(history.Results) == 0 {
		return pipeline.Result{}, ErrNotFound
	}
	return history.Results[len(history.Results)-1], nil
}

// GetRange returns all results for key computed between from and to (inclusive).
func (s *MemoryStore) GetRange(_ context.Context, key pipeline.Key, from, to time.Time) ([]pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key.String()]
	if !ok || len(history.Results) == 0 {
		return nil, ErrNotFound
	}

	var result []pipeline.Result
	for _, r := range history.Results {
		if inRange(r.ComputedAt, from, to) {
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// retain trims results by count and by age, oldest first.
func retain(results []pipeline.Result, maxHistory int, maxAge time.Duration, now time.Time) []pipeline.Result {
	if maxHistory > 0 && len(results) > maxHistory {
		results = results[len(results)-maxHistory:]
	}
	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		i := 0
		for ; i < len(results)-1; i++ {
			if !results[i].ComputedAt.Before(cutoff) {
				break
			}
		}
		results = results[i:]
	}
	return results
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
