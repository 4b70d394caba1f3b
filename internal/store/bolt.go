package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ultralove/dod/internal/pipeline"
)

// Current schema version. Bump when bucket layout or key format changes.
const boltSchemaVersion = 1

var (
	bucketResults  = []byte("results")
	bucketInternal = []byte("_meta")
)

// BoltStore keeps results in a local bbolt file. Every key gets a nested
// bucket inside "results" whose entries are ordered by computation time.
type BoltStore struct {
	db         *bolt.DB
	maxHistory int
	maxAge     time.Duration
	now        func() time.Time
}

// OpenBolt opens (or creates) the database at path with the given retention.
func OpenBolt(path string, maxHistory int, maxAge time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &BoltStore{db: db, maxHistory: maxHistory, maxAge: maxAge, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *BoltStore) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketResults, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", boltSchemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Results ──────────────────────────────────────────────────────────────────

// timeKey encodes ts so that byte order matches time order.
func timeKey(ts time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(ts.UnixNano()))
	return b
}

// SaveResult appends r under its key and enforces retention.
func (s *BoltStore) SaveResult(_ context.Context, r pipeline.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketResults).CreateBucketIfNotExists([]byte(r.Key().String()))
		if err != nil {
			return err
		}
		if err := b.Put(timeKey(r.ComputedAt), data); err != nil {
			return err
		}
		return s.trim(b)
	})
}

// trim drops the oldest entries beyond maxHistory and those older than
// maxAge, always keeping the newest one.
func (s *BoltStore) trim(b *bolt.Bucket) error {
	c := b.Cursor()
	n := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	var cutoff []byte
	if s.maxAge > 0 {
		cutoff = timeKey(s.now().Add(-s.maxAge))
	}

	var stale [][]byte
	for k, _ := c.First(); k != nil && n-len(stale) > 1; k, _ = c.Next() {
		overCount := s.maxHistory > 0 && n-len(stale) > s.maxHistory
		tooOld := cutoff != nil && string(k) < string(cutoff)
		if !overCount && !tooOld {
			break
		}
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// GetLatest returns the most recent result for key.
func (s *BoltStore) GetLatest(_ context.Context, key pipeline.Key) (pipeline.Result, error) {
	var r pipeline.Result
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults).Bucket([]byte(key.String()))
		if b == nil {
			return nil
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("decoding result %s: %w", key, err)
	}
	if !found {
		return pipeline.Result{}, ErrNotFound
	}
	return r, nil
}

// GetRange returns results for key computed between from and to (inclusive).
func (s *BoltStore) GetRange(_ context.Context, key pipeline.Key, from, to time.Time) ([]pipeline.Result, error) {
	var out []pipeline.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults).Bucket([]byte(key.String()))
		if b == nil {
			return nil
		}
		end := string(timeKey(to))
		c := b.Cursor()
		for k, v := c.Seek(timeKey(from)); k != nil && string(k) <= end; k, v = c.Next() {
			var r pipeline.Result
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding results %s: %w", key, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
