package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/ultralove/dod/internal/geo"
)

// MinTimeout is the shortest refresh period a subscriber may request.
const MinTimeout = 60 * time.Second

const (
	TriggerTick     = "tick"
	TriggerLocation = "location"
)

// Subscriber is anything that recomputes its data for a location.
type Subscriber interface {
	Name() string
	Refresh(ctx context.Context, loc geo.Coordinate)
}

// Observer receives dispatch notifications. Optional.
type Observer interface {
	RefreshDispatched(name, trigger string)
	RefreshSkipped(name string)
}

// Subscription is a read-only view of one registered subscriber.
type Subscription struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Timeout   time.Duration `json:"timeout"`
	Remaining time.Duration `json:"remaining"`
	InFlight  bool          `json:"inFlight"`
}

type entry struct {
	id        uuid.UUID
	sub       Subscriber
	timeout   time.Duration
	remaining time.Duration
	inflight  *atomic.Int32
}

// Scheduler keeps a countdown per subscriber and refreshes it when the
// countdown runs out or the shared location changes.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*entry
	location *geo.Coordinate

	cron           *gocron.Scheduler
	interval       time.Duration
	refreshTimeout time.Duration
	observer       Observer

	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Scheduler that ticks every interval once started. Each
// refresh gets refreshTimeout to finish.
func New(interval, refreshTimeout time.Duration, observer Observer) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if refreshTimeout <= 0 {
		refreshTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		entries:        make(map[uuid.UUID]*entry),
		cron:           gocron.NewScheduler(time.UTC),
		interval:       interval,
		refreshTimeout: refreshTimeout,
		observer:       observer,
		baseCtx:        ctx,
		cancel:         cancel,
	}
}

// Register adds sub with the given refresh period, floored to MinTimeout.
// The first refresh happens after one full period or on the next location
// change, whichever comes first.
func (s *Scheduler) Register(sub Subscriber, timeout time.Duration) uuid.UUID {
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	id := uuid.New()

	s.mu.Lock()
	s.entries[id] = &entry{
		id:        id,
		sub:       sub,
		timeout:   timeout,
		remaining: timeout,
		inflight:  atomic.NewInt32(0),
	}
	s.mu.Unlock()

	log.Printf("scheduler: registered %s (%s) every %s", sub.Name(), id, timeout)
	return id
}

// Unregister removes a subscription. A refresh already running is not
// cancelled but no further refresh is started.
func (s *Scheduler) Unregister(id uuid.UUID) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		log.Printf("scheduler: unregistered %s (%s)", e.sub.Name(), id)
	}
	return ok
}

// Tick advances every countdown by elapsed and refreshes the subscribers
// that ran out. Their countdowns are reset even when no location is known
// yet and nothing gets dispatched.
func (s *Scheduler) Tick(elapsed time.Duration) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		e.remaining -= elapsed
		if e.remaining <= 0 {
			e.remaining = e.timeout
			due = append(due, e)
		}
	}
	loc := s.location
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	if loc == nil {
		log.Printf("DEBUG: scheduler: %d refresh(es) due but no location known", len(due))
		return
	}
	for _, e := range due {
		if e.inflight.Load() > 0 {
			log.Printf("scheduler: %s still refreshing; skipping this cycle", e.sub.Name())
			if s.observer != nil {
				s.observer.RefreshSkipped(e.sub.Name())
			}
			continue
		}
		s.dispatch(e, *loc, TriggerTick)
	}
}

// OnLocationChanged stores loc as the shared location and refreshes every
// subscriber immediately, resetting all countdowns.
func (s *Scheduler) OnLocationChanged(loc geo.Coordinate) {
	s.mu.Lock()
	s.location = &loc
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		e.remaining = e.timeout
		all = append(all, e)
	}
	s.mu.Unlock()

	log.Printf("INFO: scheduler: location changed to %.5f,%.5f; refreshing %d subscriber(s)",
		loc.Latitude, loc.Longitude, len(all))
	for _, e := range all {
		s.dispatch(e, loc, TriggerLocation)
	}
}

// Location returns the last shared location, if any.
func (s *Scheduler) Location() (geo.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		return geo.Coordinate{}, false
	}
	return *s.location, true
}

// Snapshot lists all subscriptions ordered by name.
func (s *Scheduler) Snapshot() []Subscription {
	s.mu.Lock()
	out := make([]Subscription, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Subscription{
			ID:        e.id,
			Name:      e.sub.Name(),
			Timeout:   e.timeout,
			Remaining: e.remaining,
			InFlight:  e.inflight.Load() > 0,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Start drives Tick from a recurring job until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Every(s.interval).Do(func() {
		s.Tick(s.interval)
	})
	if err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	s.cron.StartAsync()
	log.Printf("scheduler: ticking every %s", s.interval)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.baseCtx.Done():
		}
	}()
	return nil
}

// Stop halts the tick, cancels running refreshes and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cron.Stop()
		s.cancel()
		s.wg.Wait()
		log.Println("scheduler: stopped")
	})
}

// Wait blocks until all dispatched refreshes have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) dispatch(e *entry, loc geo.Coordinate, trigger string) {
	if s.baseCtx.Err() != nil {
		return
	}
	e.inflight.Inc()
	s.wg.Add(1)
	if s.observer != nil {
		s.observer.RefreshDispatched(e.sub.Name(), trigger)
	}

	go func() {
		defer s.wg.Done()
		defer e.inflight.Dec()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: scheduler: refresh of %s panicked: %v", e.sub.Name(), r)
			}
		}()

		ctx, cancel := context.WithTimeout(s.baseCtx, s.refreshTimeout)
		defer cancel()
		e.sub.Refresh(ctx, loc)
	}()
}
