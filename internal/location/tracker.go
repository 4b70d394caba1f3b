package location

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/ultralove/dod/internal/geo"
)

// DefaultDeadband is the movement below which updates are ignored.
const DefaultDeadband = 100.0

// Listener is notified of significant location changes.
type Listener interface {
	OnLocationChanged(loc geo.Coordinate)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(loc geo.Coordinate)

func (f ListenerFunc) OnLocationChanged(loc geo.Coordinate) { f(loc) }

// Tracker filters raw position updates and forwards only those that moved
// further than the deadband from the last forwarded position.
type Tracker struct {
	mu        sync.Mutex
	deadband  float64
	current   *geo.Coordinate
	listeners []Listener
}

// NewTracker creates a Tracker. A non-positive deadband means DefaultDeadband.
func NewTracker(deadband float64, listeners ...Listener) *Tracker {
	if deadband <= 0 {
		deadband = DefaultDeadband
	}
	return &Tracker{deadband: deadband, listeners: listeners}
}

// Subscribe adds a listener.
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Update feeds a raw position. It returns true when the position was
// accepted and listeners were notified.
func (t *Tracker) Update(loc geo.Coordinate) (bool, error) {
	if err := Validate(loc); err != nil {
		return false, err
	}

	t.mu.Lock()
	if t.current != nil && !geo.Moved(*t.current, loc, t.deadband) {
		t.mu.Unlock()
		return false, nil
	}
	t.current = &loc
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	log.Printf("INFO: location: accepted %.5f,%.5f", loc.Latitude, loc.Longitude)
	for _, l := range listeners {
		l.OnLocationChanged(loc)
	}
	return true, nil
}

// Current returns the last accepted position.
func (t *Tracker) Current() (geo.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return geo.Coordinate{}, false
	}
	return *t.current, true
}

// Validate rejects coordinates outside the valid degree ranges.
func Validate(loc geo.Coordinate) error {
	if math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude) ||
		math.Abs(loc.Latitude) > 90 || math.Abs(loc.Longitude) > 180 {
		return fmt.Errorf("invalid coordinate %v,%v", loc.Latitude, loc.Longitude)
	}
	return nil
}
