// Package trigger implements the periodic trigger primitive the scheduler
// drives: a registry of repeating firings keyed by sensor id.
//
// Scheduling an already-registered key replaces the prior trigger, so the
// registry can never accumulate duplicate periodic callbacks for one sensor.
package trigger

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// FireFunc is invoked on every trigger firing with the key and the payload
// captured at scheduling time.
type FireFunc func(key string, payload []byte)

// Record describes one armed trigger for inspection.
type Record struct {
	Key       string
	Period    time.Duration
	FirstFire time.Time
}

// Registry is the contract the scheduler consumes.
type Registry interface {
	// Schedule installs a periodic trigger, replacing any prior trigger for
	// the same key. The first firing happens at firstFire, then every period.
	Schedule(key string, firstFire time.Time, period time.Duration, payload []byte) error
	// Cancel removes the trigger for a key; no-op when absent.
	Cancel(key string) error
	// Active returns the currently armed triggers.
	Active() []Record
	// Stop cancels every trigger and shuts the registry down.
	Stop()
}

// ErrInvalidPeriod is reported for non-positive periods.
var ErrInvalidPeriod = errors.New("trigger period must be positive")

// timerEntry tracks one armed timer-based trigger.
type timerEntry struct {
	record  Record
	payload []byte
	timer   *time.Timer
	stop    chan struct{}
	stopped bool
}

// TimerRegistry is the default in-process registry built on the standard
// timer. The first firing honors firstFire exactly; subsequent firings tick
// at the period.
type TimerRegistry struct {
	mu      sync.Mutex
	entries map[string]*timerEntry
	onFire  FireFunc
}

// NewTimerRegistry creates a registry delivering firings to onFire.
func NewTimerRegistry(onFire FireFunc) *TimerRegistry {
	slog.Debug("Creating TimerRegistry")
	return &TimerRegistry{
		entries: make(map[string]*timerEntry),
		onFire:  onFire,
	}
}

// Schedule installs or replaces the periodic trigger for key.
func (r *TimerRegistry) Schedule(key string, firstFire time.Time, period time.Duration, payload []byte) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(key)

	e := &timerEntry{
		record:  Record{Key: key, Period: period, FirstFire: firstFire},
		payload: payload,
		stop:    make(chan struct{}),
	}

	delay := time.Until(firstFire)
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() {
		r.fire(key, e)
		r.tick(key, e)
	})
	r.entries[key] = e

	slog.Debug("TimerRegistry Schedule succeeded", "key", key, "period", period, "first_fire", firstFire)
	return nil
}

// tick repeats firings at the period until the entry is replaced or cancelled.
func (r *TimerRegistry) tick(key string, e *timerEntry) {
	ticker := time.NewTicker(e.record.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.fire(key, e)
		case <-e.stop:
			return
		}
	}
}

// fire delivers one firing if e is still the current entry for key.
func (r *TimerRegistry) fire(key string, e *timerEntry) {
	r.mu.Lock()
	current := r.entries[key] == e
	payload := e.payload
	r.mu.Unlock()
	if !current {
		return
	}
	slog.Debug("TimerRegistry firing", "key", key)
	r.onFire(key, payload)
}

// Cancel removes the trigger for key if present.
func (r *TimerRegistry) Cancel(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(key)
	return nil
}

func (r *TimerRegistry) cancelLocked(key string) {
	e, exists := r.entries[key]
	if !exists {
		return
	}
	e.timer.Stop()
	if !e.stopped {
		e.stopped = true
		close(e.stop)
	}
	delete(r.entries, key)
	slog.Debug("TimerRegistry cancelled", "key", key)
}

// Active returns the currently armed triggers.
func (r *TimerRegistry) Active() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		records = append(records, e.record)
	}
	return records
}

// Stop cancels all triggers.
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	slog.Debug("TimerRegistry stopping", "count", len(r.entries))
	for key := range r.entries {
		r.cancelLocked(key)
	}
}
