package trigger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronEntry tracks one armed cron-based trigger.
type cronEntry struct {
	record Record
	id     cron.EntryID
}

// CronRegistry is an alternative registry backed by a cron runner, for
// deployments that already operate one. It schedules each key as an
// "@every" job; the first firing happens one period after scheduling, so the
// firstFire argument only records intent.
type CronRegistry struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]*cronEntry
	onFire  FireFunc
}

// NewCronRegistry creates and starts a cron-backed registry.
func NewCronRegistry(onFire FireFunc) *CronRegistry {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &CronRegistry{
		cron:    c,
		entries: make(map[string]*cronEntry),
		onFire:  onFire,
	}
}

// Schedule installs or replaces the periodic trigger for key.
func (r *CronRegistry) Schedule(key string, firstFire time.Time, period time.Duration, payload []byte) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(key)

	spec := fmt.Sprintf("@every %s", period)
	id, err := r.cron.AddFunc(spec, func() {
		r.onFire(key, payload)
	})
	if err != nil {
		slog.Error("CronRegistry Schedule failed", "error", err, "key", key, "spec", spec)
		return fmt.Errorf("failed to schedule %s: %w", key, err)
	}

	r.entries[key] = &cronEntry{
		record: Record{Key: key, Period: period, FirstFire: firstFire},
		id:     id,
	}
	slog.Debug("CronRegistry Schedule succeeded", "key", key, "spec", spec)
	return nil
}

// Cancel removes the trigger for key if present.
func (r *CronRegistry) Cancel(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(key)
	return nil
}

func (r *CronRegistry) cancelLocked(key string) {
	e, exists := r.entries[key]
	if !exists {
		return
	}
	r.cron.Remove(e.id)
	delete(r.entries, key)
	slog.Debug("CronRegistry cancelled", "key", key)
}

// Active returns the currently armed triggers.
func (r *CronRegistry) Active() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		records = append(records, e.record)
	}
	return records
}

// Stop cancels all triggers and stops the cron runner.
func (r *CronRegistry) Stop() {
	r.mu.Lock()
	for key := range r.entries {
		r.cancelLocked(key)
	}
	r.mu.Unlock()
	r.cron.Stop()
}
