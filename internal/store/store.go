// Package store provides persistence backends for PulsePoll.
//
// It persists per-sensor polling intervals, boolean preference flags, and
// recorded response outcomes. Backends: in-memory, SQLite and PostgreSQL.
package store

import (
	"strings"
	"sync"

	"github.com/BTreeMap/PulsePoll/internal/models"
)

// DisabledInterval is the interval value meaning "no trigger armed". It is
// also the default returned for sensors with no persisted interval.
const DisabledInterval int64 = -1

// Preference flag keys shared between the scheduler, the composer inputs and
// the settings surface.
const (
	// FlagMasterSwitch gates all virtual sensor triggers.
	FlagMasterSwitch = "virtual_sensors_enabled"
	// FlagSound enables notification sound.
	FlagSound = "virtual_sensors_sound"
	// FlagVibrate enables notification vibration.
	FlagVibrate = "virtual_sensors_vibrate"
	// FlagInitialized guards the one-time startup arming.
	FlagInitialized = "virtual_sensors_initialised"
	// FlagRecoveryArmed tells the host to re-arm all triggers at startup.
	FlagRecoveryArmed = "virtual_sensors_rearm_on_start"
)

// Store defines the persistence contract the core consumes.
type Store interface {
	// GetInterval returns the persisted polling interval in minutes for a
	// sensor, or DisabledInterval when none is set.
	GetInterval(sensorID string) (int64, error)
	// SetInterval persists the polling interval for a sensor.
	SetInterval(sensorID string, minutes int64) error
	// GetFlag returns a boolean preference flag, false when unset.
	GetFlag(key string) (bool, error)
	// SetFlag persists a boolean preference flag.
	SetFlag(key string, value bool) error
	// SaveOutcome records a delivered response outcome.
	SaveOutcome(o models.ResponseOutcome) error
	// GetOutcomes returns all recorded outcomes in insertion order.
	GetOutcomes() ([]models.ResponseOutcome, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Shared by the
// store constructors and the notifier channel database setup.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory store, used in tests and as the
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu        sync.RWMutex
	intervals map[string]int64
	flags     map[string]bool
	outcomes  []models.ResponseOutcome
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		intervals: make(map[string]int64),
		flags:     make(map[string]bool),
	}
}

func (s *InMemoryStore) GetInterval(sensorID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.intervals[sensorID]; ok {
		return v, nil
	}
	return DisabledInterval, nil
}

func (s *InMemoryStore) SetInterval(sensorID string, minutes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[sensorID] = minutes
	return nil
}

func (s *InMemoryStore) GetFlag(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[key], nil
}

func (s *InMemoryStore) SetFlag(key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
	return nil
}

func (s *InMemoryStore) SaveOutcome(o models.ResponseOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *InMemoryStore) GetOutcomes() ([]models.ResponseOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ResponseOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
