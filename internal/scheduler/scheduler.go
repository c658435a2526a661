// Package scheduler owns the mapping from sensor id to an active periodic
// trigger.
//
// Arming is idempotent: re-arming a sensor first cancels any existing
// trigger for that id, so the underlying registry can never hold duplicate
// periodic callbacks for one sensor. Registry failures are caught per sensor
// and never abort sibling sensors.
package scheduler

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/store"
	"github.com/BTreeMap/PulsePoll/internal/trigger"
)

// DefaultFirstFireDelay is how long after arming the first firing happens,
// so a trigger never fires before the caller's own setup completes.
const DefaultFirstFireDelay = 5 * time.Second

// Opts holds configuration options for the scheduler.
type Opts struct {
	FirstFireDelay time.Duration
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithFirstFireDelay overrides the delay before a newly armed trigger's
// first firing.
func WithFirstFireDelay(d time.Duration) Option {
	return func(o *Opts) { o.FirstFireDelay = d }
}

// Scheduler arms and disarms per-sensor periodic triggers from persisted
// intervals. It holds no armed-trigger state of its own; the registry tracks
// what is currently armed.
type Scheduler struct {
	catalog        *catalog.Catalog
	store          store.Store
	registry       trigger.Registry
	firstFireDelay time.Duration
}

// New creates a scheduler over the given catalog, store and registry.
func New(cat *catalog.Catalog, st store.Store, reg trigger.Registry, opts ...Option) *Scheduler {
	cfg := Opts{FirstFireDelay: DefaultFirstFireDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scheduler{
		catalog:        cat,
		store:          st,
		registry:       reg,
		firstFireDelay: cfg.FirstFireDelay,
	}
}

// InitFromPreferences arms or disarms everything according to the persisted
// master switch. This is the settings-surface entry point.
func (s *Scheduler) InitFromPreferences() {
	enabled, err := s.store.GetFlag(store.FlagMasterSwitch)
	if err != nil {
		slog.Error("Scheduler InitFromPreferences flag read failed", "error", err)
		return
	}
	if enabled {
		s.ArmAll()
	} else {
		s.DisarmAll()
	}
}

// RecoverOnStart re-arms all triggers after a process restart, but only if
// the persisted recovery flag says triggers were armed when the process last
// ran. The host invokes this once at startup.
func (s *Scheduler) RecoverOnStart() {
	armed, err := s.store.GetFlag(store.FlagRecoveryArmed)
	if err != nil {
		slog.Error("Scheduler RecoverOnStart flag read failed", "error", err)
		return
	}
	if !armed {
		slog.Debug("Scheduler RecoverOnStart: recovery not armed, skipping")
		return
	}
	slog.Info("Scheduler recovering triggers after restart")
	s.ArmAll()
}

// ArmAll reads the persisted interval of every catalog sensor and
// (re)installs a periodic trigger for each positive one, then activates the
// restart-recovery flag. Calling it twice with unchanged state leaves
// exactly one trigger per sensor. Per-sensor failures are logged and do not
// abort the remaining sensors.
func (s *Scheduler) ArmAll() {
	slog.Debug("Scheduler ArmAll")
	for _, def := range s.catalog.Definitions() {
		minutes, err := s.store.GetInterval(def.ID)
		if err != nil {
			slog.Error("Scheduler ArmAll interval read failed", "error", err, "sensor_id", def.ID)
			continue
		}
		s.SetInterval(def.ID, minutes)
	}

	if err := s.store.SetFlag(store.FlagRecoveryArmed, true); err != nil {
		slog.Error("Scheduler ArmAll failed to persist recovery flag", "error", err)
	}
}

// DisarmAll cancels every catalog sensor's trigger and deactivates the
// restart-recovery flag.
func (s *Scheduler) DisarmAll() {
	slog.Debug("Scheduler DisarmAll")
	for _, def := range s.catalog.Definitions() {
		s.Disarm(def.ID)
	}

	if err := s.store.SetFlag(store.FlagRecoveryArmed, false); err != nil {
		slog.Error("Scheduler DisarmAll failed to persist recovery flag", "error", err)
	}
}

// SetInterval installs a periodic trigger for the sensor with the given
// period in minutes, replacing any prior trigger for the same id. A
// non-positive interval disarms instead. The trigger payload captures the
// sensor definition at arm time, so firings stay self-contained.
//
// It never panics or propagates registry errors: failures are logged and
// reported as "trigger not installed" by returning nil. The returned record
// exists for observability only.
func (s *Scheduler) SetInterval(sensorID string, minutes int64) *models.ScheduledTriggerRecord {
	def, err := s.catalog.Lookup(sensorID)
	if err != nil {
		slog.Error("Scheduler SetInterval unknown sensor", "error", err, "sensor_id", sensorID)
		return nil
	}

	if minutes <= 0 {
		s.Disarm(sensorID)
		return nil
	}

	payload, err := json.Marshal(def)
	if err != nil {
		slog.Error("Scheduler SetInterval payload encoding failed", "error", err, "sensor_id", sensorID)
		return nil
	}

	firstFire := time.Now().Add(s.firstFireDelay)
	period := time.Duration(minutes) * time.Minute
	if err := s.registry.Schedule(sensorID, firstFire, period, payload); err != nil {
		slog.Error("Scheduler SetInterval schedule failed", "error", err, "sensor_id", sensorID, "minutes", minutes)
		return nil
	}

	slog.Info("Scheduler armed sensor", "sensor_id", sensorID, "minutes", minutes, "first_fire", firstFire)
	return &models.ScheduledTriggerRecord{
		SensorID:        sensorID,
		IntervalMinutes: minutes,
		FirstFire:       firstFire,
	}
}

// Disarm cancels the trigger for exactly this sensor id; no-op when absent.
func (s *Scheduler) Disarm(sensorID string) {
	if err := s.registry.Cancel(sensorID); err != nil {
		slog.Error("Scheduler Disarm failed", "error", err, "sensor_id", sensorID)
		return
	}
	slog.Debug("Scheduler disarmed sensor", "sensor_id", sensorID)
}

// Active returns the currently armed triggers from the registry.
func (s *Scheduler) Active() []trigger.Record {
	return s.registry.Active()
}
