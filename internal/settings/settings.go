// Package settings applies preference changes to the running system.
//
// Each preference kind is an explicit variant with its own typed apply
// path, so the four behaviors (master switch, sound, vibrate, per-sensor
// interval) stay independently testable instead of branching on key
// strings.
package settings

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/scheduler"
	"github.com/BTreeMap/PulsePoll/internal/store"
)

// ErrUnknownChangeKind is returned when a change carries a kind the
// dispatcher does not recognize.
var ErrUnknownChangeKind = errors.New("unknown settings change kind")

// ChangeKind tags the preference a Change applies to.
type ChangeKind string

const (
	ChangeMasterSwitch   ChangeKind = "master_switch"
	ChangeSoundToggle    ChangeKind = "sound_toggle"
	ChangeVibrateToggle  ChangeKind = "vibrate_toggle"
	ChangeSensorInterval ChangeKind = "sensor_interval"
)

// Change is one preference update. Enabled is meaningful for the three
// toggle kinds; SensorID and IntervalMinutes only for ChangeSensorInterval.
type Change struct {
	Kind            ChangeKind `json:"kind"`
	Enabled         bool       `json:"enabled,omitempty"`
	SensorID        string     `json:"sensor_id,omitempty"`
	IntervalMinutes int64      `json:"interval_minutes,omitempty"`
}

// MasterSwitch builds a change toggling all survey notifications.
func MasterSwitch(enabled bool) Change {
	return Change{Kind: ChangeMasterSwitch, Enabled: enabled}
}

// SoundToggle builds a change toggling notification sound.
func SoundToggle(enabled bool) Change {
	return Change{Kind: ChangeSoundToggle, Enabled: enabled}
}

// VibrateToggle builds a change toggling notification vibration.
func VibrateToggle(enabled bool) Change {
	return Change{Kind: ChangeVibrateToggle, Enabled: enabled}
}

// SensorInterval builds a change setting one sensor's survey interval.
func SensorInterval(sensorID string, minutes int64) Change {
	return Change{Kind: ChangeSensorInterval, SensorID: sensorID, IntervalMinutes: minutes}
}

// Dispatcher persists preference changes and propagates them to the
// scheduler.
type Dispatcher struct {
	catalog   *catalog.Catalog
	store     store.Store
	scheduler *scheduler.Scheduler
}

// NewDispatcher creates a settings dispatcher.
func NewDispatcher(cat *catalog.Catalog, st store.Store, sched *scheduler.Scheduler) *Dispatcher {
	return &Dispatcher{catalog: cat, store: st, scheduler: sched}
}

// Apply persists the change and propagates its side effect. The side
// effects match the change kind exactly: the master switch arms or disarms
// everything, an interval change re-arms one sensor, the sound and vibrate
// toggles only persist (they are read at compose time).
func (d *Dispatcher) Apply(change Change) error {
	switch change.Kind {
	case ChangeMasterSwitch:
		if err := d.store.SetFlag(store.FlagMasterSwitch, change.Enabled); err != nil {
			return fmt.Errorf("failed to persist master switch: %w", err)
		}
		if change.Enabled {
			d.scheduler.ArmAll()
		} else {
			d.scheduler.DisarmAll()
		}
		slog.Info("Settings master switch applied", "enabled", change.Enabled)
		return nil

	case ChangeSoundToggle:
		if err := d.store.SetFlag(store.FlagSound, change.Enabled); err != nil {
			return fmt.Errorf("failed to persist sound toggle: %w", err)
		}
		slog.Debug("Settings sound toggle applied", "enabled", change.Enabled)
		return nil

	case ChangeVibrateToggle:
		if err := d.store.SetFlag(store.FlagVibrate, change.Enabled); err != nil {
			return fmt.Errorf("failed to persist vibrate toggle: %w", err)
		}
		slog.Debug("Settings vibrate toggle applied", "enabled", change.Enabled)
		return nil

	case ChangeSensorInterval:
		if _, err := d.catalog.Lookup(change.SensorID); err != nil {
			return fmt.Errorf("failed to apply interval change: %w", err)
		}
		if err := d.store.SetInterval(change.SensorID, change.IntervalMinutes); err != nil {
			return fmt.Errorf("failed to persist interval for %s: %w", change.SensorID, err)
		}
		d.scheduler.SetInterval(change.SensorID, change.IntervalMinutes)
		slog.Info("Settings sensor interval applied", "sensor_id", change.SensorID, "minutes", change.IntervalMinutes)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownChangeKind, change.Kind)
	}
}

// EnsureInitialized runs the one-time first-run bootstrap: seed every
// catalog sensor's persisted interval from its default, enable sound and
// vibration, then arm or disarm from the (still default) master switch.
// Subsequent calls see the persisted marker and do nothing.
func (d *Dispatcher) EnsureInitialized() error {
	initialized, err := d.store.GetFlag(store.FlagInitialized)
	if err != nil {
		return fmt.Errorf("failed to read initialization marker: %w", err)
	}
	if initialized {
		return nil
	}

	slog.Info("Settings running first-run initialization")
	for _, def := range d.catalog.Definitions() {
		if err := d.store.SetInterval(def.ID, def.DefaultInterval.Minutes); err != nil {
			return fmt.Errorf("failed to seed interval for %s: %w", def.ID, err)
		}
	}
	if err := d.store.SetFlag(store.FlagSound, true); err != nil {
		return fmt.Errorf("failed to seed sound toggle: %w", err)
	}
	if err := d.store.SetFlag(store.FlagVibrate, true); err != nil {
		return fmt.Errorf("failed to seed vibrate toggle: %w", err)
	}
	if err := d.store.SetFlag(store.FlagInitialized, true); err != nil {
		return fmt.Errorf("failed to persist initialization marker: %w", err)
	}

	d.scheduler.InitFromPreferences()
	return nil
}
