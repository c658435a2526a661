// Package prompter turns trigger firings into shown survey notifications.
//
// It is the fire handler installed on the trigger registry: decode the
// definition captured at arm time, stamp a trigger event, compose the
// payload with the current sound/vibrate preferences, and show it.
package prompter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/PulsePoll/internal/composer"
	"github.com/BTreeMap/PulsePoll/internal/metrics"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/notify"
	"github.com/BTreeMap/PulsePoll/internal/store"
)

// Prompter composes and shows one notification per trigger firing. Failures
// are logged and dropped; a bad firing never takes the process down.
type Prompter struct {
	store    store.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

// New creates a prompter. metrics may be nil.
func New(st store.Store, notifier notify.Notifier, m *metrics.Metrics) *Prompter {
	return &Prompter{store: st, notifier: notifier, metrics: m}
}

// HandleFire is the trigger.FireFunc for the registry. The payload is the
// sensor definition serialized at arm time.
func (p *Prompter) HandleFire(key string, payload []byte) {
	var def models.SensorDefinition
	if err := json.Unmarshal(payload, &def); err != nil {
		slog.Error("Prompter HandleFire payload decode failed", "error", err, "key", key)
		return
	}
	if err := def.Validate(); err != nil {
		slog.Error("Prompter HandleFire invalid definition in payload", "error", err, "key", key)
		return
	}

	event := models.TriggerEvent{
		EventID:    uuid.NewString(),
		SensorID:   def.ID,
		FiredAt:    time.Now().UnixMilli(),
		Definition: def,
	}
	p.metrics.TriggerFired(def.ID)
	slog.Debug("Prompter trigger fired", "sensor_id", def.ID, "event_id", event.EventID)

	p.Show(context.Background(), event)
}

// Show composes the notification for an event and presents it. Exposed so
// the API surface can simulate a firing.
func (p *Prompter) Show(ctx context.Context, event models.TriggerEvent) {
	sound, err := p.store.GetFlag(store.FlagSound)
	if err != nil {
		slog.Error("Prompter sound flag read failed", "error", err)
	}
	vibrate, err := p.store.GetFlag(store.FlagVibrate)
	if err != nil {
		slog.Error("Prompter vibrate flag read failed", "error", err)
	}

	payload, err := composer.Compose(event.Definition, event, sound, vibrate)
	if err != nil {
		slog.Error("Prompter composition failed", "error", err, "sensor_id", event.SensorID)
		return
	}

	if err := p.notifier.Show(ctx, payload); err != nil {
		slog.Error("Prompter failed to show notification", "error", err, "sensor_id", event.SensorID)
		return
	}
	p.metrics.NotificationShown(event.SensorID)
}
