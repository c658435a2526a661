// Package delivery hands finished response outcomes to external sinks.
//
// The core treats delivery as a single fire-and-forget call; sink
// durability is the sink's own concern.
package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/store"
)

// Sink receives the final (sensor, answer, timestamp) tuple of a response
// collection session, exactly once per trigger event.
type Sink interface {
	Deliver(ctx context.Context, outcome models.ResponseOutcome) error
}

// LogSink writes outcomes to the structured log. It is the default sink.
type LogSink struct{}

// NewLogSink creates a log-backed sink.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	slog.Info("Response delivered",
		"sensor_id", outcome.SensorID,
		"answer", outcome.Answer,
		"time", outcome.Time)
	return nil
}

// StoreSink records outcomes in the persistence store.
type StoreSink struct {
	store store.Store
}

// NewStoreSink creates a store-backed sink.
func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st}
}

func (s *StoreSink) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	return s.store.SaveOutcome(outcome)
}

// Fanout delivers each outcome to every sink. Individual sink failures are
// logged and do not stop the remaining sinks; the joined error reports all
// of them.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a sink fanning out to the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Deliver(ctx, outcome); err != nil {
			slog.Error("Fanout sink delivery failed", "error", err, "sensor_id", outcome.SensorID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
