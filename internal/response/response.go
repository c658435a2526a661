// Package response implements the short-lived response collection state
// machine: one instance per triggered notification, capturing zero or one
// user answer and delivering it to the sink exactly once.
//
// States: Idle → AwaitingResponse → {Submitted, Ignored, Deleted}, all three
// terminal. The three entry intents (open, delete, quick-action) are
// mutually exclusive and each first clears the sensor's notification, so a
// second entry for the same event has nothing left to act on.
package response

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PulsePoll/internal/composer"
	"github.com/BTreeMap/PulsePoll/internal/delivery"
	"github.com/BTreeMap/PulsePoll/internal/metrics"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/notify"
)

// State identifies a response collection state.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateSubmitted        State = "submitted"
	StateIgnored          State = "ignored"
	StateDeleted          State = "deleted"
)

// IsTerminal reports whether the state accepts no further transitions.
func (s State) IsTerminal() bool {
	return s == StateSubmitted || s == StateIgnored || s == StateDeleted
}

// Opts holds configuration options for the handler.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the handler.
type Option func(*Opts)

// WithClock overrides the timestamp source (used in tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Handler routes entry intents into response collection. It is stateless
// across events; each open intent yields a fresh Session owned by the
// interaction that created it.
type Handler struct {
	notifier notify.Notifier
	sink     delivery.Sink
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewHandler creates a response handler. metrics may be nil.
func NewHandler(notifier notify.Notifier, sink delivery.Sink, m *metrics.Metrics, opts ...Option) *Handler {
	cfg := Opts{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{notifier: notifier, sink: sink, metrics: m, now: cfg.Clock}
}

// HandleIntent processes one notification entry intent carrying the
// serialized trigger event. A payload that cannot be reconstructed aborts
// silently with no sink call: that single event is dropped, nothing
// propagates. The sensor's notification is cleared before dispatch, so
// invoking a second intent for an already-handled event is a harmless
// no-op at the presentation layer.
//
// The returned session is non-nil only for open intents; delete and
// quick-action intents terminate immediately without surfacing a view.
func (h *Handler) HandleIntent(ctx context.Context, intent models.EntryIntent, eventPayload []byte) *Session {
	event, err := models.DecodeTriggerEvent(eventPayload)
	if err != nil {
		slog.Error("Response HandleIntent dropping malformed event payload", "error", err)
		h.metrics.MalformedEvent()
		return nil
	}

	if err := h.notifier.Cancel(ctx, composer.NotificationID(event.SensorID)); err != nil {
		slog.Error("Response HandleIntent notification clear failed", "error", err, "sensor_id", event.SensorID)
	}

	switch intent.Kind {
	case models.IntentDelete:
		// Deleted without viewing: recorded as ignored, no UI surfaced.
		h.deliver(ctx, event.SensorID, models.AnswerIgnored)
		return nil
	case models.IntentAction:
		if intent.OptionLabel == "" {
			slog.Error("Response HandleIntent action intent without label", "sensor_id", event.SensorID)
			return nil
		}
		h.deliver(ctx, event.SensorID, intent.OptionLabel)
		return nil
	case models.IntentOpen:
		slog.Debug("Response HandleIntent opening response view", "sensor_id", event.SensorID, "mode", event.Definition.Mode)
		return &Session{
			handler: h,
			event:   event,
			state:   StateAwaitingResponse,
		}
	default:
		slog.Error("Response HandleIntent unknown intent kind", "kind", intent.Kind)
		return nil
	}
}

// deliver hands the outcome to the sink. The sink call is fire-and-forget:
// a sink failure is logged, never surfaced to the user.
func (h *Handler) deliver(ctx context.Context, sensorID, answer string) {
	outcome := models.ResponseOutcome{
		SensorID: sensorID,
		Answer:   answer,
		Time:     h.now().UnixMilli(),
	}
	if err := h.sink.Deliver(ctx, outcome); err != nil {
		slog.Error("Response delivery sink failed", "error", err, "sensor_id", sensorID)
		return
	}
	h.metrics.ResponseDelivered(sensorID)
}

// View describes what the full response surface should present for a
// session's response mode.
type View struct {
	SensorID      string              `json:"sensor_id"`
	Message       string              `json:"message"`
	Mode          models.ResponseMode `json:"mode"`
	Options       []string            `json:"options,omitempty"`
	ShowTextInput bool                `json:"show_text_input"`
	ShowOptions   bool                `json:"show_options"`
}

// Session is the AwaitingResponse stage of the machine: it tracks the
// candidate answer while the user interacts with the full response view.
// A session is owned by exactly one interaction and is discarded after it
// reaches a terminal state.
type Session struct {
	handler *Handler
	event   *models.TriggerEvent

	mu        sync.Mutex
	state     State
	candidate string
	fromText  bool
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the presentation descriptor for the session.
func (s *Session) View() View {
	def := s.event.Definition
	return View{
		SensorID:      def.ID,
		Message:       def.Message,
		Mode:          def.Mode,
		Options:       def.Options,
		ShowTextInput: def.Mode != models.ResponseModeSingleChoice,
		ShowOptions:   def.Mode != models.ResponseModeFreeText && len(def.Options) > 0,
	}
}

// SelectOption records an option choice as the candidate answer, clearing
// any pending text source. In single-choice mode selecting is itself a
// submission.
func (s *Session) SelectOption(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingResponse {
		return models.ErrSessionTerminal
	}
	def := s.event.Definition
	if def.Mode == models.ResponseModeFreeText {
		return models.ErrModeForbidsOption
	}
	if !def.HasOption(label) {
		return models.ErrOptionNotInCatalog
	}

	s.candidate = label
	s.fromText = false

	if def.Mode == models.ResponseModeSingleChoice {
		s.submitLocked(ctx)
	}
	return nil
}

// SetText records free text as the candidate answer, clearing any option
// selection. The most recent interaction wins as the candidate.
func (s *Session) SetText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingResponse {
		return models.ErrSessionTerminal
	}
	if s.event.Definition.Mode == models.ResponseModeSingleChoice {
		return models.ErrModeForbidsText
	}

	s.candidate = text
	s.fromText = true
	return nil
}

// Submit transitions to Submitted and delivers the candidate answer. An
// empty candidate rejects the transition with ErrEmptyAnswer and the
// session stays in AwaitingResponse; this is the one validation rule in
// the system.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingResponse {
		return models.ErrSessionTerminal
	}
	if s.candidate == "" {
		return models.ErrEmptyAnswer
	}

	s.submitLocked(ctx)
	return nil
}

// Ignore transitions to Ignored and delivers the ignored sentinel,
// regardless of any pending candidate.
func (s *Session) Ignore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingResponse {
		return models.ErrSessionTerminal
	}

	s.state = StateIgnored
	s.handler.deliver(ctx, s.event.SensorID, models.AnswerIgnored)
	return nil
}

// submitLocked finalizes the session; the caller holds the lock and has
// verified a non-empty candidate (option selections are always non-empty).
func (s *Session) submitLocked(ctx context.Context) {
	s.state = StateSubmitted
	s.handler.deliver(ctx, s.event.SensorID, s.candidate)
}
