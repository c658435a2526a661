package response

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/PulsePoll/internal/composer"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/testutil"
)

func fixedClock() time.Time {
	return time.UnixMilli(1724900000000)
}

func newTestHandler() (*Handler, *testutil.RecordingNotifier, *testutil.RecordingSink) {
	notifier := &testutil.RecordingNotifier{}
	sink := &testutil.RecordingSink{}
	h := NewHandler(notifier, sink, nil, WithClock(fixedClock))
	return h, notifier, sink
}

func eventPayload(t *testing.T, def models.SensorDefinition) []byte {
	t.Helper()
	return testutil.EncodeEvent(t, models.TriggerEvent{
		EventID:    "evt-1",
		SensorID:   def.ID,
		FiredAt:    1724899000000,
		Definition: def,
	})
}

func TestDeleteIntentRecordsIgnored(t *testing.T) {
	h, notifier, sink := newTestHandler()
	def := testutil.SingleChoiceSensor("mood", "Good", "Bad")

	session := h.HandleIntent(context.Background(), models.DeleteIntent(), eventPayload(t, def))
	if session != nil {
		t.Error("delete intent must not open a session")
	}

	if sink.DeliveredCount() != 1 {
		t.Fatalf("delivered %d outcomes, want 1", sink.DeliveredCount())
	}
	outcome := sink.Delivered[0]
	if outcome.SensorID != "mood" || outcome.Answer != models.AnswerIgnored {
		t.Errorf("outcome = %+v, want ignored for mood", outcome)
	}
	if outcome.Time != fixedClock().UnixMilli() {
		t.Errorf("outcome time = %d, want transition time", outcome.Time)
	}

	// The notification was cleared before dispatch.
	if len(notifier.Cancelled) != 1 || notifier.Cancelled[0] != composer.NotificationID("mood") {
		t.Errorf("cancelled = %v, want the sensor's notification id", notifier.Cancelled)
	}
}

func TestActionIntentSubmitsLabel(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.SingleChoiceSensor("mood", "Good", "Bad")

	session := h.HandleIntent(context.Background(), models.ActionIntent("Good"), eventPayload(t, def))
	if session != nil {
		t.Error("action intent must not open a session")
	}

	if sink.DeliveredCount() != 1 {
		t.Fatalf("delivered %d outcomes, want 1", sink.DeliveredCount())
	}
	if sink.Delivered[0].Answer != "Good" {
		t.Errorf("answer = %q, want Good", sink.Delivered[0].Answer)
	}
}

func TestMalformedPayloadDropsSilently(t *testing.T) {
	h, notifier, sink := newTestHandler()

	for _, payload := range [][]byte{nil, []byte("{{{"), []byte(`{"event_id":"x"}`)} {
		if session := h.HandleIntent(context.Background(), models.OpenIntent(), payload); session != nil {
			t.Error("malformed payload must not open a session")
		}
	}

	if sink.DeliveredCount() != 0 {
		t.Errorf("malformed payloads delivered %d outcomes, want 0", sink.DeliveredCount())
	}
	if len(notifier.Cancelled) != 0 {
		t.Errorf("malformed payloads cancelled %d notifications, want 0", len(notifier.Cancelled))
	}
}

func TestOpenIntentCreatesAwaitingSession(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.ChoiceOrTextSensor("activity", "Work", "Sport", "Rest")

	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))
	if session == nil {
		t.Fatal("open intent should create a session")
	}
	if session.State() != StateAwaitingResponse {
		t.Errorf("state = %q, want awaiting_response", session.State())
	}
	if sink.DeliveredCount() != 0 {
		t.Error("opening must not deliver anything")
	}

	view := session.View()
	if view.SensorID != "activity" || !view.ShowTextInput || !view.ShowOptions {
		t.Errorf("view = %+v, want options and text input for choice_or_text", view)
	}
}

func TestViewPerMode(t *testing.T) {
	h, _, _ := newTestHandler()

	single := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, testutil.SingleChoiceSensor("mood", "Good", "Bad")))
	if v := single.View(); v.ShowTextInput || !v.ShowOptions {
		t.Errorf("single_choice view = %+v, want options without text input", v)
	}

	free := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, testutil.FreeTextSensor("surroundings")))
	if v := free.View(); !v.ShowTextInput || v.ShowOptions {
		t.Errorf("free_text view = %+v, want text input without options", v)
	}
}

func TestEmptySubmitRejected(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.ChoiceOrTextSensor("activity", "Work", "Sport")
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))

	if err := session.Submit(context.Background()); !errors.Is(err, models.ErrEmptyAnswer) {
		t.Errorf("empty submit error = %v, want ErrEmptyAnswer", err)
	}
	if session.State() != StateAwaitingResponse {
		t.Errorf("state after rejected submit = %q, want awaiting_response", session.State())
	}
	if sink.DeliveredCount() != 0 {
		t.Error("rejected submit must not deliver")
	}

	// The session stays usable.
	if err := session.SetText(context.Background(), "walking"); err != nil {
		t.Fatalf("SetText after rejected submit: %v", err)
	}
	if err := session.Submit(context.Background()); err != nil {
		t.Fatalf("Submit after fixing answer: %v", err)
	}
	if sink.DeliveredCount() != 1 || sink.Delivered[0].Answer != "walking" {
		t.Errorf("delivered = %+v, want one outcome with the text", sink.Delivered)
	}
}

func TestSingleChoiceSelectIsSubmit(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.SingleChoiceSensor("mood", "Good", "Neutral", "Bad", "Awful")
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))

	if err := session.SelectOption(context.Background(), "Neutral"); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if session.State() != StateSubmitted {
		t.Errorf("state = %q, want submitted after single-choice selection", session.State())
	}
	if sink.DeliveredCount() != 1 || sink.Delivered[0].Answer != "Neutral" {
		t.Errorf("delivered = %+v, want Neutral", sink.Delivered)
	}
}

func TestChoiceOrTextMutualExclusion(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.ChoiceOrTextSensor("activity", "Work", "Sport")
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))
	ctx := context.Background()

	// Selection then text: the text wins.
	if err := session.SelectOption(ctx, "Work"); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if session.State() != StateAwaitingResponse {
		t.Error("choice_or_text selection must not auto-submit")
	}
	if err := session.SetText(ctx, "gardening"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if err := session.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sink.Delivered[0].Answer != "gardening" {
		t.Errorf("answer = %q, the later text should win", sink.Delivered[0].Answer)
	}
}

func TestChoiceOrTextSelectionOverridesText(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.ChoiceOrTextSensor("activity", "Work", "Sport")
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))
	ctx := context.Background()

	session.SetText(ctx, "gardening")
	if err := session.SelectOption(ctx, "Sport"); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if err := session.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sink.Delivered[0].Answer != "Sport" {
		t.Errorf("answer = %q, the later selection should win", sink.Delivered[0].Answer)
	}
}

func TestModeGuards(t *testing.T) {
	h, _, _ := newTestHandler()
	ctx := context.Background()

	single := h.HandleIntent(ctx, models.OpenIntent(), eventPayload(t, testutil.SingleChoiceSensor("mood", "Good", "Bad")))
	if err := single.SetText(ctx, "fine"); !errors.Is(err, models.ErrModeForbidsText) {
		t.Errorf("SetText on single_choice = %v, want ErrModeForbidsText", err)
	}

	free := h.HandleIntent(ctx, models.OpenIntent(), eventPayload(t, testutil.FreeTextSensor("surroundings")))
	if err := free.SelectOption(ctx, "anything"); !errors.Is(err, models.ErrModeForbidsOption) {
		t.Errorf("SelectOption on free_text = %v, want ErrModeForbidsOption", err)
	}

	choice := h.HandleIntent(ctx, models.OpenIntent(), eventPayload(t, testutil.ChoiceOrTextSensor("activity", "Work")))
	if err := choice.SelectOption(ctx, "NotAnOption"); !errors.Is(err, models.ErrOptionNotInCatalog) {
		t.Errorf("SelectOption with foreign label = %v, want ErrOptionNotInCatalog", err)
	}
}

func TestIgnoreDeliversSentinel(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.ChoiceOrTextSensor("activity", "Work", "Sport")
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))
	ctx := context.Background()

	// A pending candidate does not survive an ignore.
	session.SetText(ctx, "gardening")
	if err := session.Ignore(ctx); err != nil {
		t.Fatalf("Ignore: %v", err)
	}
	if session.State() != StateIgnored {
		t.Errorf("state = %q, want ignored", session.State())
	}
	if sink.DeliveredCount() != 1 || sink.Delivered[0].Answer != models.AnswerIgnored {
		t.Errorf("delivered = %+v, want the ignored sentinel", sink.Delivered)
	}
}

func TestTerminalSessionRejectsEverything(t *testing.T) {
	h, _, sink := newTestHandler()
	def := testutil.ChoiceOrTextSensor("activity", "Work", "Sport")
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))
	ctx := context.Background()

	session.SetText(ctx, "gardening")
	if err := session.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := session.Submit(ctx); !errors.Is(err, models.ErrSessionTerminal) {
		t.Errorf("second Submit = %v, want ErrSessionTerminal", err)
	}
	if err := session.SelectOption(ctx, "Work"); !errors.Is(err, models.ErrSessionTerminal) {
		t.Errorf("SelectOption after submit = %v, want ErrSessionTerminal", err)
	}
	if err := session.SetText(ctx, "more"); !errors.Is(err, models.ErrSessionTerminal) {
		t.Errorf("SetText after submit = %v, want ErrSessionTerminal", err)
	}
	if err := session.Ignore(ctx); !errors.Is(err, models.ErrSessionTerminal) {
		t.Errorf("Ignore after submit = %v, want ErrSessionTerminal", err)
	}

	// Exactly one delivery for the whole session.
	if sink.DeliveredCount() != 1 {
		t.Errorf("delivered %d outcomes, want exactly 1", sink.DeliveredCount())
	}
}

func TestSinkFailureDoesNotSurface(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	sink := &testutil.RecordingSink{Err: errors.New("sink down")}
	h := NewHandler(notifier, sink, nil, WithClock(fixedClock))
	def := testutil.SingleChoiceSensor("mood", "Good", "Bad")

	// Delivery is fire-and-forget: the session still terminates cleanly.
	session := h.HandleIntent(context.Background(), models.OpenIntent(), eventPayload(t, def))
	if err := session.SelectOption(context.Background(), "Good"); err != nil {
		t.Errorf("SelectOption with failing sink = %v, want nil", err)
	}
	if session.State() != StateSubmitted {
		t.Errorf("state = %q, want submitted despite sink failure", session.State())
	}
}

func TestStateIsTerminal(t *testing.T) {
	for _, s := range []State{StateSubmitted, StateIgnored, StateDeleted} {
		if !s.IsTerminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []State{StateIdle, StateAwaitingResponse} {
		if s.IsTerminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}
