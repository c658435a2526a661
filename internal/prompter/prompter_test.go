package prompter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/PulsePoll/internal/composer"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/store"
	"github.com/BTreeMap/PulsePoll/internal/testutil"
)

func eventFor(def models.SensorDefinition) models.TriggerEvent {
	return models.TriggerEvent{
		EventID:    "evt-1",
		SensorID:   def.ID,
		FiredAt:    time.Now().UnixMilli(),
		Definition: def,
	}
}

func TestHandleFireShowsNotification(t *testing.T) {
	st := store.NewInMemoryStore()
	st.SetFlag(store.FlagSound, true)
	notifier := &testutil.RecordingNotifier{}
	p := New(st, notifier, nil)

	def := testutil.SingleChoiceSensor("mood", "Good", "Bad")
	payload, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("failed to marshal definition: %v", err)
	}

	p.HandleFire("mood", payload)

	if notifier.ShownCount() != 1 {
		t.Fatalf("ShownCount() = %d, want 1", notifier.ShownCount())
	}
	shown := notifier.Shown[0]
	if shown.SensorID != "mood" {
		t.Errorf("shown SensorID = %q, want mood", shown.SensorID)
	}
	if shown.NotificationID != composer.NotificationID("mood") {
		t.Errorf("shown NotificationID = %d, want stable hash", shown.NotificationID)
	}
	if !shown.Sound {
		t.Error("sound preference not applied")
	}
	if shown.Vibrate {
		t.Error("vibrate should follow the unset flag")
	}
}

func TestHandleFireDropsMalformedPayload(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	p := New(store.NewInMemoryStore(), notifier, nil)

	p.HandleFire("mood", []byte("not json"))
	p.HandleFire("mood", nil)

	if notifier.ShownCount() != 0 {
		t.Errorf("malformed payloads must not show notifications, got %d", notifier.ShownCount())
	}
}

func TestHandleFireDropsInvalidDefinition(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	p := New(store.NewInMemoryStore(), notifier, nil)

	def := testutil.SingleChoiceSensor("mood", "Good", "Bad")
	def.Message = ""
	payload, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("failed to marshal definition: %v", err)
	}

	p.HandleFire("mood", payload)

	if notifier.ShownCount() != 0 {
		t.Errorf("invalid definition must not show, got %d", notifier.ShownCount())
	}
}

func TestShowSwallowsNotifierFailure(t *testing.T) {
	notifier := &testutil.RecordingNotifier{ShowErr: errors.New("channel down")}
	p := New(store.NewInMemoryStore(), notifier, nil)

	p.Show(context.Background(), eventFor(testutil.SingleChoiceSensor("mood", "Good", "Bad")))

	if notifier.ShownCount() != 1 {
		t.Errorf("Show should still attempt the notifier once, got %d", notifier.ShownCount())
	}
}

func TestShowCarriesEventPayload(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	p := New(store.NewInMemoryStore(), notifier, nil)

	event := eventFor(testutil.ChoiceOrTextSensor("stress", "Relaxed", "Tense"))
	p.Show(context.Background(), event)

	if notifier.ShownCount() != 1 {
		t.Fatalf("ShownCount() = %d, want 1", notifier.ShownCount())
	}
	decoded, err := models.DecodeTriggerEvent(notifier.Shown[0].EventPayload)
	if err != nil {
		t.Fatalf("DecodeTriggerEvent: %v", err)
	}
	if decoded.EventID != event.EventID || decoded.SensorID != event.SensorID {
		t.Errorf("round-tripped event = %+v, want %+v", decoded, event)
	}
}
