package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/store"
	"github.com/BTreeMap/PulsePoll/internal/testutil"
)

func testOutcome() models.ResponseOutcome {
	return models.ResponseOutcome{SensorID: "mood", Answer: "Good", Time: 1700000000000}
}

func TestLogSinkDeliver(t *testing.T) {
	if err := NewLogSink().Deliver(context.Background(), testOutcome()); err != nil {
		t.Errorf("LogSink.Deliver: %v", err)
	}
}

func TestStoreSinkDeliver(t *testing.T) {
	st := store.NewInMemoryStore()
	sink := NewStoreSink(st)

	if err := sink.Deliver(context.Background(), testOutcome()); err != nil {
		t.Fatalf("StoreSink.Deliver: %v", err)
	}

	outcomes, err := st.GetOutcomes()
	if err != nil {
		t.Fatalf("GetOutcomes: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("stored %d outcomes, want 1", len(outcomes))
	}
	if outcomes[0] != testOutcome() {
		t.Errorf("stored outcome = %+v, want %+v", outcomes[0], testOutcome())
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	first := &testutil.RecordingSink{}
	second := &testutil.RecordingSink{}
	fanout := NewFanout(first, second)

	if err := fanout.Deliver(context.Background(), testOutcome()); err != nil {
		t.Fatalf("Fanout.Deliver: %v", err)
	}
	if first.DeliveredCount() != 1 || second.DeliveredCount() != 1 {
		t.Errorf("delivered counts = %d, %d; want 1, 1",
			first.DeliveredCount(), second.DeliveredCount())
	}
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	boom := errors.New("sink unavailable")
	failing := &testutil.RecordingSink{Err: boom}
	healthy := &testutil.RecordingSink{}
	fanout := NewFanout(failing, healthy)

	err := fanout.Deliver(context.Background(), testOutcome())
	if !errors.Is(err, boom) {
		t.Errorf("Fanout.Deliver error = %v, want wrapped %v", err, boom)
	}
	if healthy.DeliveredCount() != 1 {
		t.Error("healthy sink skipped after earlier failure")
	}
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	var received models.ResponseOutcome
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	if err := sink.Deliver(context.Background(), testOutcome()); err != nil {
		t.Fatalf("WebhookSink.Deliver: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if received != testOutcome() {
		t.Errorf("webhook received %+v, want %+v", received, testOutcome())
	}
}

func TestWebhookSinkRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	if err := sink.Deliver(context.Background(), testOutcome()); err == nil {
		t.Error("expected error for non-2xx webhook response")
	}
}

func TestWebhookSinkUnreachableEndpoint(t *testing.T) {
	sink := NewWebhookSink("http://127.0.0.1:1/outcomes")
	if err := sink.Deliver(context.Background(), testOutcome()); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}
