// Package testutil provides common fakes and fixtures for PulsePoll tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/BTreeMap/PulsePoll/internal/models"
)

// RecordingNotifier captures shown and cancelled notifications.
type RecordingNotifier struct {
	mu        sync.Mutex
	Shown     []models.NotificationPayload
	Cancelled []int32
	ShowErr   error
	CancelErr error
}

func (n *RecordingNotifier) Show(ctx context.Context, payload models.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ShowErr != nil {
		return n.ShowErr
	}
	n.Shown = append(n.Shown, payload)
	return nil
}

func (n *RecordingNotifier) Cancel(ctx context.Context, notificationID int32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.CancelErr != nil {
		return n.CancelErr
	}
	n.Cancelled = append(n.Cancelled, notificationID)
	return nil
}

// ShownCount returns how many notifications were shown.
func (n *RecordingNotifier) ShownCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Shown)
}

// RecordingSink captures delivered response outcomes.
type RecordingSink struct {
	mu        sync.Mutex
	Delivered []models.ResponseOutcome
	Err       error
}

func (s *RecordingSink) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Delivered = append(s.Delivered, outcome)
	return nil
}

// DeliveredCount returns how many outcomes were delivered.
func (s *RecordingSink) DeliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Delivered)
}

// SingleChoiceSensor builds a valid single-choice sensor definition.
func SingleChoiceSensor(id string, options ...string) models.SensorDefinition {
	return models.SensorDefinition{
		ID:              id,
		Message:         "How is your " + id + "?",
		Mode:            models.ResponseModeSingleChoice,
		Options:         options,
		DefaultInterval: models.IntervalChoice{Label: "2 hours", Minutes: 120},
		IntervalLabels:  []string{"Off", "1 hour", "2 hours"},
		IntervalMinutes: []int64{-1, 60, 120},
	}
}

// ChoiceOrTextSensor builds a valid choice-or-text sensor definition.
func ChoiceOrTextSensor(id string, options ...string) models.SensorDefinition {
	def := SingleChoiceSensor(id, options...)
	def.Mode = models.ResponseModeChoiceOrText
	return def
}

// FreeTextSensor builds a valid free-text sensor definition.
func FreeTextSensor(id string) models.SensorDefinition {
	def := SingleChoiceSensor(id)
	def.Mode = models.ResponseModeFreeText
	def.Options = nil
	return def
}

// EncodeEvent serializes a trigger event for intent payloads, failing the
// test on encoding errors.
func EncodeEvent(t *testing.T, event models.TriggerEvent) []byte {
	t.Helper()
	data, err := event.Encode()
	if err != nil {
		t.Fatalf("failed to encode trigger event: %v", err)
	}
	return data
}

// AssertHTTPStatus checks an HTTP status code and fails the test if it
// doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}
