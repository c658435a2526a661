package models

import "fmt"

// IntentKind distinguishes the three entry points into response collection.
type IntentKind string

const (
	// IntentOpen opens the full response view.
	IntentOpen IntentKind = "open"
	// IntentDelete records a deleted-without-viewing prompt as ignored.
	IntentDelete IntentKind = "delete"
	// IntentAction submits the carried option label directly.
	IntentAction IntentKind = "action"
)

// EntryIntent is the tagged variant over the three structurally identical
// notification entry points. OptionLabel is set only for IntentAction.
type EntryIntent struct {
	Kind        IntentKind `json:"kind"`
	OptionLabel string     `json:"option_label,omitempty"`
}

// OpenIntent returns the intent that opens the full response view.
func OpenIntent() EntryIntent { return EntryIntent{Kind: IntentOpen} }

// DeleteIntent returns the intent recorded when a prompt is swiped away.
func DeleteIntent() EntryIntent { return EntryIntent{Kind: IntentDelete} }

// ActionIntent returns the quick-action intent carrying one option label.
func ActionIntent(label string) EntryIntent {
	return EntryIntent{Kind: IntentAction, OptionLabel: label}
}

// Validate checks the intent's tag and payload consistency.
func (i EntryIntent) Validate() error {
	switch i.Kind {
	case IntentOpen, IntentDelete:
		if i.OptionLabel != "" {
			return fmt.Errorf("intent %s must not carry an option label", i.Kind)
		}
		return nil
	case IntentAction:
		if i.OptionLabel == "" {
			return fmt.Errorf("intent %s requires an option label", i.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown intent kind %q", i.Kind)
	}
}

// NotificationAction is one tappable action on a composed notification.
type NotificationAction struct {
	Label  string      `json:"label"`
	Intent EntryIntent `json:"intent"`
}

// NotificationPayload is the composed descriptor handed to the notification
// primitive. It is pure data: showing, replacing and cancelling are the
// notifier's concern.
type NotificationPayload struct {
	// NotificationID is a stable numeric hash of the sensor id, so a new
	// firing replaces a still-visible prior prompt for the same sensor.
	NotificationID int32                `json:"notification_id"`
	SensorID       string               `json:"sensor_id"`
	Title          string               `json:"title"`
	Body           string               `json:"body"`
	Sound          bool                 `json:"sound"`
	Vibrate        bool                 `json:"vibrate"`
	Actions        []NotificationAction `json:"actions,omitempty"`
	OpenAction     EntryIntent          `json:"open_action"`
	DismissAction  EntryIntent          `json:"dismiss_action"`
	// EventPayload is the serialized trigger event every intent carries back
	// into response handling.
	EventPayload []byte `json:"event_payload"`
}

// DirectActionCount returns how many actions submit an answer directly,
// excluding the overflow action.
func (p *NotificationPayload) DirectActionCount() int {
	n := 0
	for _, a := range p.Actions {
		if a.Intent.Kind == IntentAction {
			n++
		}
	}
	return n
}

// HasMoreAction reports whether the payload carries the overflow action.
func (p *NotificationPayload) HasMoreAction() bool {
	for _, a := range p.Actions {
		if a.Intent.Kind == IntentOpen {
			return true
		}
	}
	return false
}
