// Package models defines the core data structures for PulsePoll.
//
// It includes the sensor catalog types, trigger events, notification payloads
// and response outcomes, which are shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ResponseMode defines how a sensor accepts a user answer.
type ResponseMode string

const (
	// ResponseModeFreeText accepts only free-form text.
	ResponseModeFreeText ResponseMode = "free_text"
	// ResponseModeSingleChoice accepts exactly one of the catalog options.
	ResponseModeSingleChoice ResponseMode = "single_choice"
	// ResponseModeChoiceOrText accepts either one option or free text.
	ResponseModeChoiceOrText ResponseMode = "choice_or_text"
)

// Well-known answer values and labels.
const (
	// AnswerIgnored is the sentinel answer recorded when a prompt is
	// dismissed, deleted, or explicitly ignored.
	AnswerIgnored = "ignored"
	// MoreOptionsLabel is the label of the overflow action that opens the
	// full response view instead of submitting directly.
	MoreOptionsLabel = " ... "
	// MaxDirectActions is the number of option actions a notification can
	// carry before the overflow action takes the third slot.
	MaxDirectActions = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptySensorID       = errors.New("sensor id cannot be empty")
	ErrEmptyMessage        = errors.New("sensor message cannot be empty")
	ErrInvalidResponseMode = errors.New("invalid response mode")
	ErrIntervalMismatch    = errors.New("interval labels and values must have equal length")
	ErrOptionsWithoutMode  = errors.New("options require a choice response mode")
	ErrNoIntervalLabel     = errors.New("no label for interval value")
	ErrEmptyAnswer         = errors.New("answer cannot be empty")
	ErrSessionTerminal     = errors.New("response session already terminal")
	ErrOptionNotInCatalog  = errors.New("selected option is not a catalog option")
	ErrModeForbidsOption   = errors.New("response mode does not accept option selection")
	ErrModeForbidsText     = errors.New("response mode does not accept free text")
	ErrMalformedEvent      = errors.New("malformed trigger event payload")
)

// IsValidResponseMode checks if the given response mode is supported.
func IsValidResponseMode(m ResponseMode) bool {
	switch m {
	case ResponseModeFreeText, ResponseModeSingleChoice, ResponseModeChoiceOrText:
		return true
	default:
		return false
	}
}

// IntervalChoice pairs a display label with a polling interval in minutes.
type IntervalChoice struct {
	Label   string `json:"label" yaml:"label"`
	Minutes int64  `json:"minutes" yaml:"minutes"`
}

// SensorDefinition describes one virtual sensor: the prompt it shows, how it
// accepts answers, and which polling intervals the user may choose from.
// Definitions are immutable once loaded from the catalog.
type SensorDefinition struct {
	ID              string         `json:"sensor_id" yaml:"sensor_id"`
	Message         string         `json:"message" yaml:"message"`
	Category        string         `json:"category,omitempty" yaml:"category,omitempty"`
	Mode            ResponseMode   `json:"response_mode" yaml:"response_mode"`
	Options         []string       `json:"options,omitempty" yaml:"options,omitempty"`
	DefaultInterval IntervalChoice `json:"default_interval" yaml:"default_interval"`
	IntervalLabels  []string       `json:"interval_labels" yaml:"interval_labels"`
	IntervalMinutes []int64        `json:"interval_minutes" yaml:"interval_minutes"`
}

// Validate performs structural validation on a sensor definition.
func (d *SensorDefinition) Validate() error {
	if d.ID == "" {
		return ErrEmptySensorID
	}
	if d.Message == "" {
		return ErrEmptyMessage
	}
	if !IsValidResponseMode(d.Mode) {
		return fmt.Errorf("%w: %q", ErrInvalidResponseMode, d.Mode)
	}
	if len(d.IntervalLabels) != len(d.IntervalMinutes) {
		return ErrIntervalMismatch
	}
	if len(d.Options) > 0 && d.Mode == ResponseModeFreeText {
		return ErrOptionsWithoutMode
	}
	return nil
}

// HasChoices reports whether the sensor's mode accepts option selection.
func (d *SensorDefinition) HasChoices() bool {
	return d.Mode == ResponseModeSingleChoice || d.Mode == ResponseModeChoiceOrText
}

// HasOption reports whether label is one of the sensor's catalog options.
func (d *SensorDefinition) HasOption(label string) bool {
	for _, o := range d.Options {
		if o == label {
			return true
		}
	}
	return false
}

// IntervalLabel resolves the display label for an interval value from the
// parallel label/value sequences. A value with no matching entry is a caller
// error and reports ErrNoIntervalLabel.
func (d *SensorDefinition) IntervalLabel(minutes int64) (string, error) {
	for i, v := range d.IntervalMinutes {
		if v == minutes {
			return d.IntervalLabels[i], nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrNoIntervalLabel, minutes)
}

// ScheduledTriggerRecord describes one armed periodic trigger. It is returned
// from scheduler operations for observability; the trigger registry is the
// durable owner of what is armed.
type ScheduledTriggerRecord struct {
	SensorID        string    `json:"sensor_id"`
	IntervalMinutes int64     `json:"interval_minutes"`
	FirstFire       time.Time `json:"first_fire"`
}

// TriggerEvent is the ephemeral record of one trigger firing. It carries a
// copy of the definition captured at fire time so that composition and
// response handling never depend on the catalog after the fact.
type TriggerEvent struct {
	EventID    string           `json:"event_id"`
	SensorID   string           `json:"sensor_id"`
	FiredAt    int64            `json:"fired_at"`
	Definition SensorDefinition `json:"definition"`
}

// Encode serializes the event for transport inside notification intents.
func (e *TriggerEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger event: %w", err)
	}
	return data, nil
}

// DecodeTriggerEvent reconstructs a trigger event from an intent payload.
// Payloads that do not parse or carry no sensor id report ErrMalformedEvent.
func DecodeTriggerEvent(data []byte) (*TriggerEvent, error) {
	var e TriggerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.SensorID == "" {
		return nil, fmt.Errorf("%w: missing sensor id", ErrMalformedEvent)
	}
	return &e, nil
}

// ResponseOutcome is the terminal value of a response collection session:
// exactly one per answered (or ignored) trigger event.
type ResponseOutcome struct {
	SensorID string `json:"sensor_id"`
	Answer   string `json:"answer"`
	Time     int64  `json:"time"`
}
