// Package notify defines the notification primitive the core drives and its
// delivery channels.
//
// A Notifier shows and cancels composed survey payloads; channels that
// cannot retract a shown message implement Cancel as a no-op.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PulsePoll/internal/models"
)

// Notifier is the notification-rendering collaborator contract.
type Notifier interface {
	// Show presents a composed payload, replacing any visible notification
	// with the same NotificationID.
	Show(ctx context.Context, payload models.NotificationPayload) error
	// Cancel clears the notification with the given id; idempotent, no-op
	// when nothing is visible.
	Cancel(ctx context.Context, notificationID int32) error
}

// LogNotifier renders notifications to the structured log. It is the default
// channel and the development stand-in for a real presentation surface.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Show(ctx context.Context, payload models.NotificationPayload) error {
	slog.Info("Notification shown",
		"notification_id", payload.NotificationID,
		"sensor_id", payload.SensorID,
		"body", payload.Body,
		"actions", len(payload.Actions),
		"sound", payload.Sound,
		"vibrate", payload.Vibrate)
	return nil
}

func (n *LogNotifier) Cancel(ctx context.Context, notificationID int32) error {
	slog.Debug("Notification cancelled", "notification_id", notificationID)
	return nil
}

// MessageSender sends a plain text message to a recipient. Implemented by
// the WhatsApp and Twilio SMS clients.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// ChannelNotifier renders survey payloads as text messages over a messaging
// channel. Messages cannot be retracted, so Cancel is a no-op; the
// response machine's own clearing stays idempotent regardless.
type ChannelNotifier struct {
	sender MessageSender
	to     string
}

// NewChannelNotifier creates a notifier sending to one recipient.
func NewChannelNotifier(sender MessageSender, to string) *ChannelNotifier {
	return &ChannelNotifier{sender: sender, to: to}
}

func (n *ChannelNotifier) Show(ctx context.Context, payload models.NotificationPayload) error {
	if n.to == "" {
		return fmt.Errorf("channel notifier recipient not configured")
	}
	body := FormatPayload(payload)
	if err := n.sender.SendMessage(ctx, n.to, body); err != nil {
		return fmt.Errorf("failed to show notification for %s: %w", payload.SensorID, err)
	}
	slog.Debug("ChannelNotifier Show succeeded", "sensor_id", payload.SensorID, "to", n.to)
	return nil
}

func (n *ChannelNotifier) Cancel(ctx context.Context, notificationID int32) error {
	slog.Debug("ChannelNotifier Cancel ignored (messages cannot be retracted)", "notification_id", notificationID)
	return nil
}

// FormatPayload renders a composed payload as message text: the prompt,
// numbered quick actions, and the overflow hint when present.
func FormatPayload(payload models.NotificationPayload) string {
	var b strings.Builder
	b.WriteString(payload.Title)
	b.WriteString("\n")
	b.WriteString(payload.Body)
	for i, action := range payload.Actions {
		if action.Intent.Kind != models.IntentAction {
			b.WriteString("\nReply 'more' for all options.")
			continue
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, action.Label)
	}
	return b.String()
}
