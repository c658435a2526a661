// Package composer builds notification payload descriptors from sensor
// definitions and trigger events.
//
// Compose is a pure function: it schedules nothing, persists nothing and
// delivers nothing, and identical inputs yield identical payloads.
package composer

import (
	"fmt"
	"hash/fnv"

	"github.com/BTreeMap/PulsePoll/internal/models"
)

// DefaultTitle is the fixed prompt title shown on every survey notification.
const DefaultTitle = "PulsePoll"

// NotificationID derives the stable numeric display key for a sensor. Using
// one id per sensor guarantees that a new firing replaces, rather than
// stacks atop, an unanswered prior notification for the same sensor.
func NotificationID(sensorID string) int32 {
	h := fnv.New32a()
	h.Write([]byte(sensorID))
	return int32(h.Sum32())
}

// Compose derives the notification payload for one trigger firing.
//
// Action derivation: free-text sensors get no quick actions; choice sensors
// get one direct action per option up to two; exactly three options in
// single-choice mode get all three directly; any other case with three or
// more options gets two direct actions plus the overflow action that opens
// the full response view instead of submitting.
func Compose(def models.SensorDefinition, event models.TriggerEvent, sound, vibrate bool) (models.NotificationPayload, error) {
	eventPayload, err := event.Encode()
	if err != nil {
		return models.NotificationPayload{}, fmt.Errorf("compose failed for %s: %w", def.ID, err)
	}

	payload := models.NotificationPayload{
		NotificationID: NotificationID(def.ID),
		SensorID:       def.ID,
		Title:          DefaultTitle,
		Body:           def.Message,
		Sound:          sound,
		Vibrate:        vibrate,
		OpenAction:     models.OpenIntent(),
		DismissAction:  models.DeleteIntent(),
		EventPayload:   eventPayload,
	}

	options := def.Options
	if def.HasChoices() && len(options) > 0 {
		if len(options) >= 1 {
			payload.Actions = append(payload.Actions, directAction(options[0]))
		}
		if len(options) >= 2 {
			payload.Actions = append(payload.Actions, directAction(options[1]))
		}
		if len(options) == 3 && def.Mode == models.ResponseModeSingleChoice {
			payload.Actions = append(payload.Actions, directAction(options[2]))
		} else if len(options) >= 3 {
			payload.Actions = append(payload.Actions, models.NotificationAction{
				Label:  models.MoreOptionsLabel,
				Intent: models.OpenIntent(),
			})
		}
	}

	return payload, nil
}

func directAction(label string) models.NotificationAction {
	return models.NotificationAction{
		Label:  label,
		Intent: models.ActionIntent(label),
	}
}
