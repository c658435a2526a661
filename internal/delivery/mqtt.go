package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/BTreeMap/PulsePoll/internal/models"
)

// MQTTSink publishes outcomes to an MQTT broker under
// <topicPrefix>/<sensorID>.
type MQTTSink struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTTSink creates an MQTT sink over an already-connected client.
func NewMQTTSink(client mqtt.Client, topicPrefix string) *MQTTSink {
	return &MQTTSink{client: client, topicPrefix: topicPrefix}
}

// ConnectMQTT dials an MQTT broker and returns the connected client.
func ConnectMQTT(brokerURL, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", brokerURL, err)
	}
	return client, nil
}

func (s *MQTTSink) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome for %s: %w", outcome.SensorID, err)
	}

	topic := s.topicPrefix + "/" + outcome.SensorID
	token := s.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		slog.Error("MQTTSink delivery failed", "error", err, "topic", topic)
		return fmt.Errorf("mqtt delivery failed for %s: %w", outcome.SensorID, err)
	}

	slog.Debug("MQTTSink delivery succeeded", "topic", topic)
	return nil
}
