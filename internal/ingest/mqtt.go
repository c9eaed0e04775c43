package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const connectTimeout = 10 * time.Second

// Subscriber maintains a long-lived subscription to the alert topic on an
// external MQTT broker. The paho client owns reconnection; the subscriber
// resubscribes on every (re)connect. Per-message failures are logged and
// recorded, never escalated.
type Subscriber struct {
	logger   *slog.Logger
	pipeline *Pipeline
	client   mqtt.Client
	topic    string
}

// NewSubscriber configures a paho client against the broker URL. Connection
// is deferred to Start.
func NewSubscriber(brokerURL, topic string, pipeline *Pipeline, logger *slog.Logger) *Subscriber {
	s := &Subscriber{logger: logger, pipeline: pipeline, topic: topic}

	clientID := fmt.Sprintf("skywatch-server-%d", time.Now().UnixNano())
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.topic, "error", token.Error())
			return
		}
		s.logger.Info("mqtt subscribed", "topic", s.topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		// Transport owns reconnection; just surface the event.
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Start initiates the broker connection. A broker that is down at startup is
// not fatal: the client keeps retrying in the background.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		s.logger.Warn("mqtt broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		s.logger.Warn("mqtt connect failed, retrying in background", "error", err)
		return nil
	}
	s.logger.Info("mqtt connected")
	return nil
}

// Stop disconnects from the broker, allowing in-flight handlers to finish.
func (s *Subscriber) Stop() {
	s.client.Disconnect(250)
	s.logger.Info("mqtt disconnected")
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx := context.Background()

	var raw map[string]any
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.logger.Warn("mqtt payload decode failed", "topic", msg.Topic(), "error", err)
		s.pipeline.RecordFailure(ctx, SourceMQTT, msg.Payload(), fmt.Errorf("decode payload: %w", err))
		return
	}

	stored, err := s.pipeline.Ingest(ctx, SourceMQTT, raw)
	if err != nil {
		s.logger.Warn("mqtt alert dropped", "topic", msg.Topic(), "error", err)
		s.pipeline.RecordFailure(ctx, SourceMQTT, msg.Payload(), err)
		return
	}

	s.logger.Info("ingested mqtt alert",
		"type", stored.Type,
		"lat", stored.Latitude,
		"lng", stored.Longitude,
		"intensity", stored.Intensity,
	)
}
