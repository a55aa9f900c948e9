package services

import (
	"context"
	"fmt"
	"time"

	"strapmon/config"
	"strapmon/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSubscriber receives push events from an MQTT broker. Each event is
// published on <prefix>/<event name> with its JSON payload as the body.
type MQTTSubscriber struct {
	config *config.Config
	link   *LinkMonitor
	logger *zap.Logger
}

// EventTopic returns the topic an event of the given kind is published on
func EventTopic(prefix string, kind models.EventKind) string {
	return prefix + "/" + string(kind)
}

// NewMQTTSubscriber creates a subscriber for the configured broker. link
// may be nil.
func NewMQTTSubscriber(cfg *config.Config, link *LinkMonitor, logger *zap.Logger) *MQTTSubscriber {
	return &MQTTSubscriber{
		config: cfg,
		link:   link,
		logger: logger,
	}
}

// Start connects, subscribes to every event topic and forwards decoded
// events until ctx is cancelled. The subscription is renewed by the
// connect handler, so it survives automatic reconnects.
func (s *MQTTSubscriber) Start(ctx context.Context, events chan<- models.Event) error {
	filter := s.config.MQTTTopicPrefix + "/#"

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		name := lastSegment(msg.Topic(), "/")
		ev, err := models.DecodeEventChecked(name, msg.Payload())
		if err != nil {
			s.logger.Warn("Event body unreadable, using placeholders",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
		s.logger.Debug("Received event from MQTT",
			zap.String("topic", msg.Topic()),
			zap.String("kind", string(ev.Kind())))
		forwardEvent(ctx, events, ev)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.config.MQTTBroker))
	opts.SetClientID(s.config.MQTTClientID)
	if s.config.MQTTUser != "" {
		opts.SetUsername(s.config.MQTTUser)
		opts.SetPassword(s.config.MQTTPass)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)

	// Connection handler
	opts.OnConnect = func(client mqtt.Client) {
		s.logger.Info("Connected to MQTT broker",
			zap.String("broker", s.config.MQTTBroker),
			zap.String("filter", filter))

		token := client.Subscribe(filter, 1, handler)
		if token.Wait() && token.Error() != nil {
			s.logger.Error("Failed to subscribe to event topics", zap.Error(token.Error()))
			if s.link != nil {
				s.link.MarkDisconnected(token.Error())
			}
			return
		}
		if s.link != nil {
			s.link.MarkConnected()
		}
	}

	// Connection lost handler
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Error("MQTT connection lost", zap.Error(err))
		if s.link != nil {
			s.link.MarkDisconnected(err)
		}
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	<-ctx.Done()
	s.logger.Info("Disconnecting from MQTT broker...")
	client.Disconnect(250)
	return nil
}

// forwardEvent hands ev to the event loop. It reports false when ctx ended
// first.
func forwardEvent(ctx context.Context, events chan<- models.Event, ev models.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
