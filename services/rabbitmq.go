package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"strapmon/config"
	"strapmon/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const mqttBridgeExchange = "amq.topic"

// RabbitMQService receives push events from a RabbitMQ topic exchange. The
// queue is also bound to the broker's MQTT bridge so straps publishing over
// MQTT reach the dashboard through the same consumer.
type RabbitMQService struct {
	config    *config.Config
	link      *LinkMonitor
	logger    *zap.Logger
	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	closed    chan *amqp.Error
	reconnect chan struct{}
	isClosing atomic.Bool
}

// NewRabbitMQService connects to the broker and declares the topology.
// link may be nil.
func NewRabbitMQService(cfg *config.Config, link *LinkMonitor, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		config:    cfg,
		link:      link,
		logger:    logger,
		reconnect: make(chan struct{}, 1),
	}

	if err := service.connect(); err != nil {
		return nil, err
	}

	return service, nil
}

// connect establishes connection to RabbitMQ and declares exchange and queue
func (r *RabbitMQService) connect() error {
	r.logger.Info("Connecting to RabbitMQ", zap.String("url", redactURL(r.config.RabbitMQURL)))

	// Connect to RabbitMQ with retry
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(r.config.RabbitMQURL)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	r.logger.Info("Connected to RabbitMQ successfully")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := r.declare(channel); err != nil {
		conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.channel = channel
	r.closed = conn.NotifyClose(make(chan *amqp.Error, 1))
	r.mu.Unlock()

	if r.link != nil {
		r.link.MarkConnected()
	}
	return nil
}

// declare sets up the exchange, the queue and its bindings
func (r *RabbitMQService) declare(channel *amqp.Channel) error {
	// Events are small, keep prefetch modest
	if err := channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err := channel.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"topic",                   // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		r.config.RabbitMQQueue, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Every event published on our exchange
	if err := channel.QueueBind(queue.Name, "#", r.config.RabbitMQExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	// Events arriving through the MQTT plugin
	bridgeKey := mqttRoutingKey(r.config.MQTTTopicPrefix) + ".#"
	if err := channel.QueueBind(queue.Name, bridgeKey, mqttBridgeExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to MQTT exchange: %w", err)
	}

	r.logger.Info("Queue bound",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange),
		zap.String("bridge_routing_key", bridgeKey))
	return nil
}

// handleReconnect re-dials whenever the connection drops, until ctx is
// cancelled or the service is closed
func (r *RabbitMQService) handleReconnect(ctx context.Context) {
	for {
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()

		var closeErr *amqp.Error
		select {
		case <-ctx.Done():
			return
		case closeErr = <-closed:
		}

		if r.isClosing.Load() {
			r.logger.Info("RabbitMQ connection closed gracefully")
			return
		}

		var lost error
		if closeErr != nil {
			lost = closeErr
		}
		r.logger.Error("RabbitMQ connection lost", zap.Error(lost))
		if r.link != nil {
			r.link.MarkDisconnected(lost)
		}

		for {
			r.logger.Info("Attempting to reconnect to RabbitMQ...")
			err := r.connect()
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				select {
				case r.reconnect <- struct{}{}:
				default:
				}
				break
			}

			r.logger.Error("Failed to reconnect", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// Consume delivers decoded events to events until ctx is cancelled
func (r *RabbitMQService) Consume(ctx context.Context, events chan<- models.Event) error {
	go r.handleReconnect(ctx)

	for {
		r.mu.Lock()
		channel := r.channel
		r.mu.Unlock()

		msgs, err := channel.Consume(
			r.config.RabbitMQQueue, // queue
			"strapmon-dashboard",   // consumer tag
			false,                  // auto-ack (false = manual ack)
			false,                  // exclusive
			false,                  // no-local
			false,                  // no-wait
			nil,                    // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		r.logger.Info("Started consuming messages from RabbitMQ",
			zap.String("queue", r.config.RabbitMQQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping RabbitMQ consumer")
				return nil

			case <-r.reconnect:
				r.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("Message channel closed, waiting for reconnect")
					select {
					case <-ctx.Done():
						return nil
					case <-r.reconnect:
					}
					break consumeLoop
				}

				if err := r.processMessage(ctx, msg, events); err != nil {
					r.logger.Error("Failed to process message",
						zap.Error(err),
						zap.String("message_id", msg.MessageId))

					// Negative acknowledgment - requeue the message
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}
}

// processMessage decodes one delivery and forwards it. Malformed bodies are
// not an error: they decode with placeholders and are acknowledged.
func (r *RabbitMQService) processMessage(ctx context.Context, msg amqp.Delivery, events chan<- models.Event) error {
	name := msg.Type
	if name == "" {
		name = lastSegment(msg.RoutingKey, ".")
	}

	ev, err := models.DecodeEventChecked(name, msg.Body)
	if err != nil {
		r.logger.Warn("Event body unreadable, using placeholders",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("message_id", msg.MessageId),
			zap.Error(err))
	}

	r.logger.Debug("Received event from RabbitMQ",
		zap.String("event", name),
		zap.String("kind", string(ev.Kind())),
		zap.String("routing_key", msg.RoutingKey),
		zap.String("correlation_id", msg.CorrelationId))

	if !forwardEvent(ctx, events, ev) {
		return fmt.Errorf("consumer stopping: %w", ctx.Err())
	}
	return nil
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.isClosing.Store(true)

	r.logger.Info("Closing RabbitMQ connection")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}

// Publish sends one event to the exchange, routed by its wire kind.
// An empty correlationID groups nothing; the message id is always fresh.
func (r *RabbitMQService) Publish(ctx context.Context, ev models.Event, correlationID string) error {
	kind, body, err := models.EncodeEvent(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	channel := r.channel
	r.mu.Unlock()

	err = channel.PublishWithContext(ctx,
		r.config.RabbitMQExchange, // exchange
		string(kind),              // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Type:          string(kind),
			MessageId:     uuid.NewString(),
			CorrelationId: correlationID,
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	r.logger.Debug("Published event to RabbitMQ", zap.String("kind", string(kind)))
	return nil
}

// mqttRoutingKey converts an MQTT topic into the routing key the broker's
// MQTT plugin uses on amq.topic
func mqttRoutingKey(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// redactURL hides the password of a broker URL for logging
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return raw[:scheme+3] + userinfo[:colon] + ":***" + raw[at:]
	}
	return raw
}
