package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Invalidation is a cache-clear broadcast. An empty payload is a valid Invalidation.
type Invalidation struct {
	Source string    `json:"source,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handlerMu sync.RWMutex
	handler   func(Invalidation) error
}

// MQTTSubscriber interface for attaching message handlers
type MQTTSubscriber interface {
	SetMessageHandler(handler func(Invalidation) error)
}

// SetMessageHandler sets the handler called for each valid invalidation message.
func (s *Subscriber) SetMessageHandler(handler func(Invalidation) error) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Resubscribe on every (re)connect; a clean session drops subscriptions.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Enabled reports whether a broker is configured.
func (s *Subscriber) Enabled() bool {
	return strings.TrimSpace(s.cfg.MQTTBroker) != ""
}

// Connect establishes connection to the MQTT broker; the topic is subscribed from the
// connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	msg, err := ParseInvalidation(payload)
	if err != nil {
		s.logger.Warn("failed to parse invalidation message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(msg); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"source", msg.Source,
			"error", err,
		)
	}
}

// ParseInvalidation accepts an empty payload or a JSON Invalidation object.
func ParseInvalidation(payload []byte) (Invalidation, error) {
	var msg Invalidation
	if len(strings.TrimSpace(string(payload))) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Invalidation{}, fmt.Errorf("decode invalidation: %w", err)
	}
	return msg, nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Disconnect without holding s.mu to avoid lock contention/deadlocks.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
