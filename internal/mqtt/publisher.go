package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends invalidation broadcasts. It is a short-lived client for tooling,
// so it neither reconnects nor retries.
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

func NewPublisher(cfg config.Config, clientID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	return &Publisher{
		client: mqtt.NewClient(opts),
		topic:  cfg.MQTTTopic,
		logger: logger,
	}
}

func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		p.client.Disconnect(0)
		return ctx.Err()
	}
}

// PublishInvalidation publishes msg at QoS 1, stamping At when unset.
func (p *Publisher) PublishInvalidation(ctx context.Context, msg Invalidation) error {
	data, err := encodeInvalidation(msg, time.Now)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 1, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		p.logger.Error("failed to publish invalidation", "topic", p.topic, "error", err)
		return fmt.Errorf("publish invalidation: %w", err)
	}
	p.logger.Debug("published invalidation", "topic", p.topic, "source", msg.Source)
	return nil
}

func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}

func encodeInvalidation(msg Invalidation, now func() time.Time) ([]byte, error) {
	if msg.At.IsZero() {
		msg.At = now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal invalidation: %w", err)
	}
	return data, nil
}
