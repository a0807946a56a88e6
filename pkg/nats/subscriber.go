package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: logger.OrNop(log)}, nil
}

// Subscribe registers handler for subjects matching subject. A non-empty
// durableName creates a persistent consumer; an empty one creates an
// ephemeral consumer that only sees new messages. The returned function
// stops consumption.
func (s *Subscriber) Subscribe(ctx context.Context, subject, durableName string, handler EventHandler) (func(), error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durableName == "" {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			s.logger.Error(constant.LogModuleProgress, "Error unmarshalling event data", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			// malformed messages are never going to parse; drop them
			_ = msg.Term()
			return
		}

		if err := handler(ctx, env.Event()); err != nil {
			s.logger.Warn(constant.LogModuleProgress, "Handler failed for event", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	s.logger.Info(constant.LogModuleProgress, "Subscribed to NATS subject", map[string]interface{}{
		"subject": subject,
		"durable": durableName,
	})
	return consumeCtx.Stop, nil
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
