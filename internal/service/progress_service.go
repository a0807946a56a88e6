package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/entity"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/pkg/events"
	"deep-research-agent/pkg/research"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ProgressTopic is the in-process topic every research event is published on.
const ProgressTopic = "research.progress"

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type runIDKey struct{}

// WithRunID tags ctx with the correlation id of a research run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

type IProgressService interface {
	research.ProgressListener
	RunCompleted(ctx context.Context, result *research.RunResult)
	RunFailed(ctx context.Context, sessionID, reason string)
	// Subscribe streams events until ctx is done.
	Subscribe(ctx context.Context) (<-chan events.Envelope, error)
	Close() error
}

type progressService struct {
	pubSub *gochannel.GoChannel
	remote EventPublisher
	logger logger.ILogger
	now    func() time.Time
}

// NewProgressService fans research events out to the in-process bus and,
// when remote is non-nil, to NATS. Publish failures are logged, never
// returned: progress reporting must not affect a run.
func NewProgressService(pubSub *gochannel.GoChannel, remote EventPublisher, log logger.ILogger) IProgressService {
	if pubSub == nil {
		pubSub = NewProgressBus()
	}
	return &progressService{
		pubSub: pubSub,
		remote: remote,
		logger: logger.OrNop(log),
		now:    time.Now,
	}
}

// NewProgressBus creates the in-process pub/sub used for progress events.
func NewProgressBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
}

func (p *progressService) StageCompleted(ctx context.Context, sessionID string, result entity.StageResult, totalStages int) {
	summary, _ := result.Finding["summary"].(string)
	p.publish(ctx, events.StageCompletedEvent{
		RunID:       RunIDFrom(ctx),
		SessionID:   sessionID,
		Stage:       result.Stage,
		StageName:   result.StageName,
		TotalStages: totalStages,
		Degraded:    result.Degraded(),
		Error:       result.Error,
		Summary:     summary,
		OccurredAt:  result.Timestamp,
	})
}

func (p *progressService) RunCompleted(ctx context.Context, result *research.RunResult) {
	if result == nil {
		return
	}
	evt := events.RunCompletedEvent{
		RunID:           RunIDFrom(ctx),
		SessionID:       result.SessionID,
		ConfidenceScore: result.ConfidenceScore,
		OccurredAt:      p.now().UTC(),
	}
	if result.Conclusions != nil {
		evt.StagesCompleted = result.Conclusions.StagesCompleted
		evt.StagesDegraded = result.Conclusions.StagesDegraded
	}
	p.publish(ctx, evt)
}

func (p *progressService) RunFailed(ctx context.Context, sessionID, reason string) {
	p.publish(ctx, events.RunFailedEvent{
		RunID:      RunIDFrom(ctx),
		SessionID:  sessionID,
		Reason:     reason,
		OccurredAt: p.now().UTC(),
	})
}

func (p *progressService) publish(ctx context.Context, evt events.Event) {
	payload, err := json.Marshal(events.ToEnvelope(evt))
	if err != nil {
		p.logger.Error(constant.LogModuleProgress, "Failed to encode progress event", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pubSub.Publish(ProgressTopic, msg); err != nil {
		p.logger.Warn(constant.LogModuleProgress, "Failed to publish progress event", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}

	if p.remote == nil {
		return
	}
	// a cancelled run still reports its last stage and the failure
	if err := p.remote.Publish(context.WithoutCancel(ctx), evt); err != nil {
		p.logger.Warn(constant.LogModuleProgress, "Failed to forward progress event to NATS", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
}

func (p *progressService) Subscribe(ctx context.Context) (<-chan events.Envelope, error) {
	messages, err := p.pubSub.Subscribe(ctx, ProgressTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to progress: %w", err)
	}

	out := make(chan events.Envelope, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var env events.Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				p.logger.Warn(constant.LogModuleProgress, "Dropping malformed progress event", map[string]interface{}{
					"error": err.Error(),
				})
				msg.Ack()
				continue
			}
			select {
			case out <- env:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

func (p *progressService) Close() error {
	return p.pubSub.Close()
}
