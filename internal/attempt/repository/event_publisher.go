package repository

import (
	"context"
	"encoding/json"
	"time"

	"codearena/internal/attempt/model"
	"codearena/internal/common/mq"
	appErr "codearena/pkg/errors"
)

// AttemptEvent is published when an attempt reaches a terminal state.
type AttemptEvent struct {
	Type        string            `json:"type"`
	Observation model.Observation `json:"observation"`
	CreatedAt   int64             `json:"created_at"`
}

// EventPublisher publishes attempt lifecycle events.
type EventPublisher interface {
	PublishTerminal(ctx context.Context, obs model.Observation) error
}

// MQEventPublisher publishes events to a message queue topic keyed by attempt id.
type MQEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQEventPublisher creates a new publisher.
func NewMQEventPublisher(producer mq.Producer, topic string) *MQEventPublisher {
	return &MQEventPublisher{producer: producer, topic: topic}
}

// PublishTerminal publishes a completed or error observation. Other states are ignored.
func (p *MQEventPublisher) PublishTerminal(ctx context.Context, obs model.Observation) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("event publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("event topic is required")
	}
	if obs.AttemptID == "" {
		return appErr.ValidationError("attempt_id", "required")
	}
	if !obs.Status.IsTerminal() {
		return nil
	}

	event := AttemptEvent{
		Type:        "attempt." + string(obs.Status),
		Observation: obs,
		CreatedAt:   time.Now().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "marshal attempt event failed")
	}
	message := mq.NewMessage(payload)
	message.ID = obs.AttemptID
	message.SetHeader("event", event.Type)
	if obs.ChallengeID != "" {
		message.SetHeader("challenge_id", obs.ChallengeID)
	}
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish attempt event failed")
	}
	return nil
}
