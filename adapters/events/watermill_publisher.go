package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/ports"
)

// DefaultTopic is the topic session issuance events are published to.
const DefaultTopic = "demogate.session.issued"

// SessionIssuedEvent represents a successful master login. It never carries
// the token or any secret.
type SessionIssuedEvent struct {
	SessionID string    `json:"session_id"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishSessionIssued publishes a session issuance event
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, session *core.Session) error {
	event := SessionIssuedEvent{
		SessionID: session.ID,
		Subject:   session.Subject,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(session.ID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishSessionIssued does nothing.
func (NopPublisher) PublishSessionIssued(context.Context, *core.Session) error { return nil }
