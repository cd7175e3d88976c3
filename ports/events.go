package ports

import (
	"context"

	"github.com/layer-3/demogate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSessionIssued(ctx context.Context, session *core.Session) error
}
