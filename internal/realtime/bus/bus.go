package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
)

// Bus fans realtime messages out across service instances.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}

// Emitter publishes on the bus; every instance's forwarder broadcasts into its own hub.
type Emitter struct {
	Bus Bus
	Log *logger.Logger
}

func (e Emitter) Emit(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent, data any) {
	if e.Bus == nil || userID == uuid.Nil {
		return
	}
	msg := realtime.SSEMessage{Channel: realtime.UserChannel(userID), Event: event, Data: data}
	if err := e.Bus.Publish(ctx, msg); err != nil && e.Log != nil {
		e.Log.Warn("realtime publish failed", "event", event, "error", err)
	}
}
