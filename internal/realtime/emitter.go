package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Emitter delivers lifecycle notifications to users' realtime streams.
type Emitter interface {
	Emit(ctx context.Context, userID uuid.UUID, event SSEEvent, data any)
}

// HubEmitter broadcasts straight into the local hub.
type HubEmitter struct {
	Hub *SSEHub
}

func (e HubEmitter) Emit(_ context.Context, userID uuid.UUID, event SSEEvent, data any) {
	if e.Hub == nil || userID == uuid.Nil {
		return
	}
	e.Hub.Broadcast(SSEMessage{Channel: UserChannel(userID), Event: event, Data: data})
}

// NopEmitter drops every notification.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, uuid.UUID, SSEEvent, any) {}
