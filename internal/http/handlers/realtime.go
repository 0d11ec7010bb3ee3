package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/realtime/stream
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID := ctxutil.CallerID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondAPIError(c, apierr.Unauthorized("a signed-in caller is required"))
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	defer h.hub.CloseClient(client)

	h.log.Debug("Realtime stream opened", "user_id", userID, "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
