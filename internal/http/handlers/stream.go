package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
)

type StreamHandler struct {
	log     *logger.Logger
	relay   *relay.Relay
	prompts *prompts.Pack
}

func NewStreamHandler(log *logger.Logger, rl *relay.Relay, pack *prompts.Pack) *StreamHandler {
	return &StreamHandler{log: log.With("handler", "StreamHandler"), relay: rl, prompts: pack}
}

// GET /stream?prompt=... or ?messages=[{"sender","text"}...]
func (h *StreamHandler) Stream(c *gin.Context) {
	prompt := strings.TrimSpace(c.Query("prompt"))
	rawMessages := strings.TrimSpace(c.Query("messages"))

	var msgs []openai.Message
	switch {
	case prompt != "":
		msgs = relay.PromptMessages(h.prompts.TutorSystem(), prompt)
	case rawMessages != "":
		history, err := relay.ParseHistory(rawMessages)
		if err != nil {
			response.RespondAPIError(c, apierr.Client(apierr.CodeInvalidRequest, "%v", err))
			return
		}
		msgs = relay.HistoryMessages(h.prompts.TutorSystem(), history)
		if len(msgs) < 2 {
			response.RespondAPIError(c, apierr.Client(apierr.CodeInvalidRequest, "messages has no text"))
			return
		}
	default:
		response.RespondAPIError(c, apierr.MissingField("prompt"))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	writeStreamHeaders(c)
	res := streamEvents(c, cancel, h.relay.Run(ctx, msgs))
	h.log.Debug("Stream finished", "outcome", res.Outcome)
}
