package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
)

// parseID reads a required UUID field. Empty is a missing field, garbage is a bad request.
func parseID(name, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, apierr.MissingField(name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierr.Client(apierr.CodeInvalidRequest, "%s must be a UUID", name)
	}
	return id, nil
}

// parseIDs parses name/value pairs in order and stops at the first failure.
func parseIDs(pairs ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		id, err := parseID(pairs[i], pairs[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func badBody(err error) error {
	return apierr.Client(apierr.CodeInvalidRequest, "invalid JSON body: %v", err)
}

// streamEvents commits event-stream headers and forwards relay events until a
// terminal event or a dead client. cancel aborts the upstream run.
func streamEvents(c *gin.Context, cancel context.CancelFunc, events <-chan relay.Event) relay.Result {
	res, err := relay.Forward(c.Writer, c.Writer.Flush, events)
	if err != nil {
		cancel()
	}
	return res
}

func writeStreamHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
}
