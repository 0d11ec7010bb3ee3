package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	sessions services.SessionService
}

func NewSessionHandler(log *logger.Logger, sessions services.SessionService) *SessionHandler {
	return &SessionHandler{log: log.With("handler", "SessionHandler"), sessions: sessions}
}

func sessionPayload(s *types.Session) gin.H {
	return gin.H{
		"sessionId":        s.ID,
		"childId":          s.ChildID,
		"curriculumId":     s.CurriculumID,
		"subjectName":      s.SubjectName,
		"startedAt":        s.StartedAt,
		"currentLesson":    s.CurrentLesson,
		"completedLessons": s.CompletedLessons,
		"chatHistory":      s.ChatHistory,
		"status":           s.Status,
	}
}

type startSessionRequest struct {
	ChildID      string `json:"childId"`
	CurriculumID string `json:"curriculumId"`
	SubjectName  string `json:"subjectName"`
}

// POST /api/subject/session
func (h *SessionHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	ids, err := parseIDs("childId", req.ChildID, "curriculumId", req.CurriculumID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	s, created, err := h.sessions.StartOrFetch(c.Request.Context(), services.StartSessionInput{
		ChildID:      ids[0],
		CurriculumID: ids[1],
		SubjectName:  req.SubjectName,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if created {
		response.RespondCreated(c, sessionPayload(s))
		return
	}
	response.RespondOK(c, sessionPayload(s))
}

type progressRequest struct {
	SessionID        string               `json:"sessionId"`
	CurrentLesson    *int                 `json:"currentLesson"`
	CompletedLessons *[]int               `json:"completedLessons"`
	ChatHistory      *[]types.ChatMessage `json:"chatHistory"`
	TimeSpent        *int                 `json:"timeSpent"`
}

// POST /api/subject/progress
func (h *SessionHandler) Progress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	id, err := parseID("sessionId", req.SessionID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if req.TimeSpent != nil && *req.TimeSpent < 0 {
		response.RespondAPIError(c, apierr.Client(apierr.CodeInvalidRequest, "timeSpent must not be negative"))
		return
	}
	err = h.sessions.UpdateProgress(c.Request.Context(), services.ProgressUpdate{
		SessionID:        id,
		CurrentLesson:    req.CurrentLesson,
		CompletedLessons: req.CompletedLessons,
		ChatHistory:      req.ChatHistory,
		TimeSpentSeconds: req.TimeSpent,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// GET /api/subject/session/:id
func (h *SessionHandler) Get(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, sessionPayload(s))
}

// GET /api/subject/chat/stream?sessionId=&message=
//
// Validation and ownership failures are plain JSON errors; once the stream
// starts, failures travel as the [ERROR] sentinel.
func (h *SessionHandler) ChatStream(c *gin.Context) {
	id, err := parseID("sessionId", c.Query("sessionId"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	message := strings.TrimSpace(c.Query("message"))
	if message == "" {
		response.RespondAPIError(c, apierr.MissingField("message"))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.sessions.ChatTurn(ctx, id, message)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	writeStreamHeaders(c)
	res := streamEvents(c, cancel, events)
	h.log.Debug("Chat turn finished", "session_id", id, "outcome", res.Outcome)
}

