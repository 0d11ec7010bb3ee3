package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
)

// LearningNotifier pushes lifecycle changes onto the owners' realtime streams.
type LearningNotifier interface {
	CurriculumGenerated(ctx context.Context, c *types.Curriculum)
	CurriculumApproved(ctx context.Context, c *types.Curriculum)
	CurriculumRevised(ctx context.Context, c *types.Curriculum)
	CurriculumCancelled(ctx context.Context, c *types.Curriculum)
	SessionStarted(ctx context.Context, s *types.Session)
}

type learningNotifier struct {
	emit realtime.Emitter
}

func NewLearningNotifier(emit realtime.Emitter) LearningNotifier {
	if emit == nil {
		emit = realtime.NopEmitter{}
	}
	return &learningNotifier{emit: emit}
}

func curriculumPayload(c *types.Curriculum) map[string]any {
	return map[string]any{
		"curriculumId": c.ID,
		"childId":      c.ChildID,
		"subject":      c.Subject,
		"title":        c.Title,
		"status":       c.Status,
	}
}

func (n *learningNotifier) CurriculumGenerated(ctx context.Context, c *types.Curriculum) {
	if c == nil {
		return
	}
	n.emit.Emit(ctx, c.ParentID, realtime.EventCurriculumGenerated, curriculumPayload(c))
}

func (n *learningNotifier) CurriculumApproved(ctx context.Context, c *types.Curriculum) {
	if c == nil {
		return
	}
	payload := curriculumPayload(c)
	n.emit.Emit(ctx, c.ParentID, realtime.EventCurriculumApproved, payload)
	child := c.ChildID
	if c.AssignedTo != nil && *c.AssignedTo != uuid.Nil {
		child = *c.AssignedTo
	}
	n.emit.Emit(ctx, child, realtime.EventCurriculumApproved, payload)
}

func (n *learningNotifier) CurriculumRevised(ctx context.Context, c *types.Curriculum) {
	if c == nil {
		return
	}
	n.emit.Emit(ctx, c.ParentID, realtime.EventCurriculumRevised, curriculumPayload(c))
}

func (n *learningNotifier) CurriculumCancelled(ctx context.Context, c *types.Curriculum) {
	if c == nil {
		return
	}
	n.emit.Emit(ctx, c.ParentID, realtime.EventCurriculumCancelled, map[string]any{"curriculumId": c.ID})
}

func (n *learningNotifier) SessionStarted(ctx context.Context, s *types.Session) {
	if s == nil || s.ChildID == uuid.Nil {
		return
	}
	n.emit.Emit(ctx, s.ChildID, realtime.EventSessionStarted, map[string]any{
		"sessionId":    s.ID,
		"curriculumId": s.CurriculumID,
		"subjectName":  s.SubjectName,
	})
}
