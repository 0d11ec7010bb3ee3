package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
)

// ChatTurn streams the tutor's reply to one student message. The transcript is
// written only once the reply is complete: a Done event is forwarded after the
// student message and the full reply are stored, an Error event leaves the
// session untouched.
func (ss *sessionService) ChatTurn(ctx context.Context, sessionID uuid.UUID, message string) (<-chan relay.Event, error) {
	message = strings.TrimSpace(message)
	switch {
	case sessionID == uuid.Nil:
		return nil, apierr.MissingField("sessionId")
	case message == "":
		return nil, apierr.MissingField("message")
	}
	s, err := ss.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := ss.turnMessages(ctx, s, message)
	if err != nil {
		return nil, err
	}

	upstream := ss.relay.Run(ctx, msgs)
	out := make(chan relay.Event)
	go func() {
		defer close(out)
		for ev := range upstream {
			if ev.Kind == relay.KindDone {
				if err := ss.appendTurn(context.WithoutCancel(ctx), s.ID, message, ev.Text); err != nil {
					ss.log.Error("Persist chat turn failed", "session_id", s.ID, "error", err)
					ev = relay.Event{Kind: relay.KindError, Text: "could not save the conversation"}
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// turnMessages builds system context from the current lesson plus the most recent transcript.
func (ss *sessionService) turnMessages(ctx context.Context, s *types.Session, message string) ([]openai.Message, error) {
	data := prompts.ChatTurnData{Subject: s.SubjectName}
	c, err := ss.curriculumRepo.GetByID(ctx, nil, s.CurriculumID)
	if err != nil {
		return nil, apierr.Upstream("load curriculum", err)
	}
	if c != nil {
		data.AgeRange = c.AgeRange
		data.LessonCount = len(c.Lessons)
		if s.CurrentLesson >= 0 && s.CurrentLesson < len(c.Lessons) {
			lesson := c.Lessons[s.CurrentLesson]
			data.Lesson = &lesson
			data.LessonNumber = s.CurrentLesson + 1
		}
	}
	turnContext, err := ss.prompts.ChatTurn(data)
	if err != nil {
		return nil, apierr.Upstream("render chat prompt", err)
	}
	system := strings.TrimSpace(ss.prompts.TutorSystem()) + "\n\n" + strings.TrimSpace(turnContext)

	history := []types.ChatMessage(s.ChatHistory)
	if keep := ss.prompts.HistoryTurns(); keep > 0 && len(history) > keep {
		history = history[len(history)-keep:]
	}
	msgs := relay.HistoryMessages(system, history)
	return append(msgs, openai.Message{Role: openai.RoleUser, Content: message}), nil
}

func (ss *sessionService) appendTurn(ctx context.Context, sessionID uuid.UUID, message, reply string) error {
	return ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := ss.sessionRepo.GetByID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return gorm.ErrRecordNotFound
		}
		history := append([]types.ChatMessage(s.ChatHistory),
			types.ChatMessage{Sender: types.SenderStudent, Text: message},
			types.ChatMessage{Sender: types.SenderTutor, Text: reply},
		)
		_, err = ss.sessionRepo.UpdateFields(ctx, tx, sessionID, map[string]any{
			"chat_history": datatypes.JSONSlice[types.ChatMessage](history),
		})
		return err
	})
}
