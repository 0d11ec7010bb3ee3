package domain

import (
	"github.com/yungbote/tutorbridge-backend/internal/domain/learning"
	"github.com/yungbote/tutorbridge-backend/internal/domain/user"
)

type User = user.User

type Curriculum = learning.Curriculum
type CurriculumContent = learning.CurriculumContent
type Lesson = learning.Lesson
type ChildAssignment = learning.ChildAssignment
type Session = learning.Session
type ChatMessage = learning.ChatMessage

const (
	RoleParent = user.RoleParent
	RoleChild  = user.RoleChild

	CurriculumPendingReview = learning.CurriculumPendingReview
	CurriculumApproved      = learning.CurriculumApproved
	CurriculumCancelled     = learning.CurriculumCancelled

	SessionActive    = learning.SessionActive
	SessionCompleted = learning.SessionCompleted

	SenderStudent = learning.SenderStudent
	SenderTutor   = learning.SenderTutor
)

// Models lists every document type owned by this service, in migration order.
func Models() []any {
	return []any{
		&User{},
		&Curriculum{},
		&ChildAssignment{},
		&Session{},
	}
}
