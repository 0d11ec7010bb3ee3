package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SessionActive    = "active"
	SessionCompleted = "completed"

	SenderStudent = "Student"
	SenderTutor   = "LLM"
)

// ChatMessage is one transcript entry. Loading is a client-side flag and is never stored as true.
type ChatMessage struct {
	Sender  string `json:"sender"`
	Text    string `json:"text"`
	Loading bool   `json:"loading,omitempty"`
}

// Session tracks one child's progress through one curriculum. At most one exists per pair.
type Session struct {
	ID               uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	ChildID          uuid.UUID                        `gorm:"type:uuid;column:child_id;not null;uniqueIndex:idx_session_child_curriculum" json:"childId"`
	CurriculumID     uuid.UUID                        `gorm:"type:uuid;column:curriculum_id;not null;uniqueIndex:idx_session_child_curriculum" json:"curriculumId"`
	SubjectName      string                           `gorm:"column:subject_name;not null" json:"subjectName"`
	StartedAt        time.Time                        `gorm:"column:started_at;not null" json:"startedAt"`
	CurrentLesson    int                              `gorm:"column:current_lesson;not null;default:0" json:"currentLesson"`
	CompletedLessons datatypes.JSONSlice[int]         `gorm:"column:completed_lessons" json:"completedLessons"`
	ChatHistory      datatypes.JSONSlice[ChatMessage] `gorm:"column:chat_history" json:"chatHistory"`
	Status           string                           `gorm:"column:status;not null;default:'active'" json:"status"`
	UpdatedAt        time.Time                        `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Session) TableName() string { return "tutoring_session" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
