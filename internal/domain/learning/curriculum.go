package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CurriculumPendingReview = "pending_review"
	CurriculumApproved      = "approved"
	CurriculumCancelled     = "cancelled"
)

// Lesson is embedded in its curriculum and replaced wholesale on regeneration.
type Lesson struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Goals       []string `json:"goals"`
	Activities  []string `json:"activities"`
}

// CurriculumContent is the generated part of a curriculum, the only part a revision rewrites.
type CurriculumContent struct {
	Title       string                      `gorm:"column:title;not null" json:"title"`
	Overview    string                      `gorm:"column:overview;type:text" json:"overview"`
	Objectives  datatypes.JSONSlice[string] `gorm:"column:objectives" json:"objectives"`
	KeyConcepts datatypes.JSONSlice[string] `gorm:"column:key_concepts" json:"keyConcepts"`
	Lessons     datatypes.JSONSlice[Lesson] `gorm:"column:lessons" json:"lessons"`
	Assessment  string                      `gorm:"column:assessment;type:text" json:"assessment"`
	Resources   string                      `gorm:"column:resources;type:text" json:"resources"`
}

type Curriculum struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParentID uuid.UUID `gorm:"type:uuid;column:parent_id;not null;index" json:"parentId"`
	ChildID  uuid.UUID `gorm:"type:uuid;column:child_id;not null;index" json:"childId"`
	Subject  string    `gorm:"column:subject;not null" json:"subject"`
	AgeRange string    `gorm:"column:age_range;not null" json:"ageRange"`

	CurriculumContent

	Status string `gorm:"column:status;not null;index;default:'pending_review'" json:"status"`

	ApprovedBy *uuid.UUID `gorm:"type:uuid;column:approved_by" json:"approvedBy,omitempty"`
	AssignedTo *uuid.UUID `gorm:"type:uuid;column:assigned_to" json:"assignedTo,omitempty"`
	ApprovedAt *time.Time `gorm:"column:approved_at" json:"approvedAt,omitempty"`

	LastChangeRequest *string    `gorm:"column:last_change_request;type:text" json:"lastChangeRequest,omitempty"`
	ChangeRequestedBy *uuid.UUID `gorm:"type:uuid;column:change_requested_by" json:"changeRequestedBy,omitempty"`
	ChangeRequestedAt *time.Time `gorm:"column:change_requested_at" json:"changeRequestedAt,omitempty"`

	CancelledBy *uuid.UUID `gorm:"type:uuid;column:cancelled_by" json:"cancelledBy,omitempty"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelledAt,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Curriculum) TableName() string { return "curriculum" }

func (c *Curriculum) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ChildAssignment is one member of a child's assigned-curriculum set.
type ChildAssignment struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChildID      uuid.UUID `gorm:"type:uuid;column:child_id;not null;uniqueIndex:idx_child_curriculum" json:"childId"`
	CurriculumID uuid.UUID `gorm:"type:uuid;column:curriculum_id;not null;uniqueIndex:idx_child_curriculum" json:"curriculumId"`
	AssignedBy   uuid.UUID `gorm:"type:uuid;column:assigned_by;not null" json:"assignedBy"`
	AssignedAt   time.Time `gorm:"column:assigned_at;not null" json:"assignedAt"`
}

func (ChildAssignment) TableName() string { return "child_assignment" }

func (a *ChildAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
