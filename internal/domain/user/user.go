package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// User is the profile document paired with an identity. ID equals the identity uid.
// Role and parent linkage never change after signup.
type User struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"uid"`
	Email            string     `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Name             string     `gorm:"column:name;not null;default:''" json:"name"`
	Role             string     `gorm:"column:role;not null;index" json:"role"`
	ParentID         *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parentId,omitempty"`
	InviteCode       *string    `gorm:"column:invite_code;uniqueIndex" json:"inviteCode,omitempty"`
	Progress         int        `gorm:"column:progress;not null;default:0" json:"progress"`
	TimeSpentSeconds int        `gorm:"column:time_spent_seconds;not null;default:0" json:"timeSpent"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string { return "user_profile" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func ValidRole(role string) bool {
	return role == RoleParent || role == RoleChild
}
