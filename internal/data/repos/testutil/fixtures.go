package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
)

func SeedParent(tb testing.TB, ctx context.Context, tx *gorm.DB, email, inviteCode string) *types.User {
	tb.Helper()
	code := inviteCode
	u := &types.User{
		ID:         uuid.New(),
		Email:      email,
		Role:       types.RoleParent,
		InviteCode: &code,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed parent: %v", err)
	}
	return u
}

func SeedChild(tb testing.TB, ctx context.Context, tx *gorm.DB, email string, parentID uuid.UUID) *types.User {
	tb.Helper()
	pid := parentID
	u := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Name:     "Kid",
		Role:     types.RoleChild,
		ParentID: &pid,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed child: %v", err)
	}
	return u
}

func SeedCurriculum(tb testing.TB, ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, status string) *types.Curriculum {
	tb.Helper()
	c := &types.Curriculum{
		ID:       uuid.New(),
		ParentID: parentID,
		ChildID:  childID,
		Subject:  "Fractions",
		AgeRange: "8-10",
		CurriculumContent: types.CurriculumContent{
			Title:       "Fractions",
			Overview:    "Parts of a whole",
			Objectives:  []string{"compare fractions"},
			KeyConcepts: []string{"numerator", "denominator"},
			Lessons: []types.Lesson{
				{Title: "Halves", Description: "Split in two", Goals: []string{"g"}, Activities: []string{"a"}},
			},
			Assessment: "quiz",
			Resources:  "blocks",
		},
		Status: status,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed curriculum: %v", err)
	}
	return c
}
