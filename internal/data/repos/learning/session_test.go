package learning

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tutorbridge-backend/internal/domain"
)

func TestSessionRepoCreateIfAbsent(t *testing.T) {
	db := testutil.DB(t)
	repo := NewSessionRepo(db, testutil.Logger(t))
	ctx := context.Background()

	childID, curriculumID := uuid.New(), uuid.New()
	first := &types.Session{
		ChildID:      childID,
		CurriculumID: curriculumID,
		SubjectName:  "Fractions",
		StartedAt:    time.Now().UTC(),
		Status:       types.SessionActive,
	}
	created, err := repo.CreateIfAbsent(ctx, nil, first)
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("CreateIfAbsent: expected insert")
	}

	second := &types.Session{
		ChildID:      childID,
		CurriculumID: curriculumID,
		SubjectName:  "Fractions",
		StartedAt:    time.Now().UTC(),
		Status:       types.SessionActive,
	}
	created, err = repo.CreateIfAbsent(ctx, nil, second)
	if err != nil {
		t.Fatalf("CreateIfAbsent (repeat): %v", err)
	}
	if created {
		t.Fatalf("CreateIfAbsent (repeat): expected no insert")
	}

	got, err := repo.GetByChildAndCurriculum(ctx, nil, childID, curriculumID)
	if err != nil {
		t.Fatalf("GetByChildAndCurriculum: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("GetByChildAndCurriculum: want=%v got=%+v", first.ID, got)
	}
}

func TestSessionRepoUpdateFields(t *testing.T) {
	db := testutil.DB(t)
	repo := NewSessionRepo(db, testutil.Logger(t))
	ctx := context.Background()

	s := &types.Session{
		ChildID:          uuid.New(),
		CurriculumID:     uuid.New(),
		SubjectName:      "Fractions",
		StartedAt:        time.Now().UTC(),
		CompletedLessons: []int{0},
		ChatHistory:      []types.ChatMessage{{Sender: types.SenderStudent, Text: "oi"}},
		Status:           types.SessionActive,
	}
	if _, err := repo.CreateIfAbsent(ctx, nil, s); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}

	n, err := repo.UpdateFields(ctx, nil, s.ID, map[string]any{"current_lesson": 2})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if n != 1 {
		t.Fatalf("UpdateFields: want=1 got=%d", n)
	}

	got, err := repo.GetByID(ctx, nil, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CurrentLesson != 2 {
		t.Fatalf("currentLesson: want=2 got=%d", got.CurrentLesson)
	}
	if len(got.CompletedLessons) != 1 || len(got.ChatHistory) != 1 || got.ChatHistory[0].Text != "oi" {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	n, err = repo.UpdateFields(ctx, nil, uuid.New(), map[string]any{"current_lesson": 1})
	if err != nil {
		t.Fatalf("UpdateFields (missing): %v", err)
	}
	if n != 0 {
		t.Fatalf("UpdateFields (missing): want=0 got=%d", n)
	}
}
