package learning

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tutorbridge-backend/internal/domain"
)

func TestCurriculumRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	logg := testutil.Logger(t)
	repo := NewCurriculumRepo(db, logg)
	assignments := NewChildAssignmentRepo(db, logg)
	ctx := context.Background()

	parentID, childID := uuid.New(), uuid.New()
	c := testutil.SeedCurriculum(t, ctx, db, parentID, childID, types.CurriculumPendingReview)

	got, err := repo.GetByID(ctx, nil, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || len(got.Lessons) != 1 || got.Lessons[0].Title != "Halves" {
		t.Fatalf("GetByID: unexpected result: %+v", got)
	}
	if len(got.KeyConcepts) != 2 {
		t.Fatalf("GetByID: keyConcepts want=2 got=%d", len(got.KeyConcepts))
	}

	approved, err := repo.ListApprovedForChild(ctx, nil, childID)
	if err != nil {
		t.Fatalf("ListApprovedForChild: %v", err)
	}
	if len(approved) != 0 {
		t.Fatalf("ListApprovedForChild: pending curriculum must not be listed")
	}

	n, err := repo.UpdateFields(ctx, nil, c.ID, map[string]any{"status": types.CurriculumApproved})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if n != 1 {
		t.Fatalf("UpdateFields: want=1 got=%d", n)
	}
	if err := assignments.Assign(ctx, nil, childID, c.ID, parentID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := assignments.Assign(ctx, nil, childID, c.ID, parentID); err != nil {
		t.Fatalf("Assign (repeat): %v", err)
	}
	ids, err := assignments.ListCurriculumIDs(ctx, nil, childID)
	if err != nil {
		t.Fatalf("ListCurriculumIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != c.ID {
		t.Fatalf("ListCurriculumIDs: unexpected result: %v", ids)
	}

	approved, err = repo.ListApprovedForChild(ctx, nil, childID)
	if err != nil {
		t.Fatalf("ListApprovedForChild: %v", err)
	}
	if len(approved) != 1 || approved[0].ID != c.ID {
		t.Fatalf("ListApprovedForChild: unexpected result: %+v", approved)
	}

	other, err := repo.ListApprovedForChild(ctx, nil, uuid.New())
	if err != nil {
		t.Fatalf("ListApprovedForChild (other child): %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("ListApprovedForChild (other child): want=0 got=%d", len(other))
	}
}

func TestCurriculumRepoSoftAndHardDelete(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCurriculumRepo(db, testutil.Logger(t))
	ctx := context.Background()

	parentID := uuid.New()
	c := testutil.SeedCurriculum(t, ctx, db, parentID, uuid.New(), types.CurriculumPendingReview)
	testutil.SeedCurriculum(t, ctx, db, parentID, uuid.New(), types.CurriculumApproved)

	all, err := repo.ListByParent(ctx, nil, parentID, "")
	if err != nil {
		t.Fatalf("ListByParent: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListByParent: want=2 got=%d", len(all))
	}
	pending, err := repo.ListByParent(ctx, nil, parentID, types.CurriculumPendingReview)
	if err != nil {
		t.Fatalf("ListByParent (pending): %v", err)
	}
	if len(pending) != 1 || pending[0].ID != c.ID {
		t.Fatalf("ListByParent (pending): unexpected result: %+v", pending)
	}

	if err := repo.SoftDelete(ctx, nil, c.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("GetByID: soft-deleted curriculum must be hidden")
	}
	kept, err := repo.GetByIDUnscoped(ctx, nil, c.ID)
	if err != nil {
		t.Fatalf("GetByIDUnscoped: %v", err)
	}
	if kept == nil {
		t.Fatalf("GetByIDUnscoped: expected retained row")
	}

	n, err := repo.HardDelete(ctx, nil, c.ID)
	if err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if n != 1 {
		t.Fatalf("HardDelete: want=1 got=%d", n)
	}
	gone, err := repo.GetByIDUnscoped(ctx, nil, c.ID)
	if err != nil {
		t.Fatalf("GetByIDUnscoped: %v", err)
	}
	if gone != nil {
		t.Fatalf("GetByIDUnscoped: expected erased row")
	}
}
