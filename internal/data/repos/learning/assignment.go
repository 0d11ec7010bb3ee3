package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type ChildAssignmentRepo interface {
	Assign(ctx context.Context, tx *gorm.DB, childID, curriculumID, assignedBy uuid.UUID) error
	ListCurriculumIDs(ctx context.Context, tx *gorm.DB, childID uuid.UUID) ([]uuid.UUID, error)
	DeleteByCurriculum(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) error
}

type childAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChildAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) ChildAssignmentRepo {
	repoLog := baseLog.With("repo", "ChildAssignmentRepo")
	return &childAssignmentRepo{db: db, log: repoLog}
}

// Assign adds the curriculum to the child's set; re-assigning is a no-op.
func (r *childAssignmentRepo) Assign(ctx context.Context, tx *gorm.DB, childID, curriculumID, assignedBy uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.ChildAssignment{
		ID:           uuid.New(),
		ChildID:      childID,
		CurriculumID: curriculumID,
		AssignedBy:   assignedBy,
		AssignedAt:   time.Now().UTC(),
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "child_id"}, {Name: "curriculum_id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *childAssignmentRepo) ListCurriculumIDs(ctx context.Context, tx *gorm.DB, childID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.ChildAssignment
	if err := transaction.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("assigned_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.CurriculumID)
	}
	return out, nil
}

func (r *childAssignmentRepo) DeleteByCurriculum(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("curriculum_id = ?", curriculumID).
		Delete(&types.ChildAssignment{}).Error
}
