package learning

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type CurriculumRepo interface {
	Create(ctx context.Context, tx *gorm.DB, curricula []*types.Curriculum) ([]*types.Curriculum, error)
	GetByID(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) (*types.Curriculum, error)
	GetByIDUnscoped(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) (*types.Curriculum, error)
	ListApprovedForChild(ctx context.Context, tx *gorm.DB, childID uuid.UUID) ([]*types.Curriculum, error)
	ListByParent(ctx context.Context, tx *gorm.DB, parentID uuid.UUID, status string) ([]*types.Curriculum, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID, updates map[string]any) (int64, error)
	SoftDelete(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) error
	HardDelete(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) (int64, error)
}

type curriculumRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCurriculumRepo(db *gorm.DB, baseLog *logger.Logger) CurriculumRepo {
	repoLog := baseLog.With("repo", "CurriculumRepo")
	return &curriculumRepo{db: db, log: repoLog}
}

func (r *curriculumRepo) Create(ctx context.Context, tx *gorm.DB, curricula []*types.Curriculum) ([]*types.Curriculum, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(curricula) == 0 {
		return []*types.Curriculum{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&curricula).Error; err != nil {
		return nil, err
	}
	return curricula, nil
}

// GetByID skips cancelled (soft-deleted) curricula and returns nil, nil when absent.
func (r *curriculumRepo) GetByID(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) (*types.Curriculum, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return firstCurriculum(transaction.WithContext(ctx), curriculumID)
}

func (r *curriculumRepo) GetByIDUnscoped(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) (*types.Curriculum, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return firstCurriculum(transaction.WithContext(ctx).Unscoped(), curriculumID)
}

func firstCurriculum(q *gorm.DB, curriculumID uuid.UUID) (*types.Curriculum, error) {
	var c types.Curriculum
	err := q.Where("id = ?", curriculumID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListApprovedForChild returns approved curricula present in the child's assignment set.
func (r *curriculumRepo) ListApprovedForChild(ctx context.Context, tx *gorm.DB, childID uuid.UUID) ([]*types.Curriculum, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	assigned := transaction.Session(&gorm.Session{NewDB: true}).
		Model(&types.ChildAssignment{}).
		Select("curriculum_id").
		Where("child_id = ?", childID)

	var results []*types.Curriculum
	if err := transaction.WithContext(ctx).
		Where("status = ? AND id IN (?)", types.CurriculumApproved, assigned).
		Order("approved_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListByParent lists a parent's live curricula, optionally filtered by status.
func (r *curriculumRepo) ListByParent(ctx context.Context, tx *gorm.DB, parentID uuid.UUID, status string) ([]*types.Curriculum, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).Where("parent_id = ?", parentID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var results []*types.Curriculum
	if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *curriculumRepo) UpdateFields(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID, updates map[string]any) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.Curriculum{}).
		Where("id = ?", curriculumID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *curriculumRepo) SoftDelete(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", curriculumID).
		Delete(&types.Curriculum{}).Error
}

// HardDelete erases the row, cancelled or not.
func (r *curriculumRepo) HardDelete(ctx context.Context, tx *gorm.DB, curriculumID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Unscoped().
		Where("id = ?", curriculumID).
		Delete(&types.Curriculum{})
	return res.RowsAffected, res.Error
}
