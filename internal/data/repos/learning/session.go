package learning

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type SessionRepo interface {
	// CreateIfAbsent inserts the session unless one already exists for its
	// (child, curriculum) pair. created reports whether this call inserted it.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, session *types.Session) (created bool, err error)
	GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.Session, error)
	GetByChildAndCurriculum(ctx context.Context, tx *gorm.DB, childID, curriculumID uuid.UUID) (*types.Session, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, updates map[string]any) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	repoLog := baseLog.With("repo", "SessionRepo")
	return &sessionRepo{db: db, log: repoLog}
}

func (r *sessionRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, session *types.Session) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if session == nil {
		return false, errors.New("nil session")
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "child_id"}, {Name: "curriculum_id"}},
			DoNothing: true,
		}).
		Create(session)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.Session
	err := transaction.WithContext(ctx).Where("id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) GetByChildAndCurriculum(ctx context.Context, tx *gorm.DB, childID, curriculumID uuid.UUID) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.Session
	err := transaction.WithContext(ctx).
		Where("child_id = ? AND curriculum_id = ?", childID, curriculumID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateFields writes only the supplied columns and reports matched rows.
func (r *sessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, updates map[string]any) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		var count int64
		err := transaction.WithContext(ctx).
			Model(&types.Session{}).
			Where("id = ?", sessionID).
			Count(&count).Error
		return count, err
	}
	res := transaction.WithContext(ctx).
		Model(&types.Session{}).
		Where("id = ?", sessionID).
		Updates(updates)
	return res.RowsAffected, res.Error
}
