package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type UserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)
	GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error)
	GetParentsByInviteCode(ctx context.Context, tx *gorm.DB, inviteCode string) ([]*types.User, error)
	InviteCodeExists(ctx context.Context, tx *gorm.DB, inviteCode string) (bool, error)
	ListChildren(ctx context.Context, tx *gorm.DB, parentID uuid.UUID) ([]*types.User, error)
	UpdateProgress(ctx context.Context, tx *gorm.DB, userID uuid.UUID, progress, addSeconds int) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	if len(users) == 0 {
		return []*types.User{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
		return nil, err
	}

	return users, nil
}

// GetByID returns nil, nil when no profile exists.
func (ur *userRepo) GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var u types.User
	err := transaction.WithContext(ctx).
		Where("id = ?", userID).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var results []*types.User

	if len(userIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetParentsByInviteCode returns every parent holding the code. Callers treat
// anything other than exactly one match as an invalid code.
func (ur *userRepo) GetParentsByInviteCode(ctx context.Context, tx *gorm.DB, inviteCode string) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var results []*types.User
	if inviteCode == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("role = ? AND invite_code = ?", types.RoleParent, inviteCode).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) InviteCodeExists(ctx context.Context, tx *gorm.DB, inviteCode string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Where("invite_code = ?", inviteCode).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) ListChildren(ctx context.Context, tx *gorm.DB, parentID uuid.UUID) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var results []*types.User
	if err := transaction.WithContext(ctx).
		Where("role = ? AND parent_id = ?", types.RoleChild, parentID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateProgress overwrites the progress percentage and adds to the time spent.
func (ur *userRepo) UpdateProgress(ctx context.Context, tx *gorm.DB, userID uuid.UUID, progress, addSeconds int) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	return transaction.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"progress":           progress,
			"time_spent_seconds": gorm.Expr("time_spent_seconds + ?", addSeconds),
		}).Error
}
