package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos/learning"
	"github.com/yungbote/tutorbridge-backend/internal/data/repos/user"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type UserRepo = user.UserRepo

type CurriculumRepo = learning.CurriculumRepo
type ChildAssignmentRepo = learning.ChildAssignmentRepo
type SessionRepo = learning.SessionRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewUserRepo(db, baseLog)
}

func NewCurriculumRepo(db *gorm.DB, baseLog *logger.Logger) CurriculumRepo {
	return learning.NewCurriculumRepo(db, baseLog)
}

func NewChildAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) ChildAssignmentRepo {
	return learning.NewChildAssignmentRepo(db, baseLog)
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return learning.NewSessionRepo(db, baseLog)
}
