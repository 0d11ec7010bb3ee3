package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type Repos struct {
	User       repos.UserRepo
	Curriculum repos.CurriculumRepo
	Assignment repos.ChildAssignmentRepo
	Session    repos.SessionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:       repos.NewUserRepo(db, log),
		Curriculum: repos.NewCurriculumRepo(db, log),
		Assignment: repos.NewChildAssignmentRepo(db, log),
		Session:    repos.NewSessionRepo(db, log),
	}
}
