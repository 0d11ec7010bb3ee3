package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
	"github.com/yungbote/tutorbridge-backend/internal/realtime/bus"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
	"github.com/yungbote/tutorbridge-backend/internal/services"
)

type Services struct {
	Access     services.Access
	Relay      *relay.Relay
	Notifier   services.LearningNotifier
	Account    services.AccountService
	Curriculum services.CurriculumService
	Session    services.SessionService
}

// notificationEmitter publishes on the bus when one is configured so every
// instance's hub sees the event; otherwise it broadcasts into the local hub.
func notificationEmitter(log *logger.Logger, b bus.Bus, hub *realtime.SSEHub) realtime.Emitter {
	if b != nil {
		return bus.Emitter{Bus: b, Log: log.With("component", "RealtimeEmitter")}
	}
	return realtime.HubEmitter{Hub: hub}
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos, hub *realtime.SSEHub) Services {
	log.Info("Wiring services...")
	access := services.Access{Mode: cfg.AuthMode}
	notify := services.NewLearningNotifier(notificationEmitter(log, clients.Bus, hub))
	rl := relay.New(clients.LLM, log, clients.Metrics, cfg.StreamTimeout)

	return Services{
		Access:   access,
		Relay:    rl,
		Notifier: notify,
		Account:  services.NewAccountService(log, clients.Identity, reposet.User, access),
		Curriculum: services.NewCurriculumService(
			db,
			log,
			clients.LLM,
			clients.Prompts,
			reposet.Curriculum,
			reposet.Assignment,
			reposet.User,
			notify,
			clients.Metrics,
			access,
		),
		Session: services.NewSessionService(
			db,
			log,
			reposet.Session,
			reposet.Curriculum,
			reposet.User,
			rl,
			clients.Prompts,
			notify,
			access,
		),
	}
}
