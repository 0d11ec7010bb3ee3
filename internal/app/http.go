package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/http"
	httpH "github.com/yungbote/tutorbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tutorbridge-backend/internal/http/middleware"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health     *httpH.HealthHandler
	Stream     *httpH.StreamHandler
	Account    *httpH.AccountHandler
	Curriculum *httpH.CurriculumHandler
	Session    *httpH.SessionHandler
	Realtime   *httpH.RealtimeHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, clients Clients, svc Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(db),
		Stream:     httpH.NewStreamHandler(log, svc.Relay, clients.Prompts),
		Account:    httpH.NewAccountHandler(log, svc.Account),
		Curriculum: httpH.NewCurriculumHandler(log, svc.Curriculum),
		Session:    httpH.NewSessionHandler(log, svc.Session),
		Realtime:   httpH.NewRealtimeHandler(log, hub),
	}
}

func wireMiddleware(log *logger.Logger, clients Clients, reposet Repos, svc Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, clients.Identity, reposet.User, svc.Access.Enforced()),
	}
}

func wireRouter(log *logger.Logger, cfg Config, clients Clients, handlers Handlers, middleware Middleware) *gin.Engine {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return http.NewRouter(http.RouterConfig{
		Log:               log,
		Metrics:           clients.Metrics,
		CORSOrigins:       cfg.CORSOrigins,
		ServiceName:       serviceName,
		AuthMiddleware:    middleware.Auth,
		HealthHandler:     handlers.Health,
		StreamHandler:     handlers.Stream,
		AccountHandler:    handlers.Account,
		CurriculumHandler: handlers.Curriculum,
		SessionHandler:    handlers.Session,
		RealtimeHandler:   handlers.Realtime,
	})
}
