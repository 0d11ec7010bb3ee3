package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/tutorbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tutorbridge-backend/internal/http/middleware"
	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler     *httpH.HealthHandler
	StreamHandler     *httpH.StreamHandler
	AccountHandler    *httpH.AccountHandler
	CurriculumHandler *httpH.CurriculumHandler
	SessionHandler    *httpH.SessionHandler
	RealtimeHandler   *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
	}
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	auth := func(c *gin.Context) { c.Next() }
	if cfg.AuthMiddleware != nil {
		auth = cfg.AuthMiddleware.RequireAuth()
	}

	// Relay
	if cfg.StreamHandler != nil {
		r.GET("/stream", auth, cfg.StreamHandler.Stream)
	}

	api := r.Group("/api")
	{
		// Account (public)
		if cfg.AccountHandler != nil {
			api.POST("/signup", cfg.AccountHandler.Signup)
			api.POST("/login", cfg.AccountHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		protected.Use(auth)

		if cfg.AccountHandler != nil {
			protected.GET("/userinfo", cfg.AccountHandler.UserInfo)
			protected.GET("/parent/children", cfg.AccountHandler.Children)
		}

		// Curricula
		if cfg.CurriculumHandler != nil {
			protected.POST("/generateCurriculum", cfg.CurriculumHandler.Generate)
			protected.POST("/approveCurriculum", cfg.CurriculumHandler.Approve)
			protected.POST("/requestCurriculumChanges", cfg.CurriculumHandler.RequestChanges)
			protected.POST("/cancelCurriculum", cfg.CurriculumHandler.Cancel)
			protected.GET("/curricula/:id", cfg.CurriculumHandler.Get)
			protected.GET("/child/approvedCurricula", cfg.CurriculumHandler.ApprovedForChild)
			protected.GET("/parent/curricula", cfg.CurriculumHandler.ListForParent)
			protected.DELETE("/admin/curricula/:id", cfg.CurriculumHandler.Purge)
		}

		// Sessions
		if cfg.SessionHandler != nil {
			protected.POST("/subject/session", cfg.SessionHandler.Start)
			protected.GET("/subject/session/:id", cfg.SessionHandler.Get)
			protected.POST("/subject/progress", cfg.SessionHandler.Progress)
			protected.GET("/subject/chat/stream", cfg.SessionHandler.ChatStream)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/realtime/stream", cfg.RealtimeHandler.Stream)
		}
	}

	return r
}
