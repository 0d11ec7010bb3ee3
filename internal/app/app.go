package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	httpserver "github.com/yungbote/tutorbridge-backend/internal/http"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Server   *httpserver.Server
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	SSEHub   *realtime.SSEHub
	cancel   context.CancelFunc
}

// New builds the whole object graph. Nothing runs until Start.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	theDB := clients.Store.DB()

	ssehub := realtime.NewSSEHub(log)

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, clients, reposet, ssehub)
	handlerset := wireHandlers(theDB, log, clients, serviceset, ssehub)
	middleware := wireMiddleware(log, clients, reposet, serviceset)
	router := wireRouter(log, cfg, clients, handlerset, middleware)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Server:   httpserver.NewServer(":"+cfg.Port, router),
		Cfg:      cfg,
		Clients:  clients,
		Repos:    reposet,
		Services: serviceset,
		SSEHub:   ssehub,
	}, nil
}

// Start launches the background loops: the realtime bus forwarder and metrics collection.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start realtime forwarder: %w", err)
		}
	}
	a.Clients.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Clients.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	a.Clients.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", a.Server.Addr())
	return a.Server.Run()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return nil
	}
	return a.Server.Shutdown(ctx)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close(ctx)
	if a.Log != nil {
		a.Log.Sync()
	}
}
