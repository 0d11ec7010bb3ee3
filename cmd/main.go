package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/tutorbridge-backend/internal/app"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/envutil"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

func main() {
	if err := app.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		fmt.Printf("Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Loading environment variables...")
	cfg := app.LoadConfig(log)

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("App init failed", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	if err := a.Start(ctx); err != nil {
		log.Error("App start failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", "error", err)
	}
}
