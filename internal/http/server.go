package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Server struct {
	Engine *gin.Engine
	srv    *http.Server
}

// NewServer binds engine to addr. Request contexts derive from a base context
// that is cancelled when shutdown begins, so open event streams end instead of
// holding the drain until its deadline.
func NewServer(addr string, engine *gin.Engine) *Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return &Server{Engine: engine, srv: srv}
}

func (s *Server) Addr() string { return s.srv.Addr }

// Run blocks until the listener fails or Shutdown is called. A clean shutdown returns nil.
func (s *Server) Run() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
