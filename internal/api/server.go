// Package api is the local control API: session picker, range editing,
// preview links and the clip download queue.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/metrics"
	"github.com/cutscene/cutscene-client/internal/playback"
)

// ThumbSource fetches session thumbnails from the media server.
type ThumbSource interface {
	Thumb(ctx context.Context, path string) ([]byte, string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Editor     *editor.Editor
	Downloads  *downloads.Service
	Runner     *downloads.Runner
	Repository downloads.Repository
	Clips      *playback.ClipServer
	Thumbs     ThumbSource
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	StartTime  time.Time
	ClientID   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
