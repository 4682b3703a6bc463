package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cutscene/cutscene-client/internal/api"
	"github.com/cutscene/cutscene-client/internal/config"
	"github.com/cutscene/cutscene-client/internal/db"
	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/logging"
	"github.com/cutscene/cutscene-client/internal/metrics"
	"github.com/cutscene/cutscene-client/internal/playback"
	"github.com/cutscene/cutscene-client/internal/player"
	"github.com/cutscene/cutscene-client/internal/remote"
	"github.com/cutscene/cutscene-client/internal/ui"
	"github.com/cutscene/cutscene-client/internal/ui/tui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.DownloadDir(), 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("starting cutscene client",
		"version", config.Version,
		"server", cfg.ServerURL(),
		"data_dir", cfg.DataDir(),
		"ui", cfg.UI(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := downloads.NewRepository(database.Conn())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authToken, err := api.EnsureAuthToken(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	client, err := remote.NewClient(cfg.ServerURL(), cfg.ServerToken(), cfg.HTTPTimeout(), logger)
	if err != nil {
		return fmt.Errorf("failed to create server client: %w", err)
	}
	logger.Info("media server configured", "base_url", client.BaseURL(), "client_id", client.ClientID())

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                   CUTSCENE CLIENT v%-22s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Client ID:  %-45s ║\n", client.ClientID())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	logger.Info("control api token stored in config table", "key", api.AuthTokenKey, "db", cfg.DBPath())

	m := metrics.New()

	opts := editor.DefaultOptions()
	opts.DebounceInterval = cfg.DebounceInterval()
	opts.SeedWindowMs = cfg.SeedWindowMs()
	opts.ClampSeed = cfg.ClampSeed()
	opts.Logger = logger
	opts.Metrics = m
	ed := editor.New(client, opts)

	launcher, err := player.NewLauncher(player.Config{Binary: cfg.Player(), Logger: logger})
	if err != nil {
		logger.Warn("preview player unavailable, previews will not play", "error", err)
	} else {
		defer launcher.Stop()
		logger.Info("preview playback enabled", "player", launcher.Binary())
		ed.Attach(editor.PresenterFuncs{
			Preview: func(v editor.PreviewView) { launcher.Play(v.URL) },
		})
	}

	svc := downloads.NewService(repo, logger)
	runner := downloads.NewRunner(repo, client, downloads.RunnerOptions{
		Dir:          cfg.DownloadDir(),
		EDLFrameRate: cfg.EDLFrameRate(),
		Logger:       logger,
		Metrics:      m,
	})
	svc.OnEnqueue(runner.Wake)
	go runner.Start(ctx)
	runner.Wake()

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Editor:     ed,
		Downloads:  svc,
		Runner:     runner,
		Repository: repo,
		Clips:      playback.NewClipServer(logger),
		Thumbs:     client,
		Metrics:    m,
		Logger:     logger,
		StartTime:  startTime,
		ClientID:   client.ClientID(),
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		if err := ed.Load(ctx); err != nil {
			logger.Warn("session list unavailable", "error", err)
		}
	}()

	var uiErr error
	switch cfg.UI() {
	case config.UITUI:
		uiErr = tui.Run(ctx, tui.Config{
			Editor:    ed,
			Downloads: svc,
			Play:      playFunc(launcher),
			Logger:    logger,
		})
	case config.UITray:
		tray := ui.NewTray(ui.TrayConfig{
			Editor:       ed,
			Downloads:    svc,
			Runner:       runner,
			ClipWindowMs: cfg.SeedWindowMs(),
			Logger:       logger,
		})
		ed.Attach(tray)
		go func() {
			<-ctx.Done()
			tray.Quit()
		}()
		tray.Run()
	default:
		logger.Info("running in headless mode (control API only)")
		<-ctx.Done()
	}

	logger.Info("initiating graceful shutdown")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return uiErr
}

// newLogger logs to stdout, except under the terminal UI which owns the
// screen; there the log goes to a file in the data dir.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	if cfg.UI() != config.UITUI {
		return logging.NewLogger(cfg.LogLevel(), cfg.LogFormat()), func() {}, nil
	}

	path := filepath.Join(cfg.DataDir(), "cutscene.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logging.NewLoggerTo(f, cfg.LogLevel(), cfg.LogFormat()), func() { f.Close() }, nil
}

func playFunc(l *player.Launcher) func(string) error {
	if l == nil {
		return func(string) error { return player.ErrNoPlayer }
	}
	return func(url string) error {
		l.Play(url)
		return nil
	}
}
