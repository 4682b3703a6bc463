// Package player hands preview links to an external media player process.
package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

const maxStderrBytes = 8 * 1024

// ErrNoPlayer is returned when no supported player binary is installed.
var ErrNoPlayer = errors.New("no media player found on PATH (tried mpv, ffplay, vlc)")

// Candidates are tried in order when no player is configured.
var Candidates = []string{"mpv", "ffplay", "vlc"}

type Config struct {
	// Binary is the player to run; empty means the first of Candidates on PATH.
	Binary string
	// Args go before the URL. Nil means the defaults for the player.
	Args []string
	// Env is appended to the current environment.
	Env    []string
	Logger *slog.Logger
}

// Result describes how a player process ended.
type Result struct {
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

// Launcher runs at most one player at a time; each Play replaces the
// previous process.
type Launcher struct {
	binary string
	args   []string
	env    []string
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastURL string
	results chan Result
}

func NewLauncher(cfg Config) (*Launcher, error) {
	bin, err := Resolve(cfg.Binary)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	args := cfg.Args
	if args == nil {
		args = DefaultArgs(bin)
	}

	cfg.Logger.Info("preview player resolved", "binary", bin)
	return &Launcher{
		binary:  bin,
		args:    args,
		env:     cfg.Env,
		logger:  cfg.Logger,
		results: make(chan Result, 1),
	}, nil
}

// Resolve finds the player binary to use.
func Resolve(preferred string) (string, error) {
	if preferred != "" {
		p, err := exec.LookPath(preferred)
		if err != nil {
			return "", fmt.Errorf("configured player %q not found: %w", preferred, err)
		}
		return p, nil
	}
	for _, name := range Candidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrNoPlayer
}

// DefaultArgs returns the flags used for known players.
func DefaultArgs(binary string) []string {
	switch filepath.Base(binary) {
	case "mpv":
		return []string{"--force-window=immediate", "--title=CutScene preview", "--loop-file=inf"}
	case "ffplay":
		return []string{"-loglevel", "error", "-window_title", "CutScene preview", "-loop", "0"}
	case "vlc", "cvlc":
		return []string{"--loop", "--no-video-title-show"}
	default:
		return []string{}
	}
}

// Binary returns the resolved player path.
func (l *Launcher) Binary() string {
	return l.binary
}

// Play starts the player on url, stopping any running instance first.
// Failures are logged; they never reach the caller's state.
func (l *Launcher) Play(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	if url == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, l.binary, append(append([]string{}, l.args...), url)...)
	if len(l.env) > 0 {
		cmd.Env = append(os.Environ(), l.env...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &tailWriter{buf: &stderr, limit: maxStderrBytes}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		l.logger.Error("failed to start preview player", "binary", l.binary, "error", err)
		return
	}

	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.lastURL = url

	go func() {
		defer close(done)
		err := cmd.Wait()
		res := Result{ExitCode: exitCode(err), StderrTail: stderr.String(), Duration: time.Since(start)}

		switch {
		case ctx.Err() != nil:
			l.logger.Debug("preview player replaced", "pid", cmd.Process.Pid)
		case res.ExitCode != 0:
			l.logger.Warn("preview player failed",
				"exit_code", res.ExitCode,
				"duration_ms", res.Duration.Milliseconds(),
				"stderr_tail", truncate(res.StderrTail, 512),
			)
		default:
			l.logger.Debug("preview player exited", "duration_ms", res.Duration.Milliseconds())
		}

		select {
		case l.results <- res:
		default:
		}
	}()

	l.logger.Info("preview player started", "pid", cmd.Process.Pid)
}

// Stop terminates the running player, if any, and waits for it to exit.
func (l *Launcher) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Launcher) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
}

// Running reports whether a player process is alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// LastURL is the URL most recently handed to the player.
func (l *Launcher) LastURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastURL
}

// Results delivers the outcome of player processes that ended on their
// own or were replaced. Only the latest unread result is kept.
func (l *Launcher) Results() <-chan Result {
	return l.results
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if over := w.buf.Len() - w.limit; over > 0 {
		w.buf.Next(over)
	}
	return len(p), nil
}
