// Package config provides configuration management for the CutScene client.
// Configuration is loaded from environment variables, optionally seeded from
// a .env file, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort         = 8788
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultDataDir      = ".cutscene"
	DefaultUI           = UITUI
	DefaultDebounceMs   = 500
	DefaultSeedWindowMs = 60000
	DefaultHTTPTimeout  = 30 * time.Second

	UITUI      = "tui"
	UITray     = "tray"
	UIHeadless = "headless"

	// Environment variable names
	EnvServerURL    = "CUTSCENE_SERVER_URL"
	EnvServerToken  = "CUTSCENE_SERVER_TOKEN"
	EnvPort         = "CUTSCENE_PORT"
	EnvLogLevel     = "CUTSCENE_LOG_LEVEL"
	EnvLogFormat    = "CUTSCENE_LOG_FORMAT"
	EnvDataDir      = "CUTSCENE_DATA_DIR"
	EnvDownloadDir  = "CUTSCENE_DOWNLOAD_DIR"
	EnvPlayer       = "CUTSCENE_PLAYER"
	EnvUI           = "CUTSCENE_UI"
	EnvDebounceMs   = "CUTSCENE_DEBOUNCE_MS"
	EnvSeedWindowMs = "CUTSCENE_SEED_WINDOW_MS"
	EnvClampSeed    = "CUTSCENE_CLAMP_SEED"
	EnvEDLFPS       = "CUTSCENE_EDL_FPS"
	EnvHTTPTimeout  = "CUTSCENE_HTTP_TIMEOUT"

	// Database filename
	DBFilename = "cutscene.db"
)

var ErrMissingServerURL = errors.New(EnvServerURL + " is required")

// Config defines the application configuration interface
type Config interface {
	ServerURL() string
	ServerToken() string
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	DownloadDir() string
	Player() string
	UI() string
	DebounceInterval() time.Duration
	SeedWindowMs() int
	ClampSeed() bool
	EDLFrameRate() float64
	HTTPTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	serverURL    string
	serverToken  string
	port         int
	logLevel     string
	logFormat    string
	dataDir      string
	downloadDir  string
	player       string
	ui           string
	debounceMs   int
	seedWindowMs int
	clampSeed    bool
	edlFPS       float64
	httpTimeout  time.Duration
}

// Load reads .env files into the process environment. A missing file is not
// an error; variables already set in the environment win.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		logFormat:    DefaultLogFormat,
		dataDir:      defaultDataDir(),
		ui:           DefaultUI,
		debounceMs:   DefaultDebounceMs,
		seedWindowMs: DefaultSeedWindowMs,
		clampSeed:    true,
		httpTimeout:  DefaultHTTPTimeout,
	}

	raw := strings.TrimRight(os.Getenv(EnvServerURL), "/")
	if raw == "" {
		return nil, ErrMissingServerURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s: must be an absolute http(s) URL", EnvServerURL)
	}
	cfg.serverURL = raw

	cfg.serverToken = os.Getenv(EnvServerToken)

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if lf := os.Getenv(EnvLogFormat); lf != "" {
		cfg.logFormat = lf
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.downloadDir = os.Getenv(EnvDownloadDir)
	cfg.player = os.Getenv(EnvPlayer)

	if ui := os.Getenv(EnvUI); ui != "" {
		switch strings.ToLower(ui) {
		case UITUI, UITray, UIHeadless:
			cfg.ui = strings.ToLower(ui)
		default:
			return nil, fmt.Errorf("invalid %s: must be one of tui, tray, headless", EnvUI)
		}
	}

	if v := os.Getenv(EnvDebounceMs); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvDebounceMs, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvDebounceMs)
		}
		cfg.debounceMs = n
	}

	if v := os.Getenv(EnvSeedWindowMs); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSeedWindowMs, err)
		}
		if n <= 500 {
			return nil, fmt.Errorf("invalid %s: must exceed 500", EnvSeedWindowMs)
		}
		cfg.seedWindowMs = n
	}

	if v := os.Getenv(EnvClampSeed); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvClampSeed, err)
		}
		cfg.clampSeed = b
	}

	if v := os.Getenv(EnvEDLFPS); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvEDLFPS, err)
		}
		if f < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvEDLFPS)
		}
		cfg.edlFPS = f
	}

	if v := os.Getenv(EnvHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHTTPTimeout, err)
		}
		cfg.httpTimeout = d
	}

	return cfg, nil
}

// ServerURL returns the CutScene server base URL without a trailing slash
func (c *EnvConfig) ServerURL() string {
	return c.serverURL
}

func (c *EnvConfig) ServerToken() string {
	return c.serverToken
}

// Port returns the local control API port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// DownloadDir returns where finished clips are written
func (c *EnvConfig) DownloadDir() string {
	if c.downloadDir != "" {
		return c.downloadDir
	}
	return filepath.Join(c.dataDir, "clips")
}

// Player returns the configured external player binary; empty means auto-detect
func (c *EnvConfig) Player() string {
	return c.player
}

func (c *EnvConfig) UI() string {
	return c.ui
}

func (c *EnvConfig) DebounceInterval() time.Duration {
	return time.Duration(c.debounceMs) * time.Millisecond
}

func (c *EnvConfig) SeedWindowMs() int {
	return c.seedWindowMs
}

func (c *EnvConfig) ClampSeed() bool {
	return c.clampSeed
}

// EDLFrameRate returns the frame rate for EDL sidecars; zero disables them
func (c *EnvConfig) EDLFrameRate() float64 {
	return c.edlFPS
}

func (c *EnvConfig) HTTPTimeout() time.Duration {
	return c.httpTimeout
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
