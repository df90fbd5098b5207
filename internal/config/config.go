package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the fiscal client settings.
type Config struct {
	APIURL         string
	DataDir        string
	RequestTimeout time.Duration
	Retries        int
	Debounce       time.Duration
	ProbeInterval  time.Duration
	Offline        Offline
	LogLevel       string
}

// Offline tunes the cache fallback.
type Offline struct {
	// ApplyFilters filters the cached target snapshot client-side when the
	// API is unreachable.
	ApplyFilters bool
}

const (
	defaultConfigPath     = "~/.config/fiscal/config.toml"
	defaultDataDir        = "~/.local/share/fiscal"
	defaultAPIURL         = "127.0.0.1:3333"
	defaultRequestTimeout = 10 * time.Second
	defaultRetries        = 1
	defaultDebounce       = 500 * time.Millisecond
	defaultProbeInterval  = 5 * time.Second
	defaultLogLevel       = "info"

	envAPIURL   = "FISCAL_API_URL"
	envDataDir  = "FISCAL_DATA_DIR"
	envLogLevel = "FISCAL_LOG_LEVEL"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:         defaultAPIURL,
		DataDir:        mustExpand(defaultDataDir),
		RequestTimeout: defaultRequestTimeout,
		Retries:        defaultRetries,
		Debounce:       defaultDebounce,
		ProbeInterval:  defaultProbeInterval,
		LogLevel:       defaultLogLevel,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return defaultConfigPath
}

// Load reads the TOML config at path (default location when empty), then
// applies .env files and FISCAL_* environment overrides. A missing file
// yields defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	if err := loadDotenv(filepath.Join(filepath.Dir(resolved), ".env"), ".env"); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := readFile(resolved, &cfg); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)

	cfg.DataDir = mustExpand(cfg.DataDir)
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIURL         string `toml:"api_url"`
		DataDir        string `toml:"data_dir"`
		RequestTimeout string `toml:"request_timeout"`
		Retries        *int   `toml:"retries"`
		Debounce       string `toml:"debounce"`
		ProbeInterval  string `toml:"probe_interval"`
		LogLevel       string `toml:"log_level"`
		Offline        struct {
			ApplyFilters bool `toml:"apply_filters"`
		} `toml:"offline"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	if raw.Retries != nil {
		if *raw.Retries < 0 {
			return fmt.Errorf("parse config: retries must be >= 0, got %d", *raw.Retries)
		}
		cfg.Retries = *raw.Retries
	}
	cfg.Offline.ApplyFilters = raw.Offline.ApplyFilters

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"debounce", raw.Debounce, &cfg.Debounce},
		{"probe_interval", raw.ProbeInterval, &cfg.ProbeInterval},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse config %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("parse config %s: must be positive", d.key)
		}
		*d.dst = parsed
	}
	return nil
}

func loadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envAPIURL)); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		cfg.LogLevel = v
	}
}

// CachePath returns the SQLite cache file.
func (c Config) CachePath() string {
	return filepath.Join(c.dataDir(), "fiscalizacao-db.sqlite")
}

// LogPath returns the rotating log file.
func (c Config) LogPath() string {
	return filepath.Join(c.dataDir(), "fiscal.log")
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir)
	}
	return c.DataDir
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
