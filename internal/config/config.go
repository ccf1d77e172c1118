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
	"gopkg.in/yaml.v3"
)

// Session store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds client configuration. Values are layered: defaults, then the
// YAML config file, then .env, then ISSUEHUB_* environment variables.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	LoginPath string        `yaml:"login_path"`
	LogLevel  string        `yaml:"log_level"`
	LogFile   string        `yaml:"log_file"`
	Session   SessionConfig `yaml:"session"`
}

// SessionConfig selects where the token and cached profile are kept.
type SessionConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path,omitempty"`      // file and sqlite backends
	RedisURL string `yaml:"redis_url,omitempty"` // redis backend
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := homeDir()
	return &Config{
		BaseURL:   "http://localhost:8000/api",
		Timeout:   30 * time.Second,
		LoginPath: "/login",
		LogLevel:  "info",
		LogFile:   filepath.Join(dir, "issuehub.log"),
		Session: SessionConfig{
			Backend: BackendFile,
		},
	}
}

// homeDir returns ~/.issuehub, falling back to a relative .issuehub when the
// home directory cannot be determined.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".issuehub"
	}
	return filepath.Join(home, ".issuehub")
}

// projectConfigPath returns the project-level config path (.issuehub/config.yaml in cwd)
func projectConfigPath() string {
	return filepath.Join(".issuehub", "config.yaml")
}

// globalConfigPath returns the global config path (~/.issuehub/config.yaml)
func globalConfigPath() string {
	return filepath.Join(homeDir(), "config.yaml")
}

// Path returns the config file that Load would read. ISSUEHUB_CONFIG wins,
// then the project file if present, then the global file.
func Path() string {
	if p := os.Getenv("ISSUEHUB_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(projectConfigPath()); err == nil {
		return projectConfigPath()
	}
	return globalConfigPath()
}

// Load builds the effective configuration.
func Load() (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(Path()); err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.BaseURL = envStr("ISSUEHUB_BASE_URL", c.BaseURL)
	c.Timeout = envDuration("ISSUEHUB_TIMEOUT", c.Timeout)
	c.LoginPath = envStr("ISSUEHUB_LOGIN_PATH", c.LoginPath)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFile = envStr("ISSUEHUB_LOG_FILE", c.LogFile)
	c.Session.Backend = envStr("ISSUEHUB_SESSION_BACKEND", c.Session.Backend)
	c.Session.Path = envStr("ISSUEHUB_SESSION_PATH", c.Session.Path)
	c.Session.RedisURL = envStr("ISSUEHUB_REDIS_URL", c.Session.RedisURL)
}

// fillDefaults resolves values that depend on other settings.
func (c *Config) fillDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Session.Path != "" {
		return
	}
	switch c.Session.Backend {
	case BackendFile:
		c.Session.Path = filepath.Join(homeDir(), "session.json")
	case BackendSQLite:
		c.Session.Path = filepath.Join(homeDir(), "session.db")
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url must include a host, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("login_path must start with /, got %q", c.LoginPath)
	}
	switch c.Session.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session backend redis requires ISSUEHUB_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}

// Validate re-checks the configuration after callers override fields (for
// example from command-line flags).
func (c *Config) Validate() error {
	c.fillDefaults()
	if err := c.validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// Save writes the config as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration accepts Go durations ("45s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
