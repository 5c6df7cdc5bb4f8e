package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	StockfishPath  string `yaml:"stockfish_path"`
	EngineWSURL    string `yaml:"engine_ws_url"`
	EngineThreads  int    `yaml:"engine_threads"`
	EngineHashMB   int    `yaml:"engine_hash_mb"`
	EngineCapacity int    `yaml:"engine_capacity"`
	OpeningBook    string `yaml:"opening_book"`

	AnalysisPreset     string `yaml:"analysis_preset"`
	AnalysisCooldownMS int    `yaml:"analysis_cooldown_ms"`

	MoveLimitEnabled  bool `yaml:"move_limit_enabled"`
	EndOnNoLegalMoves bool `yaml:"end_on_no_legal_moves"`

	RedisURL    string        `yaml:"redis_url"`
	DatabaseURL string        `yaml:"database_url"`
	SessionTTL  time.Duration `yaml:"session_ttl"`

	MessagesDir string `yaml:"messages_dir"`
}

func Defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:           ":8080",
		EngineThreads:      2,
		EngineHashMB:       128,
		AnalysisPreset:     "quick",
		AnalysisCooldownMS: 1000,
		MoveLimitEnabled:   true,
		SessionTTL:         time.Hour,
	}
}

// Load applies defaults, then the YAML file named by CAPTURE_CONFIG, then the environment.
func Load() (*AppConfig, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CAPTURE_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.StockfishPath, "STOCKFISH_PATH")
	setString(&c.EngineWSURL, "ENGINE_WS_URL")
	setString(&c.OpeningBook, "OPENING_BOOK_PATH")
	setString(&c.AnalysisPreset, "ANALYSIS_PRESET")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.MessagesDir, "MESSAGES_DIR")

	var errs []error
	errs = append(errs,
		setPositiveInt(&c.EngineThreads, "ENGINE_THREADS"),
		setPositiveInt(&c.EngineHashMB, "ENGINE_HASH_MB"),
		setPositiveInt(&c.EngineCapacity, "ENGINE_CAPACITY"),
		setBool(&c.MoveLimitEnabled, "MOVE_LIMIT_ENABLED"),
		setBool(&c.EndOnNoLegalMoves, "END_ON_NO_LEGAL_MOVES"),
	)
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_COOLDOWN_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("ANALYSIS_COOLDOWN_MS: invalid value %q", v))
		} else {
			c.AnalysisCooldownMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		// plain integers are seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SessionTTL = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.SessionTTL = d
		} else {
			errs = append(errs, fmt.Errorf("SESSION_TTL: invalid value %q", v))
		}
	}
	return errors.Join(errs...)
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address required")
	}
	if c.EngineThreads <= 0 || c.EngineHashMB <= 0 {
		return fmt.Errorf("engine threads and hash must be positive: %d/%d", c.EngineThreads, c.EngineHashMB)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive: %s", c.SessionTTL)
	}
	return nil
}

func (c *AppConfig) AnalysisCooldown() time.Duration {
	return time.Duration(c.AnalysisCooldownMS) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setPositiveInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s: invalid value %q", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid value %q", key, v)
	}
	*dst = b
	return nil
}
