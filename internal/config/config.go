package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = ":8085"
	defaultDBPath          = "/data/tetra_monitor.db"
	defaultHistoryLimit    = 50
	defaultRetuneThreshold = 2
	defaultCallsignAPIURL  = "https://database.radioid.net/api/dmr/user/"
	defaultCallsignTimeout = time.Second
	defaultCallsignMinID   = 1000
	defaultDemoMinInterval = 2 * time.Second
	defaultDemoMaxInterval = 5 * time.Second
)

// Config stores runtime settings. Defaults are overlaid by an optional YAML
// file, then by environment variables.
type Config struct {
	HTTPAddr        string
	DBPath          string
	HistoryLimit    int
	RetuneThreshold int
	CallsignAPIURL  string
	CallsignTimeout time.Duration
	CallsignMinID   int
	DemoMinInterval time.Duration
	DemoMaxInterval time.Duration
	EmitStdout      bool
	LogLevel        slog.Level
}

type fileConfig struct {
	HTTPAddr        *string `yaml:"http_addr"`
	DBPath          *string `yaml:"db_path"`
	HistoryLimit    *int    `yaml:"history_limit"`
	RetuneThreshold *int    `yaml:"retune_threshold"`
	Callsign        struct {
		APIURL  *string `yaml:"api_url"`
		Timeout *string `yaml:"timeout"`
		MinID   *int    `yaml:"min_id"`
	} `yaml:"callsign"`
	Demo struct {
		MinInterval *string `yaml:"min_interval"`
		MaxInterval *string `yaml:"max_interval"`
	} `yaml:"demo"`
	EmitStdout *bool   `yaml:"emit_stdout"`
	LogLevel   *string `yaml:"log_level"`
}

// Load builds Config from defaults, the YAML file at path (if non-empty or
// present), and environment variables.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr:        defaultHTTPAddr,
		DBPath:          defaultDBPath,
		HistoryLimit:    defaultHistoryLimit,
		RetuneThreshold: defaultRetuneThreshold,
		CallsignAPIURL:  defaultCallsignAPIURL,
		CallsignTimeout: defaultCallsignTimeout,
		CallsignMinID:   defaultCallsignMinID,
		DemoMinInterval: defaultDemoMinInterval,
		DemoMaxInterval: defaultDemoMaxInterval,
		LogLevel:        slog.LevelInfo,
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg.normalize(), nil
}

func (c *Config) applyFile(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(body, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.DBPath, fc.DBPath)
	setInt(&c.HistoryLimit, fc.HistoryLimit)
	setInt(&c.RetuneThreshold, fc.RetuneThreshold)
	setString(&c.CallsignAPIURL, fc.Callsign.APIURL)
	setDurationString(&c.CallsignTimeout, fc.Callsign.Timeout)
	setInt(&c.CallsignMinID, fc.Callsign.MinID)
	setDurationString(&c.DemoMinInterval, fc.Demo.MinInterval)
	setDurationString(&c.DemoMaxInterval, fc.Demo.MaxInterval)
	if fc.EmitStdout != nil {
		c.EmitStdout = *fc.EmitStdout
	}
	if fc.LogLevel != nil {
		c.LogLevel = ParseLogLevel(*fc.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.DBPath = getenv("DB_PATH", c.DBPath)
	c.HistoryLimit = parseIntEnv("HISTORY_LIMIT", c.HistoryLimit)
	c.RetuneThreshold = parseIntEnv("RETUNE_THRESHOLD", c.RetuneThreshold)
	c.CallsignAPIURL = getenv("CALLSIGN_API_URL", c.CallsignAPIURL)
	c.CallsignTimeout = parseDurationEnv("CALLSIGN_TIMEOUT", c.CallsignTimeout)
	c.CallsignMinID = parseIntEnv("CALLSIGN_MIN_ID", c.CallsignMinID)
	c.DemoMinInterval = parseDurationEnv("DEMO_MIN_INTERVAL", c.DemoMinInterval)
	c.DemoMaxInterval = parseDurationEnv("DEMO_MAX_INTERVAL", c.DemoMaxInterval)
	c.EmitStdout = parseBoolEnv("EMIT_STDOUT", c.EmitStdout)
	c.LogLevel = ParseLogLevel(getenv("LOG_LEVEL", levelName(c.LogLevel)))
}

func (c Config) normalize() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.RetuneThreshold <= 0 {
		c.RetuneThreshold = defaultRetuneThreshold
	}
	if c.DemoMinInterval <= 0 {
		c.DemoMinInterval = defaultDemoMinInterval
	}
	if c.DemoMaxInterval < c.DemoMinInterval {
		c.DemoMaxInterval = c.DemoMinInterval
	}
	return c
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelName(level slog.Level) string {
	return strings.ToLower(level.String())
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseBoolEnv(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func setString(dst *string, src *string) {
	if src != nil && strings.TrimSpace(*src) != "" {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDurationString(dst *time.Duration, src *string) {
	if src == nil {
		return
	}
	value, err := time.ParseDuration(strings.TrimSpace(*src))
	if err == nil && value > 0 {
		*dst = value
	}
}
