package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		AdvanceDelay string `yaml:"advance_delay"`
		SessionTTL   string `yaml:"session_ttl"`
	} `yaml:"quiz"`
	History struct {
		PageSize    int    `yaml:"page_size"`
		MaxPageSize int    `yaml:"max_page_size"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"history"`
	Leaderboard struct {
		Limit    int    `yaml:"limit"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"leaderboard"`
	Generator struct {
		URL     string `yaml:"url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"generator"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadEnv copies a .env file in the working directory into the process
// environment. Variables already set win; a missing file is not an error.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads the YAML config at path. A missing file leaves every section at its
// zero value; environment variables override both.
func Load(path string) (Config, error) {
	cfg := Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Postgres.URL, "DATABASE_URL")
	override(&cfg.Generator.URL, "GENERATOR_URL")
	override(&cfg.Generator.APIKey, "GENERATOR_API_KEY")
	override(&cfg.Generator.Model, "GENERATOR_MODEL")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Log.Format, "LOG_FORMAT")
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Location resolves the history timezone, defaulting to the server's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.History.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.History.Timezone)
	if err != nil {
		return nil, fmt.Errorf("history timezone: %w", err)
	}
	return loc, nil
}

// NewLogger builds the process logger: JSON unless log.format is "text".
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
