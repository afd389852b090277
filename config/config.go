package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config struct to hold the configuration settings
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	NATS          NATSConfig          `yaml:"nats"`
	Source        SourceConfig        `yaml:"source"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	HTTP          HTTPConfig          `yaml:"http"`
	Leaderboard   LeaderboardConfig   `yaml:"leaderboard"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver     string `yaml:"driver" env:"STORE_DRIVER"` // postgres|sqlite
	DSN        string `yaml:"dsn" env:"DATABASE_URL"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

// NATSConfig holds NATS configuration. An empty URL keeps events in process.
type NATSConfig struct {
	URL string `yaml:"url" env:"NATS_URL"`
	// NKeySeed is a user nkey seed (SU...) used to authenticate, if set.
	NKeySeed string `yaml:"nkey_seed" env:"NATS_NKEY_SEED"`
}

// SourceConfig configures the external score source client.
type SourceConfig struct {
	BaseURL           string        `yaml:"base_url" env:"SCORE_SOURCE_URL"`
	Timeout           time.Duration `yaml:"timeout" env:"SCORE_SOURCE_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"SCORE_SOURCE_RPS"`
	Burst             int           `yaml:"burst" env:"SCORE_SOURCE_BURST"`
	UserAgent         string        `yaml:"user_agent" env:"SCORE_SOURCE_USER_AGENT"`
}

// ScheduleConfig drives both scheduler activities. Times are HH:MM in Timezone.
type ScheduleConfig struct {
	Timezone                  string        `yaml:"timezone" env:"SCHEDULE_TIMEZONE"`
	TickInterval              time.Duration `yaml:"tick_interval" env:"SCHEDULE_TICK_INTERVAL"`
	BackupAt                  string        `yaml:"backup_at" env:"SCHEDULE_BACKUP_AT"`
	ResetAt                   string        `yaml:"reset_at" env:"SCHEDULE_RESET_AT"`
	RefreshAt                 string        `yaml:"refresh_at" env:"SCHEDULE_REFRESH_AT"`
	CatchUpWindow             time.Duration `yaml:"catch_up_window" env:"SCHEDULE_CATCH_UP_WINDOW"`
	PollConcurrency           int           `yaml:"poll_concurrency" env:"SCHEDULE_POLL_CONCURRENCY"`
	AbortResetOnBackupFailure bool          `yaml:"abort_reset_on_backup_failure" env:"SCHEDULE_ABORT_RESET_ON_BACKUP_FAILURE"`
	Dispatch                  string        `yaml:"dispatch" env:"SCHEDULE_DISPATCH"` // inline|river
}

// HTTPConfig holds the command surface listener settings.
type HTTPConfig struct {
	ListenAddr     string  `yaml:"listen_addr" env:"HTTP_LISTEN_ADDR"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"HTTP_RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"HTTP_RATE_LIMIT_BURST"`
	// AdminJWTSecret signs admin bearer tokens. Empty leaves admin routes open.
	AdminJWTSecret string `yaml:"admin_jwt_secret" env:"ADMIN_JWT_SECRET"`
}

// LeaderboardConfig holds projection defaults.
type LeaderboardConfig struct {
	PageSize int `yaml:"page_size" env:"LEADERBOARD_PAGE_SIZE"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	ServiceName    string `yaml:"service_name" env:"SERVICE_NAME"`
	Environment    string `yaml:"environment" env:"ENV"`
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	MetricsPrefix  string `yaml:"metrics_prefix" env:"METRICS_PREFIX"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DispatchInline = "inline"
	DispatchRiver  = "river"

	minSecretLen = 32
)

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{Driver: DriverPostgres, SQLitePath: "trophy.db"},
		Source: SourceConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 10,
			Burst:             10,
			UserAgent:         "trophy-bot",
		},
		Schedule: ScheduleConfig{
			Timezone:        "Asia/Kolkata",
			TickInterval:    time.Minute,
			BackupAt:        "10:25",
			ResetAt:         "10:30",
			RefreshAt:       "10:42",
			CatchUpWindow:   5 * time.Minute,
			PollConcurrency: 8,
			Dispatch:        DispatchInline,
		},
		HTTP:        HTTPConfig{ListenAddr: ":3000", RateLimitRPS: 5, RateLimitBurst: 10},
		Leaderboard: LeaderboardConfig{PageSize: 10},
		Observability: ObservabilityConfig{
			ServiceName:    "trophy-bot",
			Environment:    "production",
			LogLevel:       "info",
			MetricsEnabled: true,
			MetricsPrefix:  "trophy",
		},
	}
}

// LoadConfig loads the configuration from a YAML file, then applies
// environment overrides. A missing file falls back to defaults plus env.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env only
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location loads the schedule timezone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source.base_url is required"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout must be positive"))
	}

	s := c.Schedule
	if _, err := s.Location(); err != nil {
		errs = append(errs, err)
	}
	if s.TickInterval < time.Second {
		errs = append(errs, fmt.Errorf("schedule.tick_interval %s is below 1s", s.TickInterval))
	}
	if s.CatchUpWindow < s.TickInterval {
		errs = append(errs, fmt.Errorf("schedule.catch_up_window %s is shorter than schedule.tick_interval %s", s.CatchUpWindow, s.TickInterval))
	}
	if s.PollConcurrency < 1 {
		errs = append(errs, errors.New("schedule.poll_concurrency must be at least 1"))
	}
	switch s.Dispatch {
	case DispatchInline:
	case DispatchRiver:
		if c.Store.Driver != DriverPostgres {
			errs = append(errs, errors.New("schedule.dispatch river requires the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown schedule.dispatch %q", s.Dispatch))
	}

	minutes := make([]int, 0, 3)
	for _, v := range []struct{ name, value string }{
		{"backup_at", s.BackupAt}, {"reset_at", s.ResetAt}, {"refresh_at", s.RefreshAt},
	} {
		t, err := time.Parse("15:04", v.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule.%s: invalid time %q", v.name, v.value))
			continue
		}
		minutes = append(minutes, t.Hour()*60+t.Minute())
	}
	if len(minutes) == 3 {
		if !(minutes[0] < minutes[1] && minutes[1] < minutes[2]) {
			errs = append(errs, errors.New("schedule times must satisfy backup_at < reset_at < refresh_at"))
		}
		if time.Duration(minutes[2])*time.Minute+s.CatchUpWindow > 24*time.Hour {
			errs = append(errs, errors.New("schedule.catch_up_window must not cross midnight"))
		}
	}

	if n := len(c.HTTP.AdminJWTSecret); n > 0 && n < minSecretLen {
		errs = append(errs, fmt.Errorf("http.admin_jwt_secret must be at least %d bytes", minSecretLen))
	}

	if c.Leaderboard.PageSize < 1 {
		errs = append(errs, errors.New("leaderboard.page_size must be at least 1"))
	}

	return errors.Join(errs...)
}
