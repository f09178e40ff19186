// Package config provides YAML-based configuration loading for Shopfloor.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Part stage policies applied when a task starts.
const (
	PartStageLatest   = "latest"
	PartStageEarliest = "earliest"
)

// Config is the top-level Shopfloor configuration, loaded from shopfloor.yaml.
type Config struct {
	Tenant    string          `yaml:"tenant"`
	Database  DatabaseConfig  `yaml:"database"`
	Cascade   CascadeConfig   `yaml:"cascade"`
	Notify    NotifyConfig    `yaml:"notify"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// DatabaseConfig selects the gorm dialector and its connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql, postgres
	DSN      string `yaml:"dsn"`    // overrides the discrete fields when set
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	LogSQL   bool   `yaml:"log_sql"`
}

// CascadeConfig tunes the status cascade.
type CascadeConfig struct {
	PartStagePolicy    string        `yaml:"part_stage_policy"`
	MaxConflictRetries int           `yaml:"max_conflict_retries"`
	ConflictBackoff    time.Duration `yaml:"conflict_backoff"`
}

// NotifyConfig controls the asynchronous notification dispatcher and its sinks.
type NotifyConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
	Webhooks       bool          `yaml:"webhooks"` // deliver to per-tenant webhook rows
	Slack          SlackConfig   `yaml:"slack"`
	Discord        DiscordConfig `yaml:"discord"`
	NATS           NATSConfig    `yaml:"nats"`
}

// SlackConfig holds an incoming-webhook URL.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// DiscordConfig holds a channel webhook URL (https://discord.com/api/webhooks/<id>/<token>).
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Username   string `yaml:"username"`
}

// NATSConfig publishes events onto a subject hierarchy.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DashboardConfig holds HTTP API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// ReconcileConfig schedules the self-healing sweep.
type ReconcileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // 5-field cron expression

	// CompletedWindow also sweeps completed jobs updated this recently, so a
	// job closed while a part is still open gets reopened.
	CompletedWindow time.Duration `yaml:"completed_window"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, if present, is loaded into the process
// environment first so SHOPFLOOR_* overrides can live outside the YAML.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays secrets and endpoints from SHOPFLOOR_* variables.
func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		"SHOPFLOOR_TENANT":              &c.Tenant,
		"SHOPFLOOR_DATABASE_DRIVER":     &c.Database.Driver,
		"SHOPFLOOR_DATABASE_DSN":        &c.Database.DSN,
		"SHOPFLOOR_DATABASE_PASSWORD":   &c.Database.Password,
		"SHOPFLOOR_SLACK_WEBHOOK_URL":   &c.Notify.Slack.WebhookURL,
		"SHOPFLOOR_DISCORD_WEBHOOK_URL": &c.Notify.Discord.WebhookURL,
		"SHOPFLOOR_NATS_URL":            &c.Notify.NATS.URL,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" && c.Database.DSN == "" {
			c.Database.Path = "shopfloor.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "shopfloor"
	}

	if c.Cascade.PartStagePolicy == "" {
		c.Cascade.PartStagePolicy = PartStageLatest
	}
	if c.Cascade.MaxConflictRetries == 0 {
		c.Cascade.MaxConflictRetries = 5
	}
	if c.Cascade.ConflictBackoff == 0 {
		c.Cascade.ConflictBackoff = 10 * time.Millisecond
	}

	if c.Notify.Workers == 0 {
		c.Notify.Workers = 2
	}
	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = 256
	}
	if c.Notify.MaxAttempts == 0 {
		c.Notify.MaxAttempts = 3
	}
	if c.Notify.InitialBackoff == 0 {
		c.Notify.InitialBackoff = 500 * time.Millisecond
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Notify.NATS.SubjectPrefix == "" {
		c.Notify.NATS.SubjectPrefix = "shopfloor"
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = "*/15 * * * *"
	}
	if c.Reconcile.CompletedWindow == 0 {
		c.Reconcile.CompletedWindow = 24 * time.Hour
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs *multierror.Error
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = multierror.Append(errs, fmt.Errorf("database.driver %q is not one of sqlite, mysql, postgres", c.Database.Driver))
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" && c.Database.User == "" {
		errs = multierror.Append(errs, fmt.Errorf("database.user is required for %s", c.Database.Driver))
	}
	switch c.Cascade.PartStagePolicy {
	case PartStageLatest, PartStageEarliest:
	default:
		errs = multierror.Append(errs, fmt.Errorf("cascade.part_stage_policy %q is not one of latest, earliest", c.Cascade.PartStagePolicy))
	}
	if c.Cascade.MaxConflictRetries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("cascade.max_conflict_retries must not be negative"))
	}
	if c.Notify.Workers < 0 || c.Notify.QueueSize < 0 {
		errs = multierror.Append(errs, fmt.Errorf("notify.workers and notify.queue_size must not be negative"))
	}
	if c.Reconcile.CompletedWindow < 0 {
		errs = multierror.Append(errs, fmt.Errorf("reconcile.completed_window must not be negative"))
	}
	if u := c.Notify.Discord.WebhookURL; u != "" && !strings.Contains(u, "/webhooks/") {
		errs = multierror.Append(errs, fmt.Errorf("notify.discord.webhook_url must be a Discord webhook URL"))
	}
	if errs.ErrorOrNil() != nil {
		errs.ErrorFormat = func(es []error) string {
			msgs := make([]string, len(es))
			for i, e := range es {
				msgs[i] = e.Error()
			}
			return "config: validation failed: " + strings.Join(msgs, "; ")
		}
		return errs
	}
	return nil
}
