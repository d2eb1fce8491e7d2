// Package config provides YAML-based configuration loading for Proctor.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Proctor configuration, loaded from proctor.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Redis     RedisConfig     `yaml:"redis"`
	TextGen   TextGenConfig   `yaml:"textgen"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds connection settings for the interview store.
type DatabaseConfig struct {
	Driver    string        `yaml:"driver"` // "mysql" or "sqlite"
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	User      string        `yaml:"user"`
	Password  string        `yaml:"password"`
	Name      string        `yaml:"name"`
	Path      string        `yaml:"path"` // sqlite file
	OpTimeout time.Duration `yaml:"op_timeout"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LifecycleConfig controls abandonment detection.
type LifecycleConfig struct {
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	SweepSchedule    string        `yaml:"sweep_schedule"`
}

// DispatchConfig controls the completion dispatcher.
type DispatchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	ClaimTTL     time.Duration `yaml:"claim_ttl"`
	ClaimBackend string        `yaml:"claim_backend"` // "gorm" or "redis"
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// RedisConfig is used when claims are kept in Redis.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TextGenConfig points at an OpenAI-compatible chat completion endpoint.
type TextGenConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// StorageConfig selects where recordings are uploaded.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "local" or "s3"
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// NotifyConfig configures best-effort evaluation notifications. Every
// channel is optional.
type NotifyConfig struct {
	SlackWebhookURL  string      `yaml:"slack_webhook_url"`
	DiscordBotToken  string      `yaml:"discord_bot_token"`
	DiscordChannelID string      `yaml:"discord_channel_id"`
	Email            EmailConfig `yaml:"email"`
}

// EmailConfig configures SES delivery.
type EmailConfig struct {
	Enabled bool     `yaml:"enabled"`
	Region  string   `yaml:"region"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "console" or "auto"
}

// scheduleParser accepts standard 5-field expressions and descriptors such as "@every 1m".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the working directory is loaded first, if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

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

// Default returns a configuration suitable for local development: sqlite,
// local recording storage and defaults everywhere else.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// applyEnv overrides secrets from the environment.
func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"PROCTOR_DB_PASSWORD", &c.Database.Password},
		{"PROCTOR_TEXTGEN_API_KEY", &c.TextGen.APIKey},
		{"PROCTOR_REDIS_PASSWORD", &c.Redis.Password},
		{"PROCTOR_SLACK_WEBHOOK_URL", &c.Notify.SlackWebhookURL},
		{"PROCTOR_DISCORD_BOT_TOKEN", &c.Notify.DiscordBotToken},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "proctor"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "proctor.db"
	}
	if c.Database.OpTimeout == 0 {
		c.Database.OpTimeout = 5 * time.Second
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Lifecycle.InactivityWindow == 0 {
		c.Lifecycle.InactivityWindow = 5 * time.Minute
	}
	if c.Lifecycle.SweepSchedule == "" {
		c.Lifecycle.SweepSchedule = "@every 1m"
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = 30 * time.Second
	}
	if c.Dispatch.ClaimTTL == 0 {
		c.Dispatch.ClaimTTL = 2 * time.Minute
	}
	if c.Dispatch.ClaimBackend == "" {
		c.Dispatch.ClaimBackend = "gorm"
	}
	if c.Dispatch.StageTimeout == 0 {
		c.Dispatch.StageTimeout = 20 * time.Second
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "127.0.0.1:6379"
	}
	if c.TextGen.BaseURL == "" {
		c.TextGen.BaseURL = "https://api.openai.com/v1"
	}
	if c.TextGen.Model == "" {
		c.TextGen.Model = "gpt-4o-mini"
	}
	if c.TextGen.Timeout == 0 {
		c.TextGen.Timeout = 15 * time.Second
	}
	if c.TextGen.MaxTokens == 0 {
		c.TextGen.MaxTokens = 1500
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.Backend == "local" && c.Storage.Dir == "" {
		c.Storage.Dir = "recordings"
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = "recordings"
	}
	if c.Notify.Email.Enabled && c.Notify.Email.Region == "" {
		c.Notify.Email.Region = c.Storage.Region
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Lifecycle.InactivityWindow < 0 {
		errs = append(errs, "lifecycle.inactivity_window must be positive")
	}
	if _, err := scheduleParser.Parse(c.Lifecycle.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("lifecycle.sweep_schedule: %v", err))
	}
	if c.Dispatch.Timeout < 0 || c.Dispatch.ClaimTTL < 0 || c.Dispatch.StageTimeout < 0 {
		errs = append(errs, "dispatch durations must be positive")
	}
	if c.Dispatch.ClaimTTL > 0 && c.Dispatch.ClaimTTL < c.Dispatch.Timeout {
		errs = append(errs, "dispatch.claim_ttl must not be shorter than dispatch.timeout")
	}
	// A run may outlive the caller's wait by up to claim_ttl; the sweeper must
	// not see it as idle before then.
	if c.Lifecycle.InactivityWindow > 0 && c.Dispatch.ClaimTTL >= c.Lifecycle.InactivityWindow {
		errs = append(errs, "dispatch.claim_ttl must be shorter than lifecycle.inactivity_window")
	}
	switch c.Dispatch.ClaimBackend {
	case "gorm", "redis":
	default:
		errs = append(errs, fmt.Sprintf("dispatch.claim_backend %q is not supported", c.Dispatch.ClaimBackend))
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, "storage.bucket is required for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q is not supported", c.Storage.Backend))
	}
	if c.Notify.DiscordBotToken != "" && c.Notify.DiscordChannelID == "" {
		errs = append(errs, "notify.discord_channel_id is required with a discord bot token")
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.From == "" {
			errs = append(errs, "notify.email.from is required")
		}
		if len(c.Notify.Email.To) == 0 {
			errs = append(errs, "notify.email.to needs at least one recipient")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
