// Package config provides configuration loading for signalbox: an optional
// YAML file, then environment overrides (including a local .env file),
// then defaults and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environments recognised in Config.Env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the top-level signalbox configuration.
type Config struct {
	Env         string         `yaml:"env"`
	Port        int            `yaml:"port"`
	HTTPTimeout time.Duration  `yaml:"http_timeout"`
	Slack       SlackConfig    `yaml:"slack"`
	Agent       AgentConfig    `yaml:"agent"`
	Dedup       DedupConfig    `yaml:"dedup"`
	Dispatch    DispatchConfig `yaml:"dispatch"`
	Log         LogConfig      `yaml:"log"`
	OTel        OTelConfig     `yaml:"otel"`
}

// SlackConfig holds Slack app credentials and posting limits.
type SlackConfig struct {
	SigningSecret string  `yaml:"signing_secret"`
	BotToken      string  `yaml:"bot_token"`
	APIURL        string  `yaml:"api_url"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// AgentConfig holds the hosted agent API credentials.
type AgentConfig struct {
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	AgentID       string `yaml:"agent_id"`
	BaseURL       string `yaml:"base_url"`
}

// DedupConfig controls the replay windows for both webhook sources.
type DedupConfig struct {
	Window        time.Duration `yaml:"window"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// DispatchConfig sizes the post-acknowledgement worker pool.
type DispatchConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, text, json
}

// OTelConfig configures OTLP export. Export is off without an endpoint.
type OTelConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Headers        string `yaml:"headers"` // k1=v1,k2=v2
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// Enabled reports whether traces and logs are exported.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// IsDevelopment reports whether the process runs in development.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and returns a validated Config. Outside production
// a .env file in the working directory is loaded first; variables already
// set in the environment win.
func Load(path string) (*Config, error) {
	if v, _ := os.LookupEnv("SIGNALBOX_ENV"); v != EnvProduction {
		_ = godotenv.Load(".env")
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return ParseWithEnv(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting
// the environment.
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, nil)
}

// ParseWithEnv unmarshals YAML bytes, applies overrides from lookup (nil
// means none), fills defaults and validates.
func ParseWithEnv(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	var errs []string
	if lookup != nil {
		errs = cfg.applyEnv(lookup)
	}
	cfg.applyDefaults()
	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return &cfg, nil
}

// applyEnv overrides fields from environment variables. It returns one
// message per variable that could not be parsed.
func (c *Config) applyEnv(lookup LookupFunc) []string {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("SIGNALBOX_ENV", &c.Env)
	str("SLACK_SIGNING_SECRET", &c.Slack.SigningSecret)
	str("SLACK_BOT_TOKEN", &c.Slack.BotToken)
	str("SLACK_API_URL", &c.Slack.APIURL)
	str("ROOAAK_API_KEY", &c.Agent.APIKey)
	str("ROOAAK_WEBHOOK_SECRET", &c.Agent.WebhookSecret)
	str("ROOAAK_AGENT_ID", &c.Agent.AgentID)
	str("ROOAAK_BASE_URL", &c.Agent.BaseURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTel.Endpoint)
	str("OTEL_EXPORTER_OTLP_HEADERS", &c.OTel.Headers)
	str("OTEL_SERVICE_NAME", &c.OTel.ServiceName)
	str("OTEL_SERVICE_VERSION", &c.OTel.ServiceVersion)

	var errs []string
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("PORT %q is not a number", v))
		} else {
			c.Port = port
		}
	}
	return errs
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if c.Port == 0 {
		c.Port = 8787
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 20 * time.Second
	}
	if c.Slack.RatePerSecond == 0 {
		c.Slack.RatePerSecond = 1
	}
	if c.Slack.Burst == 0 {
		c.Slack.Burst = 5
	}
	if c.Agent.BaseURL == "" {
		c.Agent.BaseURL = "https://www.rooaak.com"
	}
	if c.Dedup.Window == 0 {
		c.Dedup.Window = 10 * time.Minute
	}
	if c.Dedup.SweepSchedule == "" {
		c.Dedup.SweepSchedule = "@every 1m"
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 8
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 256
	}
	if c.Dispatch.ProcessTimeout == 0 {
		c.Dispatch.ProcessTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
	if c.OTel.ServiceName == "" {
		c.OTel.ServiceName = "signalbox"
	}
	if c.OTel.ServiceVersion == "" {
		c.OTel.ServiceVersion = "dev"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() []string {
	var errs []string
	if c.Slack.SigningSecret == "" {
		errs = append(errs, "slack.signing_secret (SLACK_SIGNING_SECRET) is required")
	}
	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token (SLACK_BOT_TOKEN) is required")
	}
	if c.Agent.APIKey == "" {
		errs = append(errs, "agent.api_key (ROOAAK_API_KEY) is required")
	}
	if c.Agent.WebhookSecret == "" {
		errs = append(errs, "agent.webhook_secret (ROOAAK_WEBHOOK_SECRET) is required")
	}
	if c.Agent.AgentID == "" {
		errs = append(errs, "agent.agent_id (ROOAAK_AGENT_ID) is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d is out of range", c.Port))
	}
	if c.Dedup.Window < 0 {
		errs = append(errs, "dedup.window must be positive")
	}
	if c.Dispatch.Workers < 0 {
		errs = append(errs, "dispatch.workers must be positive")
	}
	if c.Dispatch.QueueSize < 0 {
		errs = append(errs, "dispatch.queue_size must be positive")
	}
	if c.Dispatch.ProcessTimeout < 0 || c.HTTPTimeout < 0 {
		errs = append(errs, "timeouts must be positive")
	}
	if c.Slack.RatePerSecond < 0 || c.Slack.Burst < 0 {
		errs = append(errs, "slack rate limits must be positive")
	}
	switch c.Env {
	case EnvDevelopment, EnvProduction, "test":
	default:
		errs = append(errs, fmt.Sprintf("env %q must be development, production or test", c.Env))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be auto, text or json", c.Log.Format))
	}
	return errs
}
