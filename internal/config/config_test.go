package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
slack:
  signing_secret: s
  bot_token: xoxb-min
agent:
  api_key: rk
  webhook_secret: wh
  agent_id: agent-1
`

// envVars are cleared in Load tests so the host environment cannot leak in.
var envVars = []string{
	"SIGNALBOX_ENV", "PORT", "LOG_LEVEL",
	"SLACK_SIGNING_SECRET", "SLACK_BOT_TOKEN", "SLACK_API_URL",
	"ROOAAK_API_KEY", "ROOAAK_WEBHOOK_SECRET", "ROOAAK_AGENT_ID", "ROOAAK_BASE_URL",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != EnvDevelopment {
		t.Errorf("Env = %q, want %q", cfg.Env, EnvDevelopment)
	}
	if cfg.Port != 8787 {
		t.Errorf("Port = %d, want 8787", cfg.Port)
	}
	if cfg.Addr() != ":8787" {
		t.Errorf("Addr = %q, want :8787", cfg.Addr())
	}
	if cfg.HTTPTimeout != 20*time.Second {
		t.Errorf("HTTPTimeout = %v, want 20s", cfg.HTTPTimeout)
	}
	if cfg.Agent.BaseURL != "https://www.rooaak.com" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Dedup.Window != 10*time.Minute {
		t.Errorf("Dedup.Window = %v, want 10m", cfg.Dedup.Window)
	}
	if cfg.Dedup.SweepSchedule != "@every 1m" {
		t.Errorf("Dedup.SweepSchedule = %q", cfg.Dedup.SweepSchedule)
	}
	if cfg.Dispatch.Workers != 8 || cfg.Dispatch.QueueSize != 256 {
		t.Errorf("Dispatch = %+v, want 8 workers / 256 queue", cfg.Dispatch)
	}
	if cfg.Dispatch.ProcessTimeout != 30*time.Second {
		t.Errorf("Dispatch.ProcessTimeout = %v, want 30s", cfg.Dispatch.ProcessTimeout)
	}
	if cfg.Slack.RatePerSecond != 1 || cfg.Slack.Burst != 5 {
		t.Errorf("Slack rate = %v/%d, want 1/5", cfg.Slack.RatePerSecond, cfg.Slack.Burst)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "auto" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.OTel.Enabled() {
		t.Error("OTel should be disabled without an endpoint")
	}
	if cfg.OTel.ServiceName != "signalbox" {
		t.Errorf("OTel.ServiceName = %q", cfg.OTel.ServiceName)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("expected development environment")
	}
}

func TestParse_MissingSecrets(t *testing.T) {
	_, err := Parse([]byte("port: 9000\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"SLACK_SIGNING_SECRET",
		"SLACK_BOT_TOKEN",
		"ROOAAK_API_KEY",
		"ROOAAK_WEBHOOK_SECRET",
		"ROOAAK_AGENT_ID",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to mention %s", err.Error(), want)
		}
	}
	if !strings.HasPrefix(err.Error(), "config: validation failed:") {
		t.Errorf("error = %q, want validation prefix", err.Error())
	}
}

func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"port out of range", "port: 70000", "port 70000 is out of range"},
		{"negative window", "dedup:\n  window: -1s", "dedup.window must be positive"},
		{"negative workers", "dispatch:\n  workers: -2", "dispatch.workers must be positive"},
		{"negative queue", "dispatch:\n  queue_size: -2", "dispatch.queue_size must be positive"},
		{"negative timeout", "http_timeout: -5s", "timeouts must be positive"},
		{"bad env", "env: staging", `env "staging"`},
		{"bad level", "log:\n  level: loud", `log.level "loud"`},
		{"bad format", "log:\n  format: xml", `log.format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(minimalYAML + tt.yaml + "\n"))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte(":::invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}

func TestParseWithEnv_Overrides(t *testing.T) {
	cfg, err := ParseWithEnv([]byte(minimalYAML), mapLookup(map[string]string{
		"SIGNALBOX_ENV":               "production",
		"PORT":                        "9999",
		"SLACK_SIGNING_SECRET":        "env-signing",
		"SLACK_BOT_TOKEN":             "xoxb-env",
		"SLACK_API_URL":               "http://slack.local/api/",
		"ROOAAK_API_KEY":              "rk_env",
		"ROOAAK_WEBHOOK_SECRET":       "wh_env",
		"ROOAAK_AGENT_ID":             "agent-env",
		"ROOAAK_BASE_URL":             "http://agent.local",
		"LOG_LEVEL":                   "warn",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4318",
		"OTEL_EXPORTER_OTLP_HEADERS":  "a=b",
		"OTEL_SERVICE_NAME":           "sb-env",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsProduction() || cfg.Port != 9999 {
		t.Errorf("Env/Port = %q/%d", cfg.Env, cfg.Port)
	}
	if cfg.Slack.SigningSecret != "env-signing" || cfg.Slack.BotToken != "xoxb-env" || cfg.Slack.APIURL != "http://slack.local/api/" {
		t.Errorf("Slack = %+v", cfg.Slack)
	}
	if cfg.Agent.APIKey != "rk_env" || cfg.Agent.WebhookSecret != "wh_env" || cfg.Agent.AgentID != "agent-env" || cfg.Agent.BaseURL != "http://agent.local" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if !cfg.OTel.Enabled() || cfg.OTel.Headers != "a=b" || cfg.OTel.ServiceName != "sb-env" {
		t.Errorf("OTel = %+v", cfg.OTel)
	}
}

func TestParseWithEnv_EmptyValuesDoNotOverride(t *testing.T) {
	cfg, err := ParseWithEnv([]byte(minimalYAML), mapLookup(map[string]string{
		"SLACK_BOT_TOKEN": "",
		"PORT":            "",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-min" || cfg.Port != 8787 {
		t.Errorf("BotToken/Port = %q/%d", cfg.Slack.BotToken, cfg.Port)
	}
}

func TestParseWithEnv_EnvOnly(t *testing.T) {
	cfg, err := ParseWithEnv(nil, mapLookup(map[string]string{
		"SLACK_SIGNING_SECRET":  "s",
		"SLACK_BOT_TOKEN":       "b",
		"ROOAAK_API_KEY":        "k",
		"ROOAAK_WEBHOOK_SECRET": "w",
		"ROOAAK_AGENT_ID":       "a",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.AgentID != "a" {
		t.Errorf("AgentID = %q", cfg.Agent.AgentID)
	}
}

func TestParseWithEnv_BadPort(t *testing.T) {
	_, err := ParseWithEnv([]byte(minimalYAML), mapLookup(map[string]string{"PORT": "eighty"}))
	if err == nil || !strings.Contains(err.Error(), `PORT "eighty" is not a number`) {
		t.Fatalf("expected PORT error, got %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "signalbox.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", cfg.Agent.AgentID)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROOAAK_AGENT_ID", "from-env")
	t.Setenv("PORT", "8123")
	cfg, err := Load("testdata/valid_minimal.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.AgentID != "from-env" || cfg.Port != 8123 {
		t.Errorf("AgentID/Port = %q/%d", cfg.Agent.AgentID, cfg.Port)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/signalbox.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

// --- Fixture-based tests using testdata/ files ---

func TestLoad_FullFixture(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("testdata/valid_full.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsProduction() || cfg.Port != 9000 || cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("Env/Port/HTTPTimeout = %q/%d/%v", cfg.Env, cfg.Port, cfg.HTTPTimeout)
	}
	if cfg.Slack.RatePerSecond != 2 || cfg.Slack.Burst != 10 || cfg.Slack.APIURL != "https://slack.example.test/api/" {
		t.Errorf("Slack = %+v", cfg.Slack)
	}
	if cfg.Agent.BaseURL != "https://agent.example.test" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Dedup.Window != 5*time.Minute || cfg.Dedup.SweepSchedule != "@every 30s" {
		t.Errorf("Dedup = %+v", cfg.Dedup)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.QueueSize != 64 || cfg.Dispatch.ProcessTimeout != 45*time.Second {
		t.Errorf("Dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.OTel.Enabled() || cfg.OTel.ServiceName != "signalbox-full" || cfg.OTel.ServiceVersion != "dev" {
		t.Errorf("OTel = %+v", cfg.OTel)
	}
}

func TestLoad_MinimalFixture(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("testdata/valid_minimal.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-min" {
		t.Errorf("BotToken = %q", cfg.Slack.BotToken)
	}
	if cfg.Port != 8787 {
		t.Errorf("Port = %d, want default 8787", cfg.Port)
	}
}

func TestLoad_MissingSecretsFixture(t *testing.T) {
	clearEnv(t)
	_, err := Load("testdata/missing_secrets.yaml")
	if err == nil {
		t.Fatal("expected error for missing secrets")
	}
	if !strings.Contains(err.Error(), "slack.signing_secret") {
		t.Errorf("error = %q, want to mention slack.signing_secret", err.Error())
	}
	if strings.Contains(err.Error(), "agent.agent_id") {
		t.Errorf("error = %q, agent_id is set in the fixture", err.Error())
	}
}

func TestLoad_InvalidYAMLFixture(t *testing.T) {
	clearEnv(t)
	_, err := Load("testdata/invalid.yaml")
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}
