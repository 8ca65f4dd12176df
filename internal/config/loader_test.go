package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing yaml must not be an error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Workflow.HistoryMaxMessages != 20 || cfg.Workflow.HistoryMaxTokens != 4000 {
		t.Errorf("unexpected workflow defaults: %+v", cfg.Workflow)
	}
	if cfg.Workflow.DefaultCheckLevel != "full" {
		t.Errorf("expected full check level default, got %q", cfg.Workflow.DefaultCheckLevel)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Strategy != "exact" {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fatturaflow.yaml")
	yaml := `
server:
  port: "9090"
workflow:
  agent_timeout: 10s
  history_max_messages: 8
litellm:
  model: mistral-small
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("yaml port not applied: %q", cfg.Server.Port)
	}
	if cfg.Workflow.AgentTimeout != 10*time.Second {
		t.Errorf("yaml duration not applied: %v", cfg.Workflow.AgentTimeout)
	}
	if cfg.Workflow.HistoryMaxMessages != 8 {
		t.Errorf("yaml int not applied: %d", cfg.Workflow.HistoryMaxMessages)
	}
	if cfg.LiteLLM.Model != "mistral-small" {
		t.Errorf("yaml model not applied: %q", cfg.LiteLLM.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("default lost: %q", cfg.NATS.URL)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fatturaflow.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FATTURAFLOW_PORT", "7070")
	t.Setenv("FATTURAFLOW_WF_CHECK_LEVEL", "standard")
	t.Setenv("FATTURAFLOW_CACHE_ENABLED", "false")
	t.Setenv("FATTURAFLOW_BREAKER_TIMEOUT", "90s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env must beat yaml: %q", cfg.Server.Port)
	}
	if cfg.Workflow.DefaultCheckLevel != "standard" {
		t.Errorf("env check level not applied: %q", cfg.Workflow.DefaultCheckLevel)
	}
	if cfg.Cache.Enabled {
		t.Error("env bool not applied")
	}
	if cfg.Breaker.Timeout != 90*time.Second {
		t.Errorf("env duration not applied: %v", cfg.Breaker.Timeout)
	}
}

func TestLoadFromValidation(t *testing.T) {
	t.Setenv("FATTURAFLOW_WF_HISTORY_MAX_MESSAGES", "0")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected validation error for zero history ceiling")
	}
}

func TestLoadFromRejectsUnknownCheckLevel(t *testing.T) {
	t.Setenv("FATTURAFLOW_WF_CHECK_LEVEL", "fulll")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected validation error for unknown check level")
	}

	t.Setenv("FATTURAFLOW_WF_CHECK_LEVEL", "standard")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("known level rejected: %v", err)
	}
	if cfg.Workflow.DefaultCheckLevel != "standard" {
		t.Errorf("check level not applied: %q", cfg.Workflow.DefaultCheckLevel)
	}
}
