package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "fatturaflow.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FATTURAFLOW_PORT")
	setString(&cfg.Server.CORSOrigin, "FATTURAFLOW_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FATTURAFLOW_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FATTURAFLOW_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FATTURAFLOW_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FATTURAFLOW_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FATTURAFLOW_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "LITELLM_MODEL")
	setString(&cfg.Logging.Level, "FATTURAFLOW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FATTURAFLOW_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "FATTURAFLOW_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FATTURAFLOW_BREAKER_TIMEOUT")

	// Cache
	setBool(&cfg.Cache.Enabled, "FATTURAFLOW_CACHE_ENABLED")
	setString(&cfg.Cache.Strategy, "FATTURAFLOW_CACHE_STRATEGY")
	setInt(&cfg.Cache.MaxEntries, "FATTURAFLOW_CACHE_MAX_ENTRIES")
	setDuration(&cfg.Cache.DefaultTTL, "FATTURAFLOW_CACHE_TTL")
	setFloat64(&cfg.Cache.SimilarityThreshold, "FATTURAFLOW_CACHE_SIMILARITY")
	setInt64(&cfg.Cache.L1MaxSizeMB, "FATTURAFLOW_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "FATTURAFLOW_CACHE_L2_BUCKET")

	// Workflow
	setDuration(&cfg.Workflow.AgentTimeout, "FATTURAFLOW_WF_AGENT_TIMEOUT")
	setInt(&cfg.Workflow.HistoryMaxMessages, "FATTURAFLOW_WF_HISTORY_MAX_MESSAGES")
	setInt(&cfg.Workflow.HistoryMaxTokens, "FATTURAFLOW_WF_HISTORY_MAX_TOKENS")
	setString(&cfg.Workflow.DefaultCheckLevel, "FATTURAFLOW_WF_CHECK_LEVEL")
	setFloat64(&cfg.Workflow.DefaultVATRate, "FATTURAFLOW_WF_DEFAULT_VAT_RATE")
	setInt(&cfg.Workflow.HistoryTailForKey, "FATTURAFLOW_WF_HISTORY_TAIL_FOR_KEY")

	// Notify
	setString(&cfg.Notify.SlackWebhookURL, "FATTURAFLOW_SLACK_WEBHOOK_URL")

	// Otel
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Workflow.HistoryMaxMessages < 1 {
		return errors.New("workflow.history_max_messages must be >= 1")
	}
	if cfg.Workflow.HistoryMaxTokens < 1 {
		return errors.New("workflow.history_max_tokens must be >= 1")
	}
	switch cfg.Workflow.DefaultCheckLevel {
	case "basic", "standard", "full":
	default:
		return fmt.Errorf("workflow.default_check_level %q must be basic, standard or full", cfg.Workflow.DefaultCheckLevel)
	}
	if cfg.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must not be negative")
	}
	if cfg.Cache.DefaultTTL < 0 {
		return errors.New("cache.default_ttl must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
