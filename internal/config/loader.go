package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "medforge.yaml"

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
	setString(&cfg.Server.Port, "MEDFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "MEDFORGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "MEDFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "MEDFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "MEDFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "MEDFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "MEDFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "MEDFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MEDFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "MEDFORGE_LOG_ASYNC")
	setStrings(&cfg.Logging.RedactKeys, "MEDFORGE_LOG_REDACT_KEYS")
	setInt(&cfg.Breaker.MaxFailures, "MEDFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MEDFORGE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "MEDFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "MEDFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "MEDFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "MEDFORGE_RATE_MAX_IDLE_TIME")

	// Auth
	setBool(&cfg.Auth.Enabled, "MEDFORGE_AUTH_ENABLED")
	setStrings(&cfg.Auth.APIKeyHashes, "MEDFORGE_API_KEY_HASHES")

	// Delegate orchestrator
	setString(&cfg.Delegate.URL, "MEDFORGE_DELEGATE_URL")
	setString(&cfg.Delegate.APIKey, "MEDFORGE_DELEGATE_API_KEY")
	setDuration(&cfg.Delegate.SubmitTimeout, "MEDFORGE_DELEGATE_SUBMIT_TIMEOUT")
	setDuration(&cfg.Delegate.StatusTimeout, "MEDFORGE_DELEGATE_STATUS_TIMEOUT")

	// Enrichment
	setString(&cfg.Enrichment.LiteratureURL, "MEDFORGE_LITERATURE_URL")
	setString(&cfg.Enrichment.DrugSafetyURL, "MEDFORGE_DRUG_SAFETY_URL")
	setString(&cfg.Enrichment.GuidelineURL, "MEDFORGE_GUIDELINE_URL")
	setString(&cfg.Enrichment.DifferentialURL, "MEDFORGE_DIFFERENTIAL_URL")
	setString(&cfg.Enrichment.ImagingURL, "MEDFORGE_IMAGING_URL")
	setString(&cfg.Enrichment.APIKey, "MEDFORGE_ENRICHMENT_API_KEY")
	setDuration(&cfg.Enrichment.Timeout, "MEDFORGE_ENRICHMENT_TIMEOUT")
	setDuration(&cfg.Enrichment.CacheTTL, "MEDFORGE_ENRICHMENT_CACHE_TTL")
	setInt(&cfg.Enrichment.MaxArticles, "MEDFORGE_ENRICHMENT_MAX_ARTICLES")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "MEDFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "MEDFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "MEDFORGE_CACHE_L2_TTL")

	// Complexity
	setInt(&cfg.Complexity.MaxAgents, "MEDFORGE_MAX_AGENTS")

	// Consultation
	setDuration(&cfg.Consultation.PollInterval, "MEDFORGE_POLL_INTERVAL")
	setInt(&cfg.Consultation.MaxPollAttempts, "MEDFORGE_MAX_POLL_ATTEMPTS")
	setString(&cfg.Consultation.PollURLPrefix, "MEDFORGE_POLL_URL_PREFIX")
	setDuration(&cfg.Consultation.ResultsTTL, "MEDFORGE_RESULTS_TTL")

	setFloat64(&cfg.Safety.ConfidenceThreshold, "MEDFORGE_SAFETY_CONFIDENCE_THRESHOLD")

	// OpenTelemetry
	setBool(&cfg.OTel.Enabled, "MEDFORGE_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "MEDFORGE_OTEL_INSECURE")
	setString(&cfg.OTel.ServiceName, "OTEL_SERVICE_NAME")

	// MCP
	setBool(&cfg.MCP.Enabled, "MEDFORGE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "MEDFORGE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "MEDFORGE_MCP_API_KEY")

	// Review alerts
	setString(&cfg.Notify.SlackWebhookURL, "MEDFORGE_NOTIFY_SLACK_WEBHOOK")
	setString(&cfg.Notify.DiscordWebhookURL, "MEDFORGE_NOTIFY_DISCORD_WEBHOOK")
	setString(&cfg.Notify.SMTPHost, "MEDFORGE_NOTIFY_SMTP_HOST")
	setInt(&cfg.Notify.SMTPPort, "MEDFORGE_NOTIFY_SMTP_PORT")
	setString(&cfg.Notify.SMTPFrom, "MEDFORGE_NOTIFY_SMTP_FROM")
	setString(&cfg.Notify.SMTPTo, "MEDFORGE_NOTIFY_SMTP_TO")
	setString(&cfg.Notify.SMTPPassword, "MEDFORGE_NOTIFY_SMTP_PASSWORD")
}

// validate checks that required fields are set and numeric ranges are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Delegate.URL == "" {
		return errors.New("delegate.url is required")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeyHashes) == 0 {
		return errors.New("auth.api_key_hashes is required when auth is enabled")
	}
	if cfg.Complexity.MaxAgents < 1 {
		return errors.New("complexity.max_agents must be >= 1")
	}
	w := cfg.Complexity.Weights
	for _, v := range []float64{w.Symptoms, w.Urgency, w.History, w.DataVolume, w.Specialties, w.RareDisease} {
		if v < 0 {
			return errors.New("complexity.weights must be non-negative")
		}
	}
	if cfg.Consultation.PollInterval <= 0 {
		return errors.New("consultation.poll_interval must be > 0")
	}
	if cfg.Consultation.MaxPollAttempts < 1 {
		return errors.New("consultation.max_poll_attempts must be >= 1")
	}
	if t := cfg.Safety.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("safety.confidence_threshold must be in [0,1], got %v", t)
	}
	if cfg.Notify.SMTPHost != "" && (cfg.Notify.SMTPFrom == "" || cfg.Notify.SMTPTo == "") {
		return errors.New("notify.smtp_from and notify.smtp_to are required with notify.smtp_host")
	}
	if cfg.Delegate.SubmitTimeout <= 0 {
		return errors.New("delegate.submit_timeout must be > 0")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

// setStrings parses a comma-separated list, dropping empty entries.
func setStrings(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
