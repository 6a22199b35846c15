// Package config provides hierarchical configuration loading for MedForge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the MedForge consultation service.
type Config struct {
	Server       Server       `yaml:"server"`
	Postgres     Postgres     `yaml:"postgres"`
	NATS         NATS         `yaml:"nats"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Rate         Rate         `yaml:"rate"`
	Auth         Auth         `yaml:"auth"`
	Delegate     Delegate     `yaml:"delegate"`
	Enrichment   Enrichment   `yaml:"enrichment"`
	Cache        Cache        `yaml:"cache"`
	Complexity   Complexity   `yaml:"complexity"`
	Consultation Consultation `yaml:"consultation"`
	Safety       Safety       `yaml:"safety"`
	OTel         OTel         `yaml:"otel"`
	MCP          MCP          `yaml:"mcp"`
	Notify       Notify       `yaml:"notify"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration.
// An empty DSN disables the audit store; decisions are then only logged.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables events and the L2 cache.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level      string   `yaml:"level"`
	Service    string   `yaml:"service"`
	Async      bool     `yaml:"async"`
	RedactKeys []string `yaml:"redact_keys"` // attribute keys masked in log output
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Auth holds API key authentication configuration.
type Auth struct {
	Enabled      bool     `yaml:"enabled"`
	APIKeyHashes []string `yaml:"api_key_hashes"` // bcrypt hashes, see `medforge hash-key`
}

// Delegate holds the external orchestration engine endpoint.
type Delegate struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	StatusTimeout time.Duration `yaml:"status_timeout"`
}

// Enrichment holds knowledge provider endpoints. An empty URL disables that branch.
type Enrichment struct {
	LiteratureURL   string        `yaml:"literature_url"`
	DrugSafetyURL   string        `yaml:"drug_safety_url"`
	GuidelineURL    string        `yaml:"guideline_url"`
	DifferentialURL string        `yaml:"differential_url"`
	ImagingURL      string        `yaml:"imaging_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`   // per-branch deadline
	CacheTTL        time.Duration `yaml:"cache_ttl"` // 0 disables lookup caching
	MaxArticles     int           `yaml:"max_articles"`
}

// Cache holds tiered cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// ComplexityWeights are the dimension weights of the overall complexity score.
type ComplexityWeights struct {
	Symptoms    float64 `yaml:"symptoms"`
	Urgency     float64 `yaml:"urgency"`
	History     float64 `yaml:"history"`
	DataVolume  float64 `yaml:"data_volume"`
	Specialties float64 `yaml:"specialties"`
	RareDisease float64 `yaml:"rare_disease"`
}

// Complexity holds complexity analyzer configuration.
type Complexity struct {
	MaxAgents int               `yaml:"max_agents"`
	Weights   ComplexityWeights `yaml:"weights"`
}

// Consultation holds task manager configuration.
type Consultation struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	PollURLPrefix   string        `yaml:"poll_url_prefix"`
	ResultsTTL      time.Duration `yaml:"results_ttl"` // how long final results stay retrievable
}

// Safety holds safety gate configuration.
type Safety struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// OTel holds OpenTelemetry exporter configuration.
type OTel struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// MCP holds the MCP tool server configuration.
type MCP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	APIKey  string `yaml:"api_key"`
}

// Notify holds the channels alerted when a consultation needs human review.
// A channel without a webhook URL or SMTP host is disabled.
type Notify struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	SMTPHost          string `yaml:"smtp_host"`
	SMTPPort          int    `yaml:"smtp_port"`
	SMTPFrom          string `yaml:"smtp_from"`
	SMTPTo            string `yaml:"smtp_to"`
	SMTPPassword      string `yaml:"smtp_password"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "medforge",
			RedactKeys: []string{
				"patient_id", "patient_name", "allergies", "medications", "conditions",
			},
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             50,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Delegate: Delegate{
			URL:           "http://localhost:9000",
			SubmitTimeout: 10 * time.Second,
			StatusTimeout: 5 * time.Second,
		},
		Enrichment: Enrichment{
			Timeout:     8 * time.Second,
			CacheTTL:    time.Hour,
			MaxArticles: 10,
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			L2Bucket:    "MEDFORGE_CACHE",
			L2TTL:       24 * time.Hour,
		},
		Complexity: Complexity{
			MaxAgents: 12,
			Weights: ComplexityWeights{
				Symptoms:    0.25,
				Urgency:     0.20,
				History:     0.15,
				DataVolume:  0.15,
				Specialties: 0.15,
				RareDisease: 0.10,
			},
		},
		Consultation: Consultation{
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 150,
			PollURLPrefix:   "/api/v1/consultations/",
			ResultsTTL:      time.Hour,
		},
		Safety: Safety{
			ConfidenceThreshold: 0.7,
		},
		OTel: OTel{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "medforge",
		},
		MCP: MCP{
			Addr: ":8090",
		},
		Notify: Notify{
			SMTPPort: 587,
		},
	}
}
