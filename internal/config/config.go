// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order.
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

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	ASR           ASRConfig           `yaml:"asr"`
	Notify        NotifyConfig        `yaml:"notify"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	Batch         BatchConfig         `yaml:"batch"`
	Advisory      AdvisoryConfig      `yaml:"advisory"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	HTTPPort    string `yaml:"http_port"`
	GRPCPort    string `yaml:"grpc_port"`
	FeatureType string `yaml:"feature_type"`
}

// StorageConfig selects the object storage backend.
type StorageConfig struct {
	Backend   string `yaml:"backend"` // s3, local
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	LocalRoot string `yaml:"local_root"`
}

// DatabaseConfig selects the catalog/transcript datastore.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite, mysql
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	Migrate      bool   `yaml:"migrate"`
}

// ProviderConfig describes one ASR provider/model pair.
type ProviderConfig struct {
	Name         string        `yaml:"name"` // google, groq, mock
	Model        string        `yaml:"model"`
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"api_key"`
	LanguageCode string        `yaml:"language_code"`
	SampleRateHz int           `yaml:"sample_rate_hz"`
	Encoding     string        `yaml:"encoding"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ASRConfig lists the closed set of providers and the defaults.
type ASRConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	AsyncProvider   string           `yaml:"async_provider"`
	Providers       []ProviderConfig `yaml:"providers"`
}

// KafkaConfig configures the Kafka notification sink.
type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Principal string   `yaml:"principal"`
}

// SQSConfig configures the SQS notification sink.
type SQSConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

// NATSConfig configures the NATS notification sink.
type NATSConfig struct {
	Servers []string `yaml:"servers"`
	Subject string   `yaml:"subject"`
	Token   string   `yaml:"token"`
}

// NotifyConfig selects the terminal event channel.
type NotifyConfig struct {
	Backend string      `yaml:"backend"` // kafka, sqs, nats, log
	Kafka   KafkaConfig `yaml:"kafka"`
	SQS     SQSConfig   `yaml:"sqs"`
	NATS    NATSConfig  `yaml:"nats"`
}

// PersistenceConfig tunes the upsert retry policy.
type PersistenceConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffStep time.Duration `yaml:"backoff_step"`
}

// BatchConfig tunes batch execution.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency"`
	ScratchDir  string `yaml:"scratch_dir"`
}

// AdvisoryConfig tunes the quota exhaustion heuristic.
type AdvisoryConfig struct {
	Timezone      string `yaml:"timezone"`
	WindowEndHour int    `yaml:"window_end_hour"`
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsAddr    string `yaml:"metrics_addr"`
	TraceExporter  string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceSampleAll bool   `yaml:"trace_sample_all"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Name:        "vibe-transcriber",
			Environment: "production",
			HTTPPort:    "8013",
			GRPCPort:    "50051",
			FeatureType: "vibe",
		},
		Storage: StorageConfig{
			Backend: "s3",
			Bucket:  "watchme-vault",
			Region:  "us-east-1",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "file:./data/transcripts.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			Migrate:      true,
		},
		ASR: ASRConfig{
			DefaultProvider: "mock",
			AsyncProvider:   "mock",
			Providers: []ProviderConfig{
				{Name: "mock", Model: "mock-v1"},
			},
		},
		Notify: NotifyConfig{
			Backend: "log",
			Kafka: KafkaConfig{
				Topic: "feature.completed",
			},
			SQS: SQSConfig{
				Region: "ap-southeast-2",
			},
			NATS: NATSConfig{
				Servers: []string{"nats://localhost:4222"},
				Subject: "feature.completed",
			},
		},
		Persistence: PersistenceConfig{
			MaxAttempts: 3,
			BackoffStep: time.Second,
		},
		Batch: BatchConfig{
			Concurrency: 1,
		},
		Advisory: AdvisoryConfig{
			Timezone:      "Asia/Tokyo",
			WindowEndHour: 9,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			MetricsAddr:   ":9090",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Configuration, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Name = envOrDefault("SERVICE_NAME", cfg.Service.Name)
	cfg.Service.Environment = envOrDefault("ENV", cfg.Service.Environment)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.FeatureType = envOrDefault("FEATURE_TYPE", cfg.Service.FeatureType)

	cfg.Storage.Backend = envOrDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Bucket = envOrDefault("S3_BUCKET_NAME", cfg.Storage.Bucket)
	cfg.Storage.Region = envOrDefault("AWS_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = envOrDefault("S3_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.LocalRoot = envOrDefault("STORAGE_LOCAL_ROOT", cfg.Storage.LocalRoot)

	cfg.Database.Driver = envOrDefault("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envOrDefault("DB_DSN", cfg.Database.DSN)
	cfg.Database.MaxOpenConns = envOrDefaultInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.Migrate = envOrDefaultBool("DB_MIGRATE", cfg.Database.Migrate)

	cfg.ASR.DefaultProvider = envOrDefault("ASR_PROVIDER", cfg.ASR.DefaultProvider)
	cfg.ASR.AsyncProvider = envOrDefault("ASR_ASYNC_PROVIDER", cfg.ASR.AsyncProvider)
	for i := range cfg.ASR.Providers {
		p := &cfg.ASR.Providers[i]
		prefix := "ASR_" + strings.ToUpper(p.Name) + "_"
		p.APIKey = envOrDefault(prefix+"API_KEY", p.APIKey)
		p.Endpoint = envOrDefault(prefix+"ENDPOINT", p.Endpoint)
	}

	cfg.Notify.Backend = envOrDefault("NOTIFY_BACKEND", cfg.Notify.Backend)
	cfg.Notify.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Notify.Kafka.Brokers)
	cfg.Notify.Kafka.Topic = envOrDefault("KAFKA_TOPIC", cfg.Notify.Kafka.Topic)
	cfg.Notify.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", envOrDefault("SERVICE_PRINCIPAL", cfg.Notify.Kafka.Principal))
	cfg.Notify.SQS.QueueURL = envOrDefault("FEATURE_COMPLETED_QUEUE_URL", cfg.Notify.SQS.QueueURL)
	cfg.Notify.SQS.Region = envOrDefault("SQS_REGION", cfg.Notify.SQS.Region)
	cfg.Notify.NATS.Servers = envOrDefaultList("NATS_SERVERS", cfg.Notify.NATS.Servers)
	cfg.Notify.NATS.Subject = envOrDefault("NATS_SUBJECT", cfg.Notify.NATS.Subject)
	cfg.Notify.NATS.Token = envOrDefault("NATS_TOKEN", cfg.Notify.NATS.Token)

	cfg.Persistence.MaxAttempts = envOrDefaultInt("PERSIST_MAX_ATTEMPTS", cfg.Persistence.MaxAttempts)
	cfg.Persistence.BackoffStep = envOrDefaultDuration("PERSIST_BACKOFF_STEP", cfg.Persistence.BackoffStep)

	cfg.Batch.Concurrency = envOrDefaultInt("BATCH_CONCURRENCY", cfg.Batch.Concurrency)
	cfg.Batch.ScratchDir = envOrDefault("SCRATCH_DIR", cfg.Batch.ScratchDir)

	cfg.Advisory.Timezone = envOrDefault("ADVISORY_TIMEZONE", cfg.Advisory.Timezone)
	cfg.Advisory.WindowEndHour = envOrDefaultInt("ADVISORY_WINDOW_END_HOUR", cfg.Advisory.WindowEndHour)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Observability.MetricsAddr)
	cfg.Observability.TraceExporter = envOrDefault("TRACE_EXPORTER", cfg.Observability.TraceExporter)
	cfg.Observability.OTLPEndpoint = envOrDefault("OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)
	cfg.Observability.OTLPInsecure = envOrDefaultBool("OTLP_INSECURE", cfg.Observability.OTLPInsecure)
}

// Validate checks cross-field constraints.
func (c *Configuration) Validate() error {
	if c.Service.HTTPPort == "" {
		return errors.New("service.http_port must not be empty")
	}
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set for the s3 backend")
		}
	case "local":
		if c.Storage.LocalRoot == "" {
			return errors.New("storage.local_root must be set for the local backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of s3|local, got %q", c.Storage.Backend)
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be one of sqlite|mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must not be empty")
	}
	if len(c.ASR.Providers) == 0 {
		return errors.New("asr.providers must not be empty")
	}
	names := make(map[string]bool, len(c.ASR.Providers))
	for _, p := range c.ASR.Providers {
		switch p.Name {
		case "google", "groq", "mock":
		default:
			return fmt.Errorf("asr provider %q is not supported (google|groq|mock)", p.Name)
		}
		if p.Name == "groq" && p.APIKey == "" {
			return errors.New("asr provider groq requires an api_key")
		}
		names[p.Name] = true
	}
	if !names[c.ASR.DefaultProvider] {
		return fmt.Errorf("asr.default_provider %q is not configured", c.ASR.DefaultProvider)
	}
	if !names[c.ASR.AsyncProvider] {
		return fmt.Errorf("asr.async_provider %q is not configured", c.ASR.AsyncProvider)
	}
	switch c.Notify.Backend {
	case "log":
	case "kafka":
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Kafka.Topic == "" {
			return errors.New("notify.kafka requires brokers and topic")
		}
	case "sqs":
		if c.Notify.SQS.QueueURL == "" {
			return errors.New("notify.sqs.queue_url must be set")
		}
	case "nats":
		if len(c.Notify.NATS.Servers) == 0 || c.Notify.NATS.Subject == "" {
			return errors.New("notify.nats requires servers and subject")
		}
	default:
		return fmt.Errorf("notify.backend must be one of log|kafka|sqs|nats, got %q", c.Notify.Backend)
	}
	if c.Persistence.MaxAttempts < 1 {
		return errors.New("persistence.max_attempts must be >= 1")
	}
	if c.Persistence.BackoffStep < 0 {
		return errors.New("persistence.backoff_step must be >= 0")
	}
	if c.Batch.Concurrency < 1 {
		return errors.New("batch.concurrency must be >= 1")
	}
	if c.Advisory.WindowEndHour < 0 || c.Advisory.WindowEndHour > 24 {
		return errors.New("advisory.window_end_hour must be between 0 and 24")
	}
	if _, err := time.LoadLocation(c.Advisory.Timezone); err != nil {
		return fmt.Errorf("advisory.timezone: %w", err)
	}
	switch c.Observability.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if c.Observability.OTLPEndpoint == "" {
			return errors.New("observability.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return fmt.Errorf("observability.trace_exporter must be one of none|stdout|otlp, got %q", c.Observability.TraceExporter)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
