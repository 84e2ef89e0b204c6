package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBigQuery = "bigquery"
)

// Config holds the runtime settings shared by every binary.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	StoreDriver string
	DatabaseURL string
	GCPProject  string
	BQDataset   string

	AIEnabled            bool
	GeminiAPIKey         string
	GeminiModel          string
	AdvisorTimeout       time.Duration
	AdvisorRatePerMinute int

	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackCallbackURL string
	PaystackEmailDomain string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	NotionToken      string
	NotionDatabaseID string

	ExportBucket string
	APIKey       string

	TransferQueueSize int
	TransferWorkers   int
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		GCPProject:  getEnv("GCP_PROJECT", ""),
		BQDataset:   getEnv("BQ_DATASET", "roundup_savings"),

		AIEnabled:            getEnvAsBool("AI_ENABLED", false),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AdvisorTimeout:       getEnvAsDuration("ADVISOR_TIMEOUT", 5*time.Second),
		AdvisorRatePerMinute: getEnvAsInt("ADVISOR_RATE_PER_MINUTE", 60),

		PaystackSecretKey:   getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackBaseURL:     getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackCallbackURL: getEnv("PAYSTACK_CALLBACK_URL", ""),
		PaystackEmailDomain: getEnv("PAYSTACK_EMAIL_DOMAIN", "users.habahaba.app"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "roundup.transactions"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "roundup-notion-sync"),

		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),

		ExportBucket: getEnv("EXPORT_BUCKET", ""),
		APIKey:       getEnv("API_KEY", ""),

		TransferQueueSize: getEnvAsInt("TRANSFER_QUEUE_SIZE", 100),
		TransferWorkers:   getEnvAsInt("TRANSFER_WORKERS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER is postgres"))
		}
	case StoreBigQuery:
		if c.GCPProject == "" {
			errs = append(errs, errors.New("GCP_PROJECT is required when STORE_DRIVER is bigquery"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.AdvisorTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ADVISOR_TIMEOUT must be positive, got %s", c.AdvisorTimeout))
	}
	if c.TransferWorkers < 1 {
		errs = append(errs, fmt.Errorf("TRANSFER_WORKERS must be at least 1, got %d", c.TransferWorkers))
	}
	if c.TransferQueueSize < 1 {
		errs = append(errs, fmt.Errorf("TRANSFER_QUEUE_SIZE must be at least 1, got %d", c.TransferQueueSize))
	}

	return errors.Join(errs...)
}

// AdvisorConfigured reports whether assisted decisions can be delegated.
func (c *Config) AdvisorConfigured() bool {
	return c.AIEnabled && c.GeminiAPIKey != ""
}

// KafkaConfigured reports whether the change feed is enabled.
func (c *Config) KafkaConfigured() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// NotionConfigured reports whether the Notion mirror can run.
func (c *Config) NotionConfigured() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
