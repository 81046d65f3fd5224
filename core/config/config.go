package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Queue      QueueConfig
	WorkerPool WorkerPoolConfig
	Publisher  PublisherConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// QueueConfig carries the queue defaults applied when an enqueue request
// leaves a field unset, plus the dispatcher tuning knobs.
type QueueConfig struct {
	DefaultPriority   int
	DefaultMaxRetries int
	DefaultRetryDelay time.Duration
	DequeueBatchSize  int
	PollInterval      time.Duration
	MaxSleep          time.Duration
	// Stuck-row recovery. Off by default: rows left in PROCESSING by a
	// crashed worker stay there unless the sweep is enabled.
	StuckSweepEnabled bool
	ProcessingTimeout time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// PublisherConfig configures the outbound webhook sink. When WebhookURL is
// empty, platforms without a dedicated publisher fall back to the log sink.
type PublisherConfig struct {
	WebhookURL         string
	WebhookSecret      string
	WebhookInsecureTLS bool
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration through viper (environment variables via
// AutomaticEnv, plus anything bound by the CLI layer) with defaults.
func LoadConfig() (*Config, error) {
	viper.AutomaticEnv()

	baseDir := getEnv("APP_BASE_DIR", "storages")

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.2.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              getEnvBool("APP_DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := getEnv("APP_TRUSTED_PROXIES", ""); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "publishing.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "fsp:"),
	}

	queueCfg := QueueConfig{
		DefaultPriority:   getEnvInt("QUEUE_DEFAULT_PRIORITY", 5),
		DefaultMaxRetries: getEnvInt("QUEUE_DEFAULT_MAX_RETRIES", 3),
		DefaultRetryDelay: getEnvDuration("QUEUE_DEFAULT_RETRY_DELAY", 5*time.Minute),
		DequeueBatchSize:  getEnvInt("QUEUE_DEQUEUE_BATCH_SIZE", 25),
		PollInterval:      getEnvDuration("QUEUE_POLL_INTERVAL", 5*time.Minute),
		MaxSleep:          getEnvDuration("QUEUE_MAX_SLEEP", time.Hour),
		StuckSweepEnabled: getEnvBool("QUEUE_STUCK_SWEEP_ENABLED", false),
		ProcessingTimeout: getEnvDuration("QUEUE_PROCESSING_TIMEOUT", 15*time.Minute),
	}

	cfg := &Config{
		App:        appCfg,
		Paths:      pathsCfg,
		Database:   dbCfg,
		Queue:      queueCfg,
		WorkerPool: WorkerPoolConfig{Size: getEnvInt("PUBLISH_WORKER_POOL_SIZE", 10), QueueSize: getEnvInt("PUBLISH_WORKER_QUEUE_SIZE", 500)},
		Publisher: PublisherConfig{
			WebhookURL:         getEnv("PUBLISH_WEBHOOK_URL", ""),
			WebhookSecret:      getEnv("PUBLISH_WEBHOOK_SECRET", ""),
			WebhookInsecureTLS: getEnvBool("PUBLISH_WEBHOOK_INSECURE_TLS", false),
		},
	}

	Global = cfg
	return cfg, nil
}
