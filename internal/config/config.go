package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	App     AppConfig
	Cache   CacheConfig
	QueueDB QueueDBConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Audit   AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"distrihub-sync-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// QueueDBConfig holds the durable operation queue storage settings.
type QueueDBConfig struct {
	Type string `envconfig:"QUEUE_DB_TYPE" default:"sqlite"` // sqlite, postgres, or memory
	Path string `envconfig:"QUEUE_DB_PATH" default:"./data/queue.db"`
	// PostgreSQL settings
	Host     string `envconfig:"QUEUE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"QUEUE_DB_PORT" default:"5432"`
	Name     string `envconfig:"QUEUE_DB_NAME" default:"distrihub"`
	User     string `envconfig:"QUEUE_DB_USER" default:"postgres"`
	Password string `envconfig:"QUEUE_DB_PASS" default:""`
	SSLMode  string `envconfig:"QUEUE_DB_SSLMODE" default:"disable"`
}

// RemoteConfig holds settings for the hosted backend the queue syncs against.
type RemoteConfig struct {
	BaseURL    string        `envconfig:"REMOTE_BASE_URL" default:"http://localhost:9090"`
	APIKey     string        `envconfig:"REMOTE_API_KEY" default:""`
	Timeout    time.Duration `envconfig:"REMOTE_TIMEOUT" default:"15s"`
	MaxRetries int           `envconfig:"REMOTE_MAX_RETRIES" default:"2"`
}

// SyncConfig holds synchronization engine settings.
type SyncConfig struct {
	BatchSize       int           `envconfig:"SYNC_BATCH_SIZE" default:"5"`
	OperationDelay  time.Duration `envconfig:"SYNC_OPERATION_DELAY" default:"500ms"`
	StabilizeDelay  time.Duration `envconfig:"SYNC_STABILIZE_DELAY" default:"3s"`
	ProbeInterval   time.Duration `envconfig:"SYNC_PROBE_INTERVAL" default:"30s"`
	CleanupInterval time.Duration `envconfig:"SYNC_CLEANUP_INTERVAL" default:"1h"`
	RetentionDays   int           `envconfig:"SYNC_RETENTION_DAYS" default:"7"`
}

// AuditConfig holds the optional MongoDB sync audit trail settings.
// Empty URI disables the audit trail.
type AuditConfig struct {
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"distrihub"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"sync_attempts"`
	RetentionDays   int    `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
}

// Retention returns how long audit entries are kept. Zero or negative
// days disables expiry.
func (a *AuditConfig) Retention() time.Duration {
	if a.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// Retention returns how long terminal operations are kept before cleanup.
func (s *SyncConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// PostgresDSN returns the PostgreSQL connection string.
func (q *QueueDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		q.User, q.Password, q.Host, q.Port, q.Name, q.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
