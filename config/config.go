package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"sorrel-api"`
	Environment                   string `env:"ENVIRONMENT" env-default:"development"`
	Version                       string `env:"VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3004"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"sorrel"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Redis distributed locking (optional; single-instance deployments run
	// fine on the in-process locks alone)
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka event emission (optional)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic        string   `env:"KAFKA_TOPIC" env-default:"compliance-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Pipeline tuning
	// Maximum duration of one stage attempt
	PipelineStageTimeout time.Duration `env:"PIPELINE_STAGE_TIMEOUT" env-default:"60s"`
	// Maximum attempts for transient stage failures
	PipelineMaxAttempts int `env:"PIPELINE_MAX_ATTEMPTS" env-default:"3"`
	// Initial backoff between attempts, doubled each retry
	PipelineRetryBackoff time.Duration `env:"PIPELINE_RETRY_BACKOFF" env-default:"250ms"`
	// Parallel documents during batch ingestion
	PipelineConcurrency int `env:"PIPELINE_CONCURRENCY" env-default:"4"`
	// TTL of the per-document distributed lock
	PipelineLockTTL time.Duration `env:"PIPELINE_LOCK_TTL" env-default:"5m"`

	// Directory uploaded documents are stored in
	UploadDir string `env:"UPLOAD_DIR" env-default:"data/uploads"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads .env when present, then binds environment variables over the
// defaults declared on the struct tags.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment config: %w", err)
	}
	return &cfg, nil
}

// DatabaseConnectionString builds the postgres DSN from the parts.
func (c *Config) DatabaseConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode,
	)
}
