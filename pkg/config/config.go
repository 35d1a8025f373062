package config

import (
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-intake.
// Configuration comes from config.yaml with environment variable overrides.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3450"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Vision    VisionConfig    `yaml:"vision"`
	Session   SessionConfig   `yaml:"session"`
	Schema    SchemaConfig    `yaml:"schema"`
	Sink      SinkConfig      `yaml:"sink"`
	Learning  LearningConfig  `yaml:"learning"`
}

// DatabaseConfig holds PostgreSQL settings for the service's own tables.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_intake"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// ReasoningConfig selects the text model used for mapping rounds.
type ReasoningConfig struct {
	Provider          string        `yaml:"provider" env:"REASONING_PROVIDER" env-default:"openai"`
	Endpoint          string        `yaml:"endpoint" env:"REASONING_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model             string        `yaml:"model" env:"REASONING_MODEL" env-default:"gpt-4o-mini"`
	APIKey            string        `yaml:"-" env:"REASONING_API_KEY"` // Secret - not in YAML
	Timeout           time.Duration `yaml:"timeout" env:"REASONING_TIMEOUT" env-default:"90s"`
	MaxConcurrent     int           `yaml:"max_concurrent" env:"REASONING_MAX_CONCURRENT" env-default:"4"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"REASONING_REQUESTS_PER_MINUTE" env-default:"60"`
}

// VisionConfig selects the model that transcribes PDFs and images.
// An empty model disables the document adapter.
type VisionConfig struct {
	Provider string `yaml:"provider" env:"VISION_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"VISION_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"VISION_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"VISION_API_KEY"` // Secret - not in YAML
}

// Enabled returns true if a vision model is configured.
func (c *VisionConfig) Enabled() bool {
	return c.Model != ""
}

// SessionConfig bounds the reconciliation lifecycle.
type SessionConfig struct {
	MaxRounds         int `yaml:"max_rounds" env:"SESSION_MAX_ROUNDS" env-default:"5"`
	MaxCommitAttempts int `yaml:"max_commit_attempts" env:"SESSION_MAX_COMMIT_ATTEMPTS" env-default:"3"`
	RetentionDays     int `yaml:"retention_days" env:"SESSION_RETENTION_DAYS" env-default:"30"`
	LearningWorkers   int `yaml:"learning_workers" env:"SESSION_LEARNING_WORKERS" env-default:"2"`
}

// SchemaConfig locates the destination schema. An empty file uses the
// built-in inventory schema.
type SchemaConfig struct {
	File  string `yaml:"schema_file" env:"SCHEMA_FILE" env-default:""`
	Watch bool   `yaml:"watch" env:"SCHEMA_WATCH" env-default:"true"`
}

// Sink types.
const (
	SinkPostgres = "postgres"
	SinkMSSQL    = "mssql"
)

// SinkConfig selects where committed inventory is written.
type SinkConfig struct {
	Type  string          `yaml:"type" env:"SINK_TYPE" env-default:"postgres"`
	MSSQL MSSQLSinkConfig `yaml:"mssql"`
}

// MSSQLSinkConfig holds SQL Server connection fields for the mssql sink.
type MSSQLSinkConfig struct {
	Host                   string `yaml:"host" env:"MSSQL_HOST" env-default:"localhost"`
	Port                   int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	Database               string `yaml:"database" env:"MSSQL_DATABASE" env-default:""`
	AuthMethod             string `yaml:"auth_method" env:"MSSQL_AUTH_METHOD" env-default:"sql"`
	Username               string `yaml:"username" env:"MSSQL_USERNAME" env-default:""`
	Password               string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	TenantID               string `yaml:"tenant_id" env:"MSSQL_TENANT_ID" env-default:""`
	ClientID               string `yaml:"client_id" env:"MSSQL_CLIENT_ID" env-default:""`
	ClientSecret           string `yaml:"-" env:"MSSQL_CLIENT_SECRET"` // Secret - not in YAML
	Encrypt                bool   `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"MSSQL_TRUST_SERVER_CERTIFICATE" env-default:"false"`
}

// Learned-pattern stores.
const (
	LearningStorePostgres = "postgres"
	LearningStoreSQLite   = "sqlite"
)

// LearningConfig selects the learned-pattern store.
type LearningConfig struct {
	Store      string `yaml:"store" env:"LEARNING_STORE" env-default:"postgres"`
	SQLitePath string `yaml:"sqlite_path" env:"LEARNING_SQLITE_PATH" env-default:"learned_patterns.db"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from path with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Sink.Type {
	case SinkPostgres:
	case SinkMSSQL:
		if c.Sink.MSSQL.Database == "" {
			return fmt.Errorf("sink.mssql.database is required for the mssql sink")
		}
	default:
		return fmt.Errorf("unsupported sink type %q", c.Sink.Type)
	}

	switch c.Learning.Store {
	case LearningStorePostgres:
	case LearningStoreSQLite:
		if c.Learning.SQLitePath == "" {
			return fmt.Errorf("learning.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unsupported learning store %q", c.Learning.Store)
	}

	if c.Session.MaxRounds < 1 {
		return fmt.Errorf("session.max_rounds must be at least 1")
	}
	if c.Session.MaxCommitAttempts < 1 {
		return fmt.Errorf("session.max_commit_attempts must be at least 1")
	}
	if c.Session.RetentionDays < 1 {
		return fmt.Errorf("session.retention_days must be at least 1")
	}
	if c.Reasoning.Timeout <= 0 {
		return fmt.Errorf("reasoning.timeout must be positive")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", resolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ResolvedHost returns the SQL Server host as reachable from this process.
func (c *MSSQLSinkConfig) ResolvedHost() string {
	return resolveHostForDocker(c.Host)
}

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// isRunningInDocker is cached after the first call.
func isRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// resolveHostForDocker maps loopback hosts to host.docker.internal inside a
// container so a local database stays reachable.
func resolveHostForDocker(host string) string {
	if !isRunningInDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
