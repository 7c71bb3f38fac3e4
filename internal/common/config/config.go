// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	HTTP           HTTPConfig              `mapstructure:"http"`
	Camunda        CamundaConfig           `mapstructure:"camunda"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
	Analysis       AnalysisConfig          `mapstructure:"analysis"`
	Reconciliation ReconciliationConfig    `mapstructure:"reconciliation"`
	Registry       RegistryConfig          `mapstructure:"registry"`
	Logging        LoggingConfig           `mapstructure:"logging"`
	Notifications  NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	WebhookRPS      int    `mapstructure:"webhook_rps"`
	WebhookBurst    int    `mapstructure:"webhook_burst"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig backs the report cache and the plan cache.
type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  int    `mapstructure:"dial_timeout"` // milliseconds
	IOTimeout    int    `mapstructure:"io_timeout"`   // milliseconds
}

// WorkerConfig holds the core settings applicable to every Zeebe worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// AnalysisConfig points at the external analysis / valuation backend.
type AnalysisConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	Timeout           int    `mapstructure:"timeout"` // milliseconds
	ReportConcurrency int    `mapstructure:"report_concurrency"`
}

// ReconciliationConfig holds business policy values for status reconciliation.
type ReconciliationConfig struct {
	StaleAfterHours          int   `mapstructure:"stale_after_hours"`
	SweepInterval            int   `mapstructure:"sweep_interval"` // milliseconds
	FailUnconfirmedDocuments *bool `mapstructure:"fail_unconfirmed_documents"`
}

// StaleAfter returns the staleness threshold as a duration.
func (r ReconciliationConfig) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterHours) * time.Hour
}

// FailUnconfirmed reports whether documents missing from a webhook are marked Failed.
func (r ReconciliationConfig) FailUnconfirmed() bool {
	return r.FailUnconfirmedDocuments == nil || *r.FailUnconfirmedDocuments
}

// RegistryConfig locates the activity registry holding payload schemas.
type RegistryConfig struct {
	Path string `mapstructure:"path"` // empty uses the embedded registry
}

// NotificationConfig holds settings for compliance result notifications.
type NotificationConfig struct {
	Region string `mapstructure:"region"`
	Email  struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
