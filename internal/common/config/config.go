// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	API           APIConfig          `mapstructure:"api"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Dispatcher    DispatcherConfig   `mapstructure:"dispatcher"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Providers     ProvidersConfig    `mapstructure:"providers"`
	Events        EventsConfig       `mapstructure:"events"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type APIConfig struct {
	ListenAddress   string `mapstructure:"listen_address"`
	MetricsAddress  string `mapstructure:"metrics_address"`
	SuperadminToken string `mapstructure:"superadmin_token"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
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

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// DispatcherConfig holds the queue consumer settings.
type DispatcherConfig struct {
	WorkerID       string `mapstructure:"worker_id"`
	PollInterval   int    `mapstructure:"poll_interval"`   // milliseconds
	BatchSize      int    `mapstructure:"batch_size"`
	MaxInFlight    int    `mapstructure:"max_in_flight"`
	SendTimeout    int    `mapstructure:"send_timeout"`    // milliseconds, per provider call
	ClaimTTL       int    `mapstructure:"claim_ttl"`       // milliseconds before a sending job is reapable
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffSteps   []int  `mapstructure:"backoff_steps"`   // milliseconds per attempt, last value is the cap
	BackoffJitter  float64 `mapstructure:"backoff_jitter"` // fraction, e.g. 0.2
}

// NotificationConfig holds pipeline-level settings.
type NotificationConfig struct {
	CriticalTypes   []string `mapstructure:"critical_types"`
	DefaultLanguage string   `mapstructure:"default_language"`
	SMSMaxRunes     int      `mapstructure:"sms_max_runes"`
	DedupeTTL       int      `mapstructure:"dedupe_ttl"` // milliseconds for analytics idempotency keys

	// TypeChannels maps a type_code to its default channel when the caller
	// does not pass an override. Unlisted types default to email.
	TypeChannels map[string]string `mapstructure:"type_channels"`
}

// ProvidersConfig holds platform-level provider adapter settings.
type ProvidersConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			SMSSenderID string `mapstructure:"sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	Webhook struct {
		Timeout     int    `mapstructure:"timeout"` // milliseconds
		SigningKey  string `mapstructure:"signing_key"`
		MaxBodySize int    `mapstructure:"max_body_size"`
	} `mapstructure:"webhook"`
}

// EventsConfig holds the RabbitMQ trigger consumer settings.
type EventsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	Queue      string `mapstructure:"queue"`
	RoutingKey string `mapstructure:"routing_key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
