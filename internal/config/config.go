package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/timeline/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Kafka      KafkaConfig
	Temporal   TemporalConfig
	Sentry     SentryConfig
	Cache      CacheConfig
	Catalog    CatalogConfig
	Event      EventConfig
	Repair     RepairConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `validate:"required"`
	Port                   int    `validate:"required"`
	User                   string `validate:"required"`
	Password               string
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
	TLS           bool
	UseSASL       bool   `mapstructure:"use_sasl"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUser      string `mapstructure:"sasl_user"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

type TemporalConfig struct {
	Address   string
	Namespace string
	TaskQueue types.TemporalTaskQueue `mapstructure:"task_queue"`
	APIKey    string                  `mapstructure:"api_key"`
	TLS       bool
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type CacheConfig struct {
	Enabled         bool
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// CatalogConfig points at the YAML catalog the plan lookups are served from
type CatalogConfig struct {
	Path string `validate:"required"`
}

// RepairConfig tunes the post commit side effects of a repair
type RepairConfig struct {
	ScheduleMaxRetries  uint64        `mapstructure:"schedule_max_retries"`
	ScheduleInitialWait time.Duration `mapstructure:"schedule_initial_wait"`
	ScheduleMaxElapsed  time.Duration `mapstructure:"schedule_max_elapsed"`
}

func NewConfig() (*Configuration, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/timeline")

	v.SetEnvPrefix("TIMELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Event: EventConfig{
			PubSub:           types.MemoryPubSub,
			TopicNotify:      "timeline_notifications",
			TopicBlocking:    "timeline_blocking_states",
			TopicTransitions: "timeline_transitions_due",
			TopicDeadLetter:  "timeline_transitions_dlq",
			MaxRetries:       3,
			InitialInterval:  time.Second,
			MaxInterval:      30 * time.Second,
			Multiplier:       2,
			MaxElapsedTime:   2 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:         true,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Repair: RepairConfig{
			ScheduleMaxRetries:  3,
			ScheduleInitialWait: 100 * time.Millisecond,
			ScheduleMaxElapsed:  5 * time.Second,
		},
		Temporal: TemporalConfig{
			TaskQueue: types.TemporalTaskQueueTimeline,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
