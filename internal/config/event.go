package config

import (
	"time"

	"github.com/flexprice/timeline/internal/types"
)

// EventConfig holds configuration for domain notifications and the
// transition delivery path
type EventConfig struct {
	PubSub           types.PubSubType `mapstructure:"pubsub" validate:"omitempty,oneof=memory kafka"`
	TopicNotify      string           `mapstructure:"topic_notify"`
	TopicBlocking    string           `mapstructure:"topic_blocking"`
	TopicTransitions string           `mapstructure:"topic_transitions"`
	TopicDeadLetter  string           `mapstructure:"topic_dead_letter"`

	// retry policy applied by the router to transition deliveries
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}
