package types

type RunMode string

const (
	// ModeLocal runs the message consumer and the temporal worker in one process
	ModeLocal RunMode = "local"
	// ModeConsumer runs just the transition consumer
	ModeConsumer RunMode = "consumer"
	// ModeTemporalWorker runs just the temporal worker
	ModeTemporalWorker RunMode = "temporal_worker"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
