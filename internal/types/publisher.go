package types

// PubSubType defines the type of pubsub implementation
type PubSubType string

const (
	// MemoryPubSub uses in-memory implementation
	MemoryPubSub PubSubType = "memory"

	// KafkaPubSub uses Kafka implementation
	KafkaPubSub PubSubType = "kafka"
)

// Event names published by the timeline core
const (
	EventBundleRepaired        = "bundle.repaired"
	EventBlockingStateAppended = "blocking_state.appended"
	EventTransitionDue         = "subscription.transition_due"
	EventTransitionApplied     = "subscription.transition_applied"
)
