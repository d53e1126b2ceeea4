package publisher

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/timeline/internal/config"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/pubsub"
	"github.com/flexprice/timeline/internal/types"
)

// EventPublisher delivers timeline notifications to their topics
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

type eventPublisher struct {
	pubsub pubsub.Publisher
	config *config.EventConfig
	logger *logger.Logger
}

// NewEventPublisher creates a publisher routing events by name to the configured topics
func NewEventPublisher(ps pubsub.PubSub, cfg *config.Configuration, logger *logger.Logger) EventPublisher {
	return &eventPublisher{
		pubsub: ps,
		config: &cfg.Event,
		logger: logger,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *Event) error {
	if event.RequestID == "" {
		event.RequestID = types.GetRequestID(ctx)
	}

	topic := TopicFor(p.config, event.EventName)
	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to marshal event").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_name", event.EventName)
	msg.Metadata.Set("bundle_id", event.BundleID)
	msg.Metadata.Set("request_id", event.RequestID)

	p.logger.Debugw("publishing event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"bundle_id", event.BundleID,
		"topic", topic,
	)

	if err := p.pubsub.Publish(ctx, topic, msg); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to publish %s", event.EventName).
			WithReportableDetails(map[string]interface{}{
				"event_id": event.ID,
				"topic":    topic,
			}).
			Mark(ierr.ErrSystem)
	}
	return nil
}

// TopicFor maps an event name to its destination topic
func TopicFor(cfg *config.EventConfig, eventName string) string {
	switch eventName {
	case types.EventTransitionDue:
		return cfg.TopicTransitions
	case types.EventBlockingStateAppended:
		return cfg.TopicBlocking
	default:
		return cfg.TopicNotify
	}
}
