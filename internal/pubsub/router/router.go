package router

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/pubsub"
	"github.com/flexprice/timeline/internal/sentry"
)

// Router manages all message routing
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
	config *config.EventConfig
}

// NewRouter creates a message router whose handlers retry transient failures
// and park the rest on the dead letter topic.
func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service, dlq pubsub.Publisher) (*Router, error) {
	router, err := message.NewRouter(
		message.RouterConfig{},
		logger.GetWatermillLogger(),
	)
	if err != nil {
		return nil, err
	}

	poisonQueue, err := middleware.PoisonQueue(
		pubsub.WatermillPublisher(dlq),
		cfg.Event.TopicDeadLetter,
	)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		NewRetry(&cfg.Event, logger).Middleware,
	)

	return &Router{
		router: router,
		logger: logger,
		sentry: sentry,
		config: &cfg.Event,
	}, nil
}

// AddNoPublishHandler adds a handler that doesn't publish messages
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber pubsub.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			span, ctx := r.sentry.StartConsumerSpan(msg.Context(), topicName)
			msg.SetContext(ctx)

			err := handlerFunc(msg)
			sentry.FinishSpan(span, err)
			if err != nil {
				r.sentry.CaptureException(err)
				r.logger.Errorw("handler failed",
					"handler", handlerName,
					"error", err,
					"correlation_id", middleware.MessageCorrelationID(msg),
					"message_uuid", msg.UUID,
				)
			}
			return err
		},
	)

	for _, middleware := range middlewares {
		handler.AddMiddleware(middleware)
	}
}

// Run starts the router and blocks until ctx is cancelled or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting router")
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully shuts down the router
func (r *Router) Close() error {
	r.logger.Info("closing router")
	return r.router.Close()
}
