package temporal

import (
	"context"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/publisher"
	"github.com/flexprice/timeline/internal/temporal/activities"
	"github.com/flexprice/timeline/internal/temporal/workflows"
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

// Worker polls the timeline task queue and runs pending transition workflows
type Worker struct {
	worker    worker.Worker
	taskQueue string
	log       *logger.Logger
}

// NewWorker creates a worker on the configured task queue with the timeline
// workflows and activities registered
func NewWorker(client *TemporalClient, cfg *config.Configuration, pub publisher.EventPublisher, log *logger.Logger) *Worker {
	taskQueue := cfg.Temporal.TaskQueue.String()
	w := worker.New(client.Client, taskQueue, worker.Options{})

	// names match the function and method names used by the workflow
	w.RegisterWorkflow(workflows.PendingTransitionWorkflow)
	w.RegisterActivity(activities.NewTransitionActivities(pub, log))

	log.Infow("registered temporal workflows and activities",
		"task_queue", taskQueue,
		"workflows", []string{workflows.WorkflowPendingTransition},
		"activities", []string{workflows.ActivityPublishTransitionDue},
	)

	return &Worker{
		worker:    w,
		taskQueue: taskQueue,
		log:       log,
	}
}

// RegisterWithLifecycle starts polling with the application and stops with it
func (w *Worker) RegisterWithLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.log.Infow("starting temporal worker", "task_queue", w.taskQueue)
			return w.worker.Start()
		},
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				w.worker.Stop()
				close(done)
			}()

			select {
			case <-done:
				w.log.Infow("temporal worker stopped", "task_queue", w.taskQueue)
			case <-ctx.Done():
				w.log.Errorw("timeout while stopping temporal worker", "task_queue", w.taskQueue)
			}
			return nil
		},
	})
}
