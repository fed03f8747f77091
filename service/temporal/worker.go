package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/zcashrpc/service/metrics"
	natspkg "github.com/brojonat/zcashrpc/service/nats"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Client supplies the Temporal connection and task queue.
	Client *Client

	// Dependencies
	Store     StoreInterface
	Source    NoteSource
	Lister    AddressLister
	Publisher natspkg.Publisher
	Metrics   *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the client's task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("temporal client is required")
	}
	if config.Store == nil || config.Source == nil || config.Publisher == nil {
		return nil, fmt.Errorf("store, note source and publisher are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")
	logger.Info("creating temporal worker", "task_queue", config.Client.TaskQueue())

	w := worker.New(config.Client.SDKClient(), config.Client.TaskQueue(), worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(PollShieldedWorkflow)
	logger.Info("registered workflow", "name", "PollShieldedWorkflow")

	activities := NewActivities(
		config.Store,
		config.Source,
		config.Lister,
		config.Publisher,
		config.Metrics,
		logger,
	)

	w.RegisterActivity(activities.ResolveAddresses)
	w.RegisterActivity(activities.FetchNotes)
	w.RegisterActivity(activities.FilterPublishedNotes)
	w.RegisterActivity(activities.PublishNotes)

	logger.Info("registered activities",
		"activities", []string{"ResolveAddresses", "FetchNotes", "FilterPublishedNotes", "PublishNotes"},
	)

	return &Worker{
		worker: w,
		logger: logger,
	}, nil
}

// Start begins processing workflows and activities without blocking.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.logger.Info("temporal worker stopped")
}
