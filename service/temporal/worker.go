package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/dchatlabs/dualledger/service/metrics"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Chat            ChatChainInterface
	Currency        CurrencyChainInterface
	ChatTracker     TrackerInterface
	CurrencyTracker TrackerInterface
	Metrics         *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger          *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(AtomicRegistrationWorkflow)
	w.RegisterWorkflow(AtomicChannelWorkflow)
	logger.Info("registered workflows",
		"workflows", []string{"AtomicRegistrationWorkflow", "AtomicChannelWorkflow"},
	)

	activities := NewActivities(
		config.Chat,
		config.Currency,
		config.ChatTracker,
		config.CurrencyTracker,
		config.Metrics,
		logger,
	)

	// Activities are registered by name, matching the ExecuteActivity
	// calls in the workflows.
	w.RegisterActivity(activities.CreateWallet)
	w.RegisterActivity(activities.SubmitRegisterUser)
	w.RegisterActivity(activities.SubmitStake)
	w.RegisterActivity(activities.SubmitCreateChannel)
	w.RegisterActivity(activities.SubmitFeeTransfer)
	w.RegisterActivity(activities.SubmitRevokeUser)
	w.RegisterActivity(activities.SubmitRefund)
	w.RegisterActivity(activities.AwaitConfirmation)

	logger.Info("registered activities",
		"activities", []string{
			"CreateWallet", "SubmitRegisterUser", "SubmitStake",
			"SubmitCreateChannel", "SubmitFeeTransfer",
			"SubmitRevokeUser", "SubmitRefund", "AwaitConfirmation",
		},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Start begins processing workflows and activities.
// This method blocks until Stop is called or an error occurs.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
