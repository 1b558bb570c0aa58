package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Client starts and inspects atomic-operation workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartRegistration starts a durable registration workflow and returns its
// workflow id.
func (c *Client) StartRegistration(ctx context.Context, input AtomicRegistrationInput) (string, error) {
	id := "atomic-register-" + input.UserID

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, AtomicRegistrationWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("failed to start registration workflow: %w", err)
	}

	c.logger.Debug("registration workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"user_id", input.UserID,
	)
	return run.GetID(), nil
}

// StartChannelCreation starts a durable channel-creation workflow and
// returns its workflow id.
func (c *Client) StartChannelCreation(ctx context.Context, input AtomicChannelInput) (string, error) {
	id := "atomic-channel-" + input.Owner + "-" + input.ChannelID

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, AtomicChannelWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("failed to start channel workflow: %w", err)
	}

	c.logger.Debug("channel workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"owner", input.Owner,
	)
	return run.GetID(), nil
}

// AwaitResult blocks until the workflow completes and returns its terminal
// result.
func (c *Client) AwaitResult(ctx context.Context, workflowID string) (*AtomicOperationResult, error) {
	run := c.client.GetWorkflow(ctx, workflowID, "")

	var result AtomicOperationResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %s failed: %w", workflowID, err)
	}
	return &result, nil
}

// Close closes the underlying Temporal connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
