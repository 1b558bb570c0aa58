package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// Publisher defines the interface for publishing receipt events to NATS.
type Publisher interface {
	// PublishReceipt publishes a finalized receipt event to JetStream.
	// The event is published to the subject "receipts.{chain}.{tx_id}".
	PublishReceipt(ctx context.Context, event *ReceiptEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes receipt events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for receipts.
	StreamName = "RECEIPTS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "receipts.>"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("dualledger-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Finalized transaction receipts from the chat and currency chains",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishReceipt publishes a finalized receipt event.
func (p *JetStreamPublisher) PublishReceipt(ctx context.Context, event *ReceiptEvent) error {
	subject := fmt.Sprintf("receipts.%s.%s", event.Chain, event.TxID)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish receipt: %w", err)
	}

	p.logger.Debug("published receipt event",
		"subject", subject,
		"tx_id", event.TxID,
		"status", event.Status,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// ReceiptObserver adapts a Publisher into a tracker observer. Publish
// failures are logged and dropped rather than surfaced: event delivery
// must never change the outcome of confirmation tracking.
type ReceiptObserver struct {
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewReceiptObserver creates an observer that publishes every finalized
// receipt. metrics may be nil.
func NewReceiptObserver(publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *ReceiptObserver {
	return &ReceiptObserver{publisher: publisher, metrics: m, logger: logger}
}

// ReceiptFinalized implements ledger.ReceiptObserver.
func (o *ReceiptObserver) ReceiptFinalized(ctx context.Context, chain string, r *ledger.Receipt) {
	event := FromReceipt(chain, r)
	if err := o.publisher.PublishReceipt(ctx, event); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish receipt event",
			"chain", chain,
			"tx_id", r.TxID,
			"error", err,
		)
		return
	}
	if o.metrics != nil {
		o.metrics.RecordNATSEventPublished(chain, event.Status)
	}
}
