package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/zcashrpc/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing shielded transaction events to NATS.
type Publisher interface {
	// PublishShieldedTransaction publishes a single event to JetStream.
	// The event is published to the subject "ztxns.{address}".
	PublishShieldedTransaction(ctx context.Context, event *ShieldedTransactionEvent) error

	// PublishShieldedTransactionBatch publishes multiple events in order.
	// It stops at the first failure so callers know which events were not delivered.
	PublishShieldedTransactionBatch(ctx context.Context, events []*ShieldedTransactionEvent) (int, error)

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes shielded transaction events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for shielded transactions.
	StreamName = "ZTRANSACTIONS"

	// SubjectPrefix prefixes the receiving address in every event subject.
	SubjectPrefix = "ztxns."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + "*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
// If m is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("zcashrpc-watcher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	// Ensure stream exists
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
		Description: "Shielded transactions received by watched zcash addresses",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		// Notes republished within this window are dropped by message id.
		Duplicates: 24 * time.Hour,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishShieldedTransaction publishes a single event.
func (p *JetStreamPublisher) PublishShieldedTransaction(ctx context.Context, event *ShieldedTransactionEvent) error {
	subject := Subject(event.Address)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal shielded transaction event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.MessageID()))
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish shielded transaction: %w", err)
	}

	p.logger.Debug("published shielded transaction event",
		"subject", subject,
		"txid", event.TxID,
		"note_id", event.NoteID,
		"address", event.Address,
	)

	return nil
}

// PublishShieldedTransactionBatch publishes events in order and returns how many were published.
func (p *JetStreamPublisher) PublishShieldedTransactionBatch(ctx context.Context, events []*ShieldedTransactionEvent) (int, error) {
	for i, event := range events {
		if err := p.PublishShieldedTransaction(ctx, event); err != nil {
			p.logger.Error("failed to publish shielded transaction in batch",
				"txid", event.TxID,
				"address", event.Address,
				"published", i,
				"error", err,
			)
			return i, err
		}
	}

	p.logger.Debug("published shielded transaction batch",
		"count", len(events),
	)

	return len(events), nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
