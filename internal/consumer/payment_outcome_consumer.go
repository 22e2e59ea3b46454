package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/service"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// PaymentOutcomeEvent is the message published for every gateway outcome.
// Internal services emit these alongside the HTTP webhook, so the reconciler
// sees each settlement at least once even when the webhook is lost.
type PaymentOutcomeEvent struct {
	SessionID    string    `json:"session_id"`
	Outcome      string    `json:"outcome"`
	GatewayTxnID string    `json:"gateway_txn_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentOutcomeConsumerConfig holds configuration for PaymentOutcomeConsumer
type PaymentOutcomeConsumerConfig struct {
	Brokers          []string
	GroupID          string
	ClientID         string
	Topic            string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
}

// PaymentOutcomeConsumer consumes payment outcome events and feeds them to
// the reconciler. Records process on their own goroutines and offsets commit
// each poll cycle; the reconciler's idempotency absorbs redelivery.
type PaymentOutcomeConsumer struct {
	config     *PaymentOutcomeConsumerConfig
	client     *kgo.Client
	reconciler service.ReconcilerService
	log        *logger.Logger
	wg         sync.WaitGroup
	stopCh     chan struct{}
}

// NewPaymentOutcomeConsumer creates a new PaymentOutcomeConsumer
func NewPaymentOutcomeConsumer(ctx context.Context, cfg *PaymentOutcomeConsumerConfig, reconciler service.ReconcilerService) (*PaymentOutcomeConsumer, error) {
	if cfg.Topic == "" {
		cfg.Topic = "payment.outcome"
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.RebalanceTimeout == 0 {
		cfg.RebalanceTimeout = 60 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ClientID(cfg.ClientID),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.RebalanceTimeout(cfg.RebalanceTimeout),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}

	return &PaymentOutcomeConsumer{
		config:     cfg,
		client:     client,
		reconciler: reconciler,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins consuming payment outcome events. Blocks until the context is
// cancelled or Stop is called.
func (c *PaymentOutcomeConsumer) Start(ctx context.Context) error {
	c.log.Info("PaymentOutcomeConsumer started",
		zap.String("topic", c.config.Topic),
		zap.String("group_id", c.config.GroupID))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.log.Error("Fetch error",
					zap.String("topic", err.Topic),
					zap.Int32("partition", err.Partition),
					zap.Error(err.Err))
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			c.handleRecord(ctx, record)
		})

		// Commit after processing
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.log.Error("Failed to commit offsets", zap.Error(err))
		}
	}
}

// handleRecord processes one record on its own goroutine so a slow
// reconciliation never stalls the poll loop. Stop waits for these.
func (c *PaymentOutcomeConsumer) handleRecord(ctx context.Context, record *kgo.Record) {
	c.wg.Add(1)
	go func(r *kgo.Record) {
		defer c.wg.Done()
		if err := c.processRecord(ctx, r); err != nil {
			c.log.Error("Failed to process outcome record", zap.Error(err))
		}
	}(record)
}

// Stop stops the consumer
func (c *PaymentOutcomeConsumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.client.Close()
}

// processRecord applies a single payment outcome event
func (c *PaymentOutcomeConsumer) processRecord(ctx context.Context, record *kgo.Record) error {
	var event PaymentOutcomeEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		// A malformed message will never parse on redelivery either.
		// Log and let the offset commit past it.
		c.log.Warn("Dropping malformed outcome event",
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		return nil
	}

	notification := &domain.PaymentNotification{
		SessionID:    event.SessionID,
		Outcome:      domain.PaymentOutcome(event.Outcome),
		GatewayTxnID: event.GatewayTxnID,
		ReceivedAt:   time.Now().UTC(),
	}

	err := c.reconciler.HandleNotification(ctx, notification)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			// Already logged by the reconciler. Not retryable.
			return nil
		}
		return fmt.Errorf("failed to reconcile outcome for session %s: %w", event.SessionID, err)
	}

	return nil
}
