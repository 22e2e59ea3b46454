package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
)

// MockReconcilerService is a mock implementation of ReconcilerService
type MockReconcilerService struct {
	mock.Mock
}

func (m *MockReconcilerService) HandleNotification(ctx context.Context, n *domain.PaymentNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockReconcilerService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func newTestConsumer(reconciler *MockReconcilerService) *PaymentOutcomeConsumer {
	return &PaymentOutcomeConsumer{
		config:     &PaymentOutcomeConsumerConfig{Topic: "payment.outcome"},
		reconciler: reconciler,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}
}

func outcomeRecord(t *testing.T, event PaymentOutcomeEvent) *kgo.Record {
	t.Helper()
	value, err := json.Marshal(event)
	assert.NoError(t, err)
	return &kgo.Record{
		Topic: "payment.outcome",
		Value: value,
	}
}

func TestPaymentOutcomeConsumer_ProcessRecord(t *testing.T) {
	mockReconciler := new(MockReconcilerService)
	c := newTestConsumer(mockReconciler)

	mockReconciler.On("HandleNotification", mock.Anything, mock.MatchedBy(func(n *domain.PaymentNotification) bool {
		return n.SessionID == "session-1" &&
			n.Outcome == domain.PaymentOutcomeSuccess &&
			n.GatewayTxnID == "txn-1"
	})).Return(nil)

	record := outcomeRecord(t, PaymentOutcomeEvent{
		SessionID:    "session-1",
		Outcome:      "success",
		GatewayTxnID: "txn-1",
		Timestamp:    time.Now().UTC(),
	})

	err := c.processRecord(context.Background(), record)
	assert.NoError(t, err)
	mockReconciler.AssertExpectations(t)
}

func TestPaymentOutcomeConsumer_ProcessRecord_MalformedDropped(t *testing.T) {
	mockReconciler := new(MockReconcilerService)
	c := newTestConsumer(mockReconciler)

	record := &kgo.Record{
		Topic: "payment.outcome",
		Value: []byte("not json"),
	}

	// Malformed messages must not block the partition
	err := c.processRecord(context.Background(), record)
	assert.NoError(t, err)
	mockReconciler.AssertNotCalled(t, "HandleNotification")
}

func TestPaymentOutcomeConsumer_ProcessRecord_UnknownSessionBenign(t *testing.T) {
	mockReconciler := new(MockReconcilerService)
	c := newTestConsumer(mockReconciler)

	mockReconciler.On("HandleNotification", mock.Anything, mock.Anything).Return(domain.ErrUnknownSession)

	record := outcomeRecord(t, PaymentOutcomeEvent{
		SessionID: "session-404",
		Outcome:   "success",
	})

	err := c.processRecord(context.Background(), record)
	assert.NoError(t, err)
}

func TestPaymentOutcomeConsumer_StopWaitsForInFlightRecord(t *testing.T) {
	mockReconciler := new(MockReconcilerService)
	c := newTestConsumer(mockReconciler)

	release := make(chan struct{})
	mockReconciler.On("HandleNotification", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	c.handleRecord(context.Background(), outcomeRecord(t, PaymentOutcomeEvent{
		SessionID: "session-1",
		Outcome:   "success",
	}))

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("wait group drained while a record was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("wait group never drained after processing finished")
	}
}

func TestPaymentOutcomeConsumer_ProcessRecord_ReconcilerError(t *testing.T) {
	mockReconciler := new(MockReconcilerService)
	c := newTestConsumer(mockReconciler)

	mockReconciler.On("HandleNotification", mock.Anything, mock.Anything).Return(context.DeadlineExceeded)

	record := outcomeRecord(t, PaymentOutcomeEvent{
		SessionID: "session-1",
		Outcome:   "success",
	})

	err := c.processRecord(context.Background(), record)
	assert.Error(t, err)
}
