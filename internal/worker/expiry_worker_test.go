package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// stubReconciler counts sweep invocations and returns a fixed batch result.
type stubReconciler struct {
	expirePerSweep int
	sweeps         int64
}

func (s *stubReconciler) HandleNotification(ctx context.Context, n *domain.PaymentNotification) error {
	return nil
}

func (s *stubReconciler) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	atomic.AddInt64(&s.sweeps, 1)
	return s.expirePerSweep, nil
}

func (s *stubReconciler) sweepCount() int64 {
	return atomic.LoadInt64(&s.sweeps)
}

func TestExpiryWorker_StartStop(t *testing.T) {
	rec := &stubReconciler{expirePerSweep: 3}
	w := NewExpiryWorker(rec, &ExpiryWorkerConfig{
		SweepInterval: 10 * time.Millisecond,
		BatchSize:     50,
	})

	err := w.Start(context.Background())
	assert.NoError(t, err)

	// First sweep fires immediately, then on the ticker
	assert.Eventually(t, func() bool {
		return rec.sweepCount() >= 2
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	after := rec.sweepCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.sweepCount(), "no sweeps after Stop")

	assert.Equal(t, after*3, w.TotalExpired())
}

func TestExpiryWorker_DoubleStart(t *testing.T) {
	rec := &stubReconciler{}
	w := NewExpiryWorker(rec, &ExpiryWorkerConfig{
		SweepInterval: time.Hour,
		BatchSize:     50,
	})

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	err := w.Start(context.Background())
	assert.Error(t, err)
}

func TestExpiryWorker_StopWithoutStart(t *testing.T) {
	w := NewExpiryWorker(&stubReconciler{}, nil)
	assert.NotPanics(t, func() { w.Stop() })
}

func TestExpiryWorker_ContextCancelStopsLoop(t *testing.T) {
	rec := &stubReconciler{}
	w := NewExpiryWorker(rec, &ExpiryWorkerConfig{
		SweepInterval: 10 * time.Millisecond,
		BatchSize:     50,
	})

	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, w.Start(ctx))

	assert.Eventually(t, func() bool {
		return rec.sweepCount() >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	after := rec.sweepCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.sweepCount(), "no sweeps after context cancel")
}
