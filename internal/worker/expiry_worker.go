package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/service"
	"go.uber.org/zap"
)

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// SweepInterval is the interval between sweeps for overdue orders
	SweepInterval time.Duration
	// BatchSize is the number of orders to expire in each sweep
	BatchSize int
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		SweepInterval: 30 * time.Second,
		BatchSize:     100,
	}
}

// ExpiryWorker periodically expires pending orders whose payment hold
// deadline passed, returning their inventory to the pool.
type ExpiryWorker struct {
	reconciler service.ReconcilerService
	config     *ExpiryWorkerConfig
	log        *logger.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool

	totalExpired int64
	lastSweep    time.Time
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(reconciler service.ReconcilerService, config *ExpiryWorkerConfig) *ExpiryWorker {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}
	return &ExpiryWorker{
		reconciler: reconciler,
		config:     config,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the expiry worker
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry worker",
		zap.Duration("sweep_interval", w.config.SweepInterval),
		zap.Int("batch_size", w.config.BatchSize))

	w.wg.Add(1)
	go w.sweepLoop(ctx)

	return nil
}

// Stop stops the expiry worker and waits for the current sweep to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Expiry worker stopped")
}

// sweepLoop runs sweeps until stopped
func (w *ExpiryWorker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep expires one batch of overdue orders
func (w *ExpiryWorker) sweep(ctx context.Context) {
	w.mu.Lock()
	w.lastSweep = time.Now()
	w.mu.Unlock()

	expired, err := w.reconciler.ExpireOverdue(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		w.mu.Lock()
		w.totalExpired += int64(expired)
		w.mu.Unlock()
	}
}

// TotalExpired returns the number of orders expired since start
func (w *ExpiryWorker) TotalExpired() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalExpired
}
