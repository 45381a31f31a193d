package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
)

// RetrySweeper runs one pass over due PENDING sales
type RetrySweeper interface {
	RunRetrySweep(ctx context.Context) (*service.SweepResult, error)
}

// SaleRetryWorkerConfig contains configuration for the sale retry worker
type SaleRetryWorkerConfig struct {
	// Interval between sweeps
	Interval time.Duration
}

// DefaultSaleRetryWorkerConfig returns default configuration
func DefaultSaleRetryWorkerConfig() *SaleRetryWorkerConfig {
	return &SaleRetryWorkerConfig{
		Interval: 30 * time.Second,
	}
}

// SaleRetryWorker periodically retries sales whose notification failed
type SaleRetryWorker struct {
	sweeper RetrySweeper
	config  *SaleRetryWorkerConfig
	log     *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalSweeps    int64
	totalConfirmed int64
	totalFailed    int64
	totalErrors    int64
	lastSweepTime  time.Time
	lastClaimed    int
}

// NewSaleRetryWorker creates a new sale retry worker
func NewSaleRetryWorker(sweeper RetrySweeper, config *SaleRetryWorkerConfig) *SaleRetryWorker {
	if config == nil || config.Interval <= 0 {
		config = DefaultSaleRetryWorkerConfig()
	}
	return &SaleRetryWorker{
		sweeper: sweeper,
		config:  config,
		log:     logger.Get().With(zap.String("component", "sale-retry-worker")),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the sale retry worker
func (w *SaleRetryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sale retry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting sale retry worker", zap.Duration("interval", w.config.Interval))

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the sale retry worker and waits for the current sweep
func (w *SaleRetryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping sale retry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Sale retry worker stopped")
}

func (w *SaleRetryWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
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

func (w *SaleRetryWorker) sweep(ctx context.Context) {
	res, err := w.sweeper.RunRetrySweep(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.totalSweeps++
	w.lastSweepTime = time.Now()

	if err != nil {
		w.totalErrors++
		w.log.Error("Sale retry sweep failed", zap.Error(err))
		return
	}

	w.lastClaimed = res.Claimed
	w.totalConfirmed += int64(res.Confirmed)
	w.totalFailed += int64(res.Failed)
	if res.Claimed > 0 {
		w.log.Info("Sale retry sweep finished",
			zap.Int("claimed", res.Claimed),
			zap.Int("confirmed", res.Confirmed),
			zap.Int("rescheduled", res.Rescheduled),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
}

// GetStats returns worker statistics
func (w *SaleRetryWorker) GetStats() *SaleRetryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &SaleRetryWorkerStats{
		IsRunning:      w.running,
		TotalSweeps:    w.totalSweeps,
		TotalConfirmed: w.totalConfirmed,
		TotalFailed:    w.totalFailed,
		TotalErrors:    w.totalErrors,
		LastSweepTime:  w.lastSweepTime,
		LastClaimed:    w.lastClaimed,
	}
}

// SaleRetryWorkerStats contains worker statistics
type SaleRetryWorkerStats struct {
	IsRunning      bool      `json:"is_running"`
	TotalSweeps    int64     `json:"total_sweeps"`
	TotalConfirmed int64     `json:"total_confirmed"`
	TotalFailed    int64     `json:"total_failed"`
	TotalErrors    int64     `json:"total_errors"`
	LastSweepTime  time.Time `json:"last_sweep_time"`
	LastClaimed    int       `json:"last_claimed"`
}
