package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// Notification paths
const (
	PathConfirm = "confirm"
	PathRetry   = "retry"
)

var (
	// Reservation counters
	SeatOutcomes *telemetry.Counter

	// Sale counters
	SalesCreated        *telemetry.Counter
	SalesConfirmed      *telemetry.Counter
	SaleAttemptsFailed  *telemetry.Counter
	SalesExhausted      *telemetry.Counter
	SaleUpdateConflicts *telemetry.Counter

	// Retry sweep
	SweepSales    *telemetry.Counter
	SweepDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all broker metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	SeatOutcomes, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_seat_outcomes_total",
		Description: "Per-seat reservation outcomes",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SalesCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_sales_created_total",
		Description: "Total number of sales created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SalesConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_sales_confirmed_total",
		Description: "Sales delivered to the authority, by channel",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SaleAttemptsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_sale_attempts_failed_total",
		Description: "Notification attempts where every channel failed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SalesExhausted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_sales_exhausted_total",
		Description: "Sales moved to ERROR after the last allowed attempt",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SaleUpdateConflicts, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_sale_update_conflicts_total",
		Description: "Attempts discarded because another writer updated the sale first",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SweepSales, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticket_retry_sweep_sales_total",
		Description: "Sales handled by retry sweeps, by result",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SweepDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "ticket_retry_sweep_duration_seconds",
		Description: "Duration of one retry sweep",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}) // 10ms to 1min
	if err != nil {
		return err
	}

	return nil
}

// RecordSeatOutcomes counts each seat result of one reservation request
func RecordSeatOutcomes(ctx context.Context, eventID string, results []domain.SeatResult) {
	if SeatOutcomes == nil {
		return
	}
	for _, r := range results {
		SeatOutcomes.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("outcome", string(r.Outcome)),
		)
	}
}

// RecordSaleCreated records a new sale
func RecordSaleCreated(ctx context.Context, eventID string, quantity int) {
	if SalesCreated != nil {
		SalesCreated.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.Int("quantity", quantity),
		)
	}
}

// RecordAttempt records the outcome of one persisted notification attempt
func RecordAttempt(ctx context.Context, path, eventID string, status domain.SaleStatus, channel string) {
	switch status {
	case domain.SaleStatusConfirmed:
		if SalesConfirmed != nil {
			SalesConfirmed.Inc(ctx,
				attribute.String("channel", channel),
				attribute.String("path", path),
			)
		}
		return
	case domain.SaleStatusError:
		if SalesExhausted != nil {
			SalesExhausted.Inc(ctx, attribute.String("event_id", eventID))
		}
	}
	if SaleAttemptsFailed != nil {
		SaleAttemptsFailed.Inc(ctx, attribute.String("path", path))
	}
}

// RecordUpdateConflict records an attempt that lost the optimistic update
func RecordUpdateConflict(ctx context.Context, path string) {
	if SaleUpdateConflicts != nil {
		SaleUpdateConflicts.Inc(ctx, attribute.String("path", path))
	}
}

// RecordSweep records one retry sweep
func RecordSweep(ctx context.Context, durationSeconds float64, confirmed, rescheduled, failed, skipped int) {
	if SweepDuration != nil {
		SweepDuration.Record(ctx, durationSeconds)
	}
	if SweepSales == nil {
		return
	}
	for result, n := range map[string]int{
		"confirmed":   confirmed,
		"rescheduled": rescheduled,
		"failed":      failed,
		"skipped":     skipped,
	} {
		if n > 0 {
			SweepSales.Add(ctx, int64(n), attribute.String("result", result))
		}
	}
}
