package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

func setupReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	telemetry.UseMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), "test")
	require.NoError(t, initMetrics())
	return reader
}

// sums returns the int64 data points of name keyed by the value of attr
func sums(t *testing.T, reader *sdkmetric.ManualReader, name, attr string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(attr))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestRecordSeatOutcomes(t *testing.T) {
	reader := setupReader(t)

	RecordSeatOutcomes(context.Background(), "7", []domain.SeatResult{
		{SeatID: "r1c1", Outcome: domain.SeatOK},
		{SeatID: "r1c2", Outcome: domain.SeatOK},
		{SeatID: "r1c3", Outcome: domain.SeatConflict},
		{SeatID: "x", Outcome: domain.SeatInvalid},
	})

	assert.Equal(t, map[string]int64{"OK": 2, "CONFLICT": 1, "INVALID": 1},
		sums(t, reader, "ticket_seat_outcomes_total", "outcome"))
}

func TestRecordAttempt(t *testing.T) {
	reader := setupReader(t)
	ctx := context.Background()

	RecordAttempt(ctx, PathConfirm, "7", domain.SaleStatusConfirmed, "primary")
	RecordAttempt(ctx, PathRetry, "7", domain.SaleStatusConfirmed, "secondary")
	RecordAttempt(ctx, PathConfirm, "7", domain.SaleStatusPending, "")
	RecordAttempt(ctx, PathRetry, "7", domain.SaleStatusError, "")

	assert.Equal(t, map[string]int64{"primary": 1, "secondary": 1},
		sums(t, reader, "ticket_sales_confirmed_total", "channel"))
	assert.Equal(t, map[string]int64{"confirm": 1, "retry": 1},
		sums(t, reader, "ticket_sale_attempts_failed_total", "path"))
	assert.Equal(t, map[string]int64{"7": 1},
		sums(t, reader, "ticket_sales_exhausted_total", "event_id"))
}

func TestRecordSweep(t *testing.T) {
	reader := setupReader(t)

	RecordSweep(context.Background(), 0.2, 3, 1, 0, 2)
	RecordUpdateConflict(context.Background(), PathRetry)

	assert.Equal(t, map[string]int64{"confirmed": 3, "rescheduled": 1, "skipped": 2},
		sums(t, reader, "ticket_retry_sweep_sales_total", "result"))
	assert.Equal(t, map[string]int64{"retry": 1},
		sums(t, reader, "ticket_sale_update_conflicts_total", "path"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == "ticket_retry_sweep_duration_seconds" {
				for _, dp := range h.DataPoints {
					count += dp.Count
				}
			}
		}
	}
	assert.Equal(t, uint64(1), count)
}
