package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := New(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.OrderCreated(ctx, 950, true)
	m.OrderCreated(ctx, 200, false)
	m.CheckoutFailed(ctx, "insufficient_stock")
	m.Transition(ctx, "PENDING", "CONFIRMED")
	m.Cancellation(ctx, "approved")

	data := collect(t, reader)

	created, ok := data["orders.created"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range created.DataPoints {
		total += dp.Value
	}
	assert.EqualValues(t, 2, total)

	payable, ok := data["orders.payable"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, payable.DataPoints, 1)
	assert.EqualValues(t, 2, payable.DataPoints[0].Count)
	assert.InDelta(t, 1150, payable.DataPoints[0].Sum, 0.001)

	assert.Contains(t, data, "orders.checkout.failed")
	assert.Contains(t, data, "orders.status.transitions")
	assert.Contains(t, data, "orders.cancellation.requests")
}

func TestNoop(t *testing.T) {
	m := Noop()
	require.NotNil(t, m)
	m.OrderCreated(context.Background(), 1, false)
}
