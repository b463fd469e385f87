// Package telemetry defines the business metrics of the order engine.
package telemetry

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/xenking/order-engine"

// Metrics records order lifecycle counters.
type Metrics struct {
	ordersCreated  metric.Int64Counter
	checkoutFailed metric.Int64Counter
	transitions    metric.Int64Counter
	cancellations  metric.Int64Counter
	orderValue     metric.Float64Histogram
}

// New creates the instruments on mp. A nil provider yields no-op instruments.
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.ordersCreated, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed by checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.checkoutFailed, err = meter.Int64Counter("orders.checkout.failed",
		metric.WithDescription("Checkouts rejected, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.checkout.failed")
	}
	if m.transitions, err = meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Applied order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status.transitions")
	}
	if m.cancellations, err = meter.Int64Counter("orders.cancellation.requests",
		metric.WithDescription("Cancellation requests by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancellation.requests")
	}
	if m.orderValue, err = meter.Float64Histogram("orders.payable",
		metric.WithDescription("Payable amount of placed orders"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.payable")
	}
	return &m, nil
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

func (m *Metrics) OrderCreated(ctx context.Context, payable float64, couponApplied bool) {
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", couponApplied)))
	m.orderValue.Record(ctx, payable)
}

func (m *Metrics) CheckoutFailed(ctx context.Context, reason string) {
	m.checkoutFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Transition(ctx context.Context, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) Cancellation(ctx context.Context, outcome string) {
	m.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
