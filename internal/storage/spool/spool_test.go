package spool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-engine/internal/domain/notify"
)

func openTestSpool(t *testing.T) *Spool {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "spool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func event(orderID string, kind notify.Kind) notify.Event {
	return notify.Event{
		Kind:    kind,
		OrderID: orderID,
		UserID:  "user-1",
		Status:  "PENDING",
		Note:    "order created",
		At:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	e := event("o-1", notify.OrderCreated)
	got, err := decodeEvent(encodeEvent(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDecodeEvent_SkipsUnknownFields(t *testing.T) {
	got, err := decodeEvent([]byte(`{"kind":"order.cancelled","extra":{"a":[1,2]},"order_id":"o-9","at":"2026-03-01T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, notify.OrderCancelled, got.Kind)
	assert.Equal(t, "o-9", got.OrderID)
	assert.Empty(t, got.UserID)
}

func TestDrain_DeliversInAppendOrder(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	for _, id := range []string{"o-1", "o-2", "o-3"} {
		s.Publish(ctx, event(id, notify.OrderCreated))
	}
	n, err := s.Pending()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var seen []string
	delivered, err := s.Drain(ctx, 0, func(_ context.Context, e notify.Event) error {
		seen = append(seen, e.OrderID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, []string{"o-1", "o-2", "o-3"}, seen)

	n, err = s.Pending()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_StopsAtFailureAndKeepsRemainder(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		require.NoError(t, s.Append(event(id, notify.OrderStatusChanged)))
	}

	errBroken := errors.New("consumer unavailable")
	delivered, err := s.Drain(ctx, 0, func(_ context.Context, e notify.Event) error {
		if e.OrderID == "o-2" {
			return errBroken
		}
		return nil
	})
	require.ErrorIs(t, err, errBroken)
	assert.Equal(t, 1, delivered)

	var seen []string
	_, err = s.Drain(ctx, 0, func(_ context.Context, e notify.Event) error {
		seen = append(seen, e.OrderID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-2", "o-3"}, seen)
}

func TestDrain_Limit(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		require.NoError(t, s.Append(event(id, notify.OrderCreated)))
	}

	delivered, err := s.Drain(ctx, 2, func(context.Context, notify.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	n, err := s.Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSpool_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(event("o-1", notify.CancellationRequested)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	n, err := s.Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	s := openTestSpool(t)
	require.NoError(t, s.Append(event("o-1", notify.OrderCreated)))

	ctx, cancel := context.WithCancel(context.Background())
	delivered := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Relay(ctx, 10*time.Millisecond, func(_ context.Context, e notify.Event) error {
			delivered <- e.OrderID
			return nil
		})
	}()

	select {
	case id := <-delivered:
		assert.Equal(t, "o-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not deliver")
	}
	cancel()
	<-done
}
