// Package spool is a local, file-backed outbox for notification events.
//
// Publish appends committed events to a bolt bucket keyed by a monotonically
// increasing sequence; a relay drains the bucket in order and removes each
// event once its delivery succeeded. Events survive restarts, and a slow or
// failing consumer never blocks the request that produced them.
package spool

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-engine/internal/domain/notify"
)

var bucketEvents = []byte("events")

var _ notify.Publisher = (*Spool)(nil)

// Spool stores pending notification events in a bolt database.
type Spool struct {
	db *bolt.DB
}

// Open opens or creates the spool file at path.
func Open(path string) (*Spool, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open spool")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &Spool{db: db}, nil
}

// Close releases the file lock.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Append stores e after every event appended before it.
func (s *Spool) Append(e notify.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), encodeEvent(e))
	})
}

// Publish appends e. A failed append is logged and dropped, it never reaches
// the caller.
func (s *Spool) Publish(ctx context.Context, e notify.Event) {
	if err := s.Append(e); err != nil {
		zctx.From(ctx).Warn("Notification dropped",
			zap.String("kind", string(e.Kind)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

// Pending returns the number of undelivered events.
func (s *Spool) Pending() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// DeliverFunc hands one event to a consumer.
type DeliverFunc func(ctx context.Context, e notify.Event) error

// Drain delivers up to limit pending events in append order and removes each
// delivered one. It stops at the first delivery error, leaving that event and
// every later one in place. A non-positive limit drains everything.
func (s *Spool) Drain(ctx context.Context, limit int, deliver DeliverFunc) (int, error) {
	type pending struct {
		key   []byte
		event notify.Event
	}
	var batch []pending
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(batch) >= limit {
				break
			}
			e, err := decodeEvent(v)
			if err != nil {
				return errors.Wrapf(err, "event %d", binary.BigEndian.Uint64(k))
			}
			batch = append(batch, pending{key: append([]byte(nil), k...), event: e})
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "read spool")
	}

	var delivered int
	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := deliver(ctx, p.event); err != nil {
			return delivered, errors.Wrap(err, "deliver")
		}
		if err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketEvents).Delete(p.key)
		}); err != nil {
			return delivered, errors.Wrap(err, "remove delivered event")
		}
		delivered++
	}
	return delivered, nil
}

// Relay drains the spool every interval until ctx is done.
func (s *Spool) Relay(ctx context.Context, interval time.Duration, deliver DeliverFunc) {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Drain(ctx, 100, deliver)
			if err != nil && ctx.Err() == nil {
				lg.Warn("Notification relay failed", zap.Int("delivered", n), zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Notifications delivered", zap.Int("count", n))
			}
		}
	}
}

// LogDeliver is a DeliverFunc that writes every event to the context logger.
func LogDeliver(ctx context.Context, e notify.Event) error {
	zctx.From(ctx).Info("Notification",
		zap.String("kind", string(e.Kind)),
		zap.String("order_id", e.OrderID),
		zap.String("user_id", e.UserID),
		zap.String("status", e.Status),
		zap.String("note", e.Note),
		zap.Time("at", e.At),
	)
	return nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
