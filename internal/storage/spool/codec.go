package spool

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-engine/internal/domain/notify"
)

func encodeEvent(e notify.Event) []byte {
	enc := jx.GetEncoder()
	defer jx.PutEncoder(enc)

	enc.ObjStart()
	enc.FieldStart("kind")
	enc.Str(string(e.Kind))
	enc.FieldStart("order_id")
	enc.Str(e.OrderID)
	if e.UserID != "" {
		enc.FieldStart("user_id")
		enc.Str(e.UserID)
	}
	if e.Status != "" {
		enc.FieldStart("status")
		enc.Str(e.Status)
	}
	if e.Note != "" {
		enc.FieldStart("note")
		enc.Str(e.Note)
	}
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()

	// The encoder buffer is reused after PutEncoder.
	out := make([]byte, len(enc.Bytes()))
	copy(out, enc.Bytes())
	return out
}

func decodeEvent(data []byte) (notify.Event, error) {
	var e notify.Event
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "kind":
			v, err := d.Str()
			e.Kind = notify.Kind(v)
			return err
		case "order_id":
			v, err := d.Str()
			e.OrderID = v
			return err
		case "user_id":
			v, err := d.Str()
			e.UserID = v
			return err
		case "status":
			v, err := d.Str()
			e.Status = v
			return err
		case "note":
			v, err := d.Str()
			e.Note = v
			return err
		case "at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			if e.At, err = time.Parse(time.RFC3339Nano, v); err != nil {
				return errors.Wrap(err, "parse at")
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return notify.Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}
