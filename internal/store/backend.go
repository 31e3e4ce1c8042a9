// Package store provides the realtime record backends behind the proposal
// store: a schemaless key-value service that can push every change of a
// record to its listeners.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Read when no record exists at the path.
	ErrNotFound = errors.New("record not found")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("backend closed")
)

// Record is the stored value at a path. Backends do not enforce a schema,
// so values hold whatever JSON decoding produced.
type Record map[string]any

// Clone returns a shallow copy of r. A nil record stays nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

// Unsubscribe detaches a listener. Calling it more than once, or after the
// backend was closed, is a no-op.
type Unsubscribe func()

// Backend is an eventually consistent, single-record key-value service with
// push notifications and no transactions.
type Backend interface {
	Read(ctx context.Context, path string) (Record, error)
	Write(ctx context.Context, path string, value Record) error
	PartialUpdate(ctx context.Context, path string, fields Record) error
	// Subscribe calls onValue with the current value (nil when absent) and
	// again after every change, in order, from a single goroutine. Listener
	// failures are reported through onError and end the subscription.
	Subscribe(ctx context.Context, path string, onValue func(Record), onError func(error)) (Unsubscribe, error)
	Ping(ctx context.Context) error
	Close() error
}

func decodeRecord(raw []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	// "null" decodes to a nil map
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

func encodeRecord(record Record) ([]byte, error) {
	if record == nil {
		record = Record{}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return payload, nil
}
