package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type delivery struct {
	record Record
}

func collector() (func(Record), <-chan delivery) {
	ch := make(chan delivery, 32)
	return func(r Record) { ch <- delivery{record: r} }, ch
}

func next(t *testing.T, ch <-chan delivery) Record {
	t.Helper()
	select {
	case d := <-ch:
		return d.record
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a subscription callback")
		return nil
	}
}

func nextMatching(t *testing.T, ch <-chan delivery, match func(Record) bool) Record {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case d := <-ch:
			if match(d.record) {
				return d.record
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching subscription callback")
			return nil
		}
	}
}

func assertQuiet(t *testing.T, ch <-chan delivery, wait time.Duration) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("unexpected callback after unsubscribe: %v", d.record)
	case <-time.After(wait):
	}
}

// runBackendSuite checks the contract every Backend implementation shares.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("read missing", func(t *testing.T) {
		backend := newBackend(t)
		_, err := backend.Read(context.Background(), "proposals/val_missing01")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("write then read", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		require.NoError(t, backend.Write(ctx, "proposals/val_write0001", Record{
			"proposerName": "Sam",
			"status":       "pending",
			"createdAt":    int64(1707868800000),
			"openedAt":     nil,
		}))

		got, err := backend.Read(ctx, "proposals/val_write0001")
		require.NoError(t, err)
		assert.Equal(t, "Sam", got["proposerName"])
		assert.Equal(t, "pending", got["status"])
		assert.EqualValues(t, 1707868800000, got["createdAt"])
		value, present := got["openedAt"]
		assert.True(t, present)
		assert.Nil(t, value)
	})

	t.Run("write replaces the whole value", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		path := "proposals/val_replace01"
		require.NoError(t, backend.Write(ctx, path, Record{"a": "1", "b": "2"}))
		require.NoError(t, backend.Write(ctx, path, Record{"a": "3"}))

		got, err := backend.Read(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, Record{"a": "3"}, got)
	})

	t.Run("partial update merges keys", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		path := "proposals/val_partial01"
		require.NoError(t, backend.Write(ctx, path, Record{"status": "pending", "proposerName": "Sam"}))
		require.NoError(t, backend.PartialUpdate(ctx, path, Record{"status": "opened", "openedAt": 42}))

		got, err := backend.Read(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "opened", got["status"])
		assert.Equal(t, "Sam", got["proposerName"])
		assert.EqualValues(t, 42, got["openedAt"])
	})

	t.Run("partial update of a missing record creates it", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		path := "proposals/val_partial02"
		require.NoError(t, backend.PartialUpdate(ctx, path, Record{"status": "opened"}))

		got, err := backend.Read(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, Record{"status": "opened"}, got)
	})

	t.Run("subscribe delivers initial value and changes in order", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		path := "proposals/val_subscr001"

		onValue, ch := collector()
		unsubscribe, err := backend.Subscribe(ctx, path, onValue, func(err error) { t.Errorf("listener error: %v", err) })
		require.NoError(t, err)
		defer unsubscribe()

		assert.Nil(t, next(t, ch), "initial value of a missing record")

		require.NoError(t, backend.Write(ctx, path, Record{"status": "pending"}))
		got := nextMatching(t, ch, func(r Record) bool { return r != nil && r["status"] == "pending" })
		assert.Equal(t, "pending", got["status"])

		require.NoError(t, backend.PartialUpdate(ctx, path, Record{"status": "opened"}))
		got = nextMatching(t, ch, func(r Record) bool { return r != nil && r["status"] == "opened" })
		assert.Equal(t, "opened", got["status"])
	})

	t.Run("subscriptions are scoped to their path", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		require.NoError(t, backend.Write(ctx, "proposals/val_scoped001", Record{"status": "pending"}))

		onValue, ch := collector()
		unsubscribe, err := backend.Subscribe(ctx, "proposals/val_scoped001", onValue, nil)
		require.NoError(t, err)
		defer unsubscribe()
		require.NotNil(t, next(t, ch))

		require.NoError(t, backend.Write(ctx, "proposals/val_scoped002", Record{"status": "accepted"}))
		assertQuiet(t, ch, 150*time.Millisecond)
	})

	t.Run("unsubscribe twice stops delivery", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()
		path := "proposals/val_unsub0001"
		require.NoError(t, backend.Write(ctx, path, Record{"status": "pending"}))

		onValue, ch := collector()
		unsubscribe, err := backend.Subscribe(ctx, path, onValue, nil)
		require.NoError(t, err)
		require.NotNil(t, next(t, ch))

		assert.NotPanics(t, func() {
			unsubscribe()
			unsubscribe()
		})

		require.NoError(t, backend.PartialUpdate(ctx, path, Record{"status": "opened"}))
		assertQuiet(t, ch, 200*time.Millisecond)
	})

	t.Run("unsubscribe after close is safe", func(t *testing.T) {
		backend := newBackend(t)
		ctx := context.Background()

		onValue, ch := collector()
		unsubscribe, err := backend.Subscribe(ctx, "proposals/val_closed001", onValue, nil)
		require.NoError(t, err)
		next(t, ch)

		require.NoError(t, backend.Close())
		assert.NotPanics(t, func() { unsubscribe() })
	})
}
