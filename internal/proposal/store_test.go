package proposal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/store"
)

const testID = "val_3f1c9a2e-77b4-4c41-9d0e-5a1b2c3d4e5f"

var fixedNow = time.UnixMilli(1739500000000)

type fakeBackend struct {
	*store.MemoryStore
	readFn      func(ctx context.Context, path string) (store.Record, error)
	writeFn     func(ctx context.Context, path string, value store.Record) error
	partialFn   func(ctx context.Context, path string, fields store.Record) error
	subscribeFn func(ctx context.Context, path string, onValue func(store.Record), onError func(error)) (store.Unsubscribe, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeBackend) Read(ctx context.Context, path string) (store.Record, error) {
	if f.readFn != nil {
		return f.readFn(ctx, path)
	}
	return f.MemoryStore.Read(ctx, path)
}

func (f *fakeBackend) Write(ctx context.Context, path string, value store.Record) error {
	if f.writeFn != nil {
		return f.writeFn(ctx, path, value)
	}
	return f.MemoryStore.Write(ctx, path, value)
}

func (f *fakeBackend) PartialUpdate(ctx context.Context, path string, fields store.Record) error {
	if f.partialFn != nil {
		return f.partialFn(ctx, path, fields)
	}
	return f.MemoryStore.PartialUpdate(ctx, path, fields)
}

func (f *fakeBackend) Subscribe(ctx context.Context, path string, onValue func(store.Record), onError func(error)) (store.Unsubscribe, error) {
	if f.subscribeFn != nil {
		return f.subscribeFn(ctx, path, onValue, onError)
	}
	return f.MemoryStore.Subscribe(ctx, path, onValue, onError)
}

func newTestStore(t *testing.T, backend store.Backend) *Store {
	t.Helper()
	t.Cleanup(func() { _ = backend.Close() })
	return NewStore(backend, WithClock(func() time.Time { return fixedNow }))
}

func validFields() Fields {
	return Fields{
		ProposerName:   "Alex",
		ProposerGender: "male",
		PartnerName:    "Sam",
		PartnerGender:  "female",
	}
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testID, Fields{
		ProposerName:   "  <b>Alex</b> ",
		ProposerGender: "male",
		PartnerName:    "Sam<script>alert(1)</script>",
		PartnerGender:  "female",
	}))

	got, ok := s.Get(ctx, testID)
	require.True(t, ok)
	assert.Equal(t, testID, got.ID)
	assert.Equal(t, "Alex", got.ProposerName)
	assert.Equal(t, GenderMale, got.ProposerGender)
	assert.Equal(t, "Sam", got.PartnerName)
	assert.Equal(t, GenderFemale, got.PartnerGender)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, fixedNow.UnixMilli(), got.CreatedAt)
	assert.Nil(t, got.OpenedAt)
	assert.Nil(t, got.AcceptedAt)
}

func TestCreateTruncatesNames(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore())
	fields := validFields()
	fields.ProposerName = "Bartholomew Maximilian Fitzgerald-Worthington"

	require.NoError(t, s.Create(context.Background(), testID, fields))

	got, ok := s.Get(context.Background(), testID)
	require.True(t, ok)
	assert.Equal(t, "Bartholomew Maximilian Fitzger", got.ProposerName)
}

func TestCreateCoercesUnknownGender(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore())
	fields := validFields()
	fields.PartnerGender = "FEMALE"

	require.NoError(t, s.Create(context.Background(), testID, fields))

	got, _ := s.Get(context.Background(), testID)
	assert.Equal(t, GenderMale, got.PartnerGender)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		fields Fields
		want   error
	}{
		{name: "bad prefix", id: "abc_12345678", fields: validFields(), want: ErrInvalidID},
		{name: "too short", id: "val_1", fields: validFields(), want: ErrInvalidID},
		{name: "path traversal", id: "val_../../x", fields: validFields(), want: ErrInvalidID},
		{name: "empty proposer", id: testID, fields: Fields{PartnerName: "Sam"}, want: ErrEmptyName},
		{name: "markup only", id: testID, fields: Fields{ProposerName: "<i></i>", PartnerName: "Sam"}, want: ErrEmptyName},
		{name: "whitespace partner", id: testID, fields: Fields{ProposerName: "Alex", PartnerName: "   "}, want: ErrEmptyName},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := store.NewMemoryStore()
			s := newTestStore(t, backend)

			err := s.Create(context.Background(), tc.id, tc.fields)
			require.ErrorIs(t, err, tc.want)

			_, readErr := backend.Read(context.Background(), path(testID))
			assert.ErrorIs(t, readErr, store.ErrNotFound)
		})
	}
}

func TestCreateNeverOverwrites(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testID, validFields()))
	require.True(t, s.UpdateStatus(ctx, testID, Opened(fixedNow)))

	err := s.Create(ctx, testID, Fields{ProposerName: "Mallory", PartnerName: "Eve"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, ok := s.Get(ctx, testID)
	require.True(t, ok)
	assert.Equal(t, "Alex", got.ProposerName)
	assert.Equal(t, StatusOpened, got.Status)
}

func TestCreateBackendFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("read", func(t *testing.T) {
		backend := newFakeBackend()
		backend.readFn = func(context.Context, string) (store.Record, error) { return nil, boom }
		s := newTestStore(t, backend)

		err := s.Create(context.Background(), testID, validFields())
		require.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("write", func(t *testing.T) {
		backend := newFakeBackend()
		backend.writeFn = func(context.Context, string, store.Record) error { return boom }
		s := newTestStore(t, backend)

		err := s.Create(context.Background(), testID, validFields())
		require.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestGetMissingOrInvalid(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore())

	_, ok := s.Get(context.Background(), testID)
	assert.False(t, ok)

	_, ok = s.Get(context.Background(), "not-an-id")
	assert.False(t, ok)
}

func TestGetBackendFailureIsAbsent(t *testing.T) {
	backend := newFakeBackend()
	backend.readFn = func(context.Context, string) (store.Record, error) { return nil, errors.New("timeout") }
	s := newTestStore(t, backend)

	_, ok := s.Get(context.Background(), testID)
	assert.False(t, ok)
}

func TestGetNormalizesTamperedRecord(t *testing.T) {
	backend := store.NewMemoryStore()
	s := newTestStore(t, backend)
	require.NoError(t, backend.Write(context.Background(), path(testID), store.Record{
		"proposerName":   42,
		"proposerGender": "robot",
		"partnerName":    `<img src=x onerror=alert(1)>Sam<script>steal()</script>`,
		"partnerGender":  "female",
		"status":         "declined",
		"createdAt":      "yesterday",
		"openedAt":       "soon",
		"acceptedAt":     true,
	}))

	got, ok := s.Get(context.Background(), testID)
	require.True(t, ok)
	assert.Equal(t, "", got.ProposerName)
	assert.Equal(t, GenderMale, got.ProposerGender)
	assert.Equal(t, "Sam", got.PartnerName)
	assert.Equal(t, GenderFemale, got.PartnerGender)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, fixedNow.UnixMilli(), got.CreatedAt)
	assert.Nil(t, got.OpenedAt)
	assert.Nil(t, got.AcceptedAt)
}

func TestUpdateStatusFiltersFields(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		update Update
		want   bool
		status Status
	}{
		{name: "opened", id: testID, update: Opened(fixedNow), want: true, status: StatusOpened},
		{name: "accepted", id: testID, update: Accepted(fixedNow), want: true, status: StatusAccepted},
		{name: "pending is not settable", id: testID, update: Update{"status": "pending"}, want: false, status: StatusPending},
		{name: "unknown status", id: testID, update: Update{"status": "declined"}, want: false, status: StatusPending},
		{name: "unknown keys only", id: testID, update: Update{"proposerName": "Mallory"}, want: false, status: StatusPending},
		{name: "non numeric timestamp", id: testID, update: Update{"openedAt": "now"}, want: false, status: StatusPending},
		{name: "invalid id", id: "val_", update: Opened(fixedNow), want: false, status: StatusPending},
		{name: "empty", id: testID, update: Update{}, want: false, status: StatusPending},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t, store.NewMemoryStore())
			require.NoError(t, s.Create(context.Background(), testID, validFields()))

			assert.Equal(t, tc.want, s.UpdateStatus(context.Background(), tc.id, tc.update))

			got, ok := s.Get(context.Background(), testID)
			require.True(t, ok)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, "Alex", got.ProposerName)
		})
	}
}

func TestUpdateStatusWritesOnlyAllowedKeys(t *testing.T) {
	backend := newFakeBackend()
	var written store.Record
	backend.partialFn = func(_ context.Context, _ string, fields store.Record) error {
		written = fields
		return nil
	}
	s := newTestStore(t, backend)

	ok := s.UpdateStatus(context.Background(), testID, Update{
		"status":       "accepted",
		"acceptedAt":   float64(1739500001234),
		"openedAt":     "later",
		"proposerName": "<script>x</script>",
	})

	require.True(t, ok)
	assert.Equal(t, store.Record{"status": "accepted", "acceptedAt": int64(1739500001234)}, written)
}

func TestUpdateStatusWriteFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.partialFn = func(context.Context, string, store.Record) error { return errors.New("permission denied") }
	s := newTestStore(t, backend)

	assert.False(t, s.UpdateStatus(context.Background(), testID, Opened(fixedNow)))
}

func nextProposal(t *testing.T, ch <-chan *Proposal) *Proposal {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for proposal change")
		return nil
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := store.NewMemoryStore()
	s := NewStore(backend, WithClock(func() time.Time { return fixedNow }))
	defer backend.Close()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testID, validFields()))

	changes := make(chan *Proposal, 8)
	sub := s.Subscribe(ctx, testID, func(p *Proposal) { changes <- p })
	require.True(t, sub.Active())

	assert.Equal(t, StatusPending, nextProposal(t, changes).Status)

	require.True(t, s.UpdateStatus(ctx, testID, Opened(fixedNow)))
	opened := nextProposal(t, changes)
	require.NotNil(t, opened)
	assert.Equal(t, StatusOpened, opened.Status)
	require.NotNil(t, opened.OpenedAt)
	assert.Equal(t, fixedNow.UnixMilli(), *opened.OpenedAt)

	sub.Close()
	sub.Close()
	assert.False(t, sub.Active())
	assert.Equal(t, 0, backend.Subscribers(path(testID)))
}

func TestSubscribeNormalizesPayloads(t *testing.T) {
	backend := store.NewMemoryStore()
	s := newTestStore(t, backend)
	ctx := context.Background()

	changes := make(chan *Proposal, 8)
	sub := s.Subscribe(ctx, testID, func(p *Proposal) { changes <- p })
	defer sub.Close()

	assert.Nil(t, nextProposal(t, changes))

	require.NoError(t, backend.Write(ctx, path(testID), store.Record{
		"proposerName": "<b>Alex</b>",
		"partnerName":  "Sam",
		"status":       "accepted",
		"acceptedAt":   "whenever",
	}))
	got := nextProposal(t, changes)
	require.NotNil(t, got)
	assert.Equal(t, "Alex", got.ProposerName)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.Nil(t, got.AcceptedAt)
}

func TestSubscribeReportsDeletionAsNil(t *testing.T) {
	backend := store.NewMemoryStore()
	s := newTestStore(t, backend)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testID, validFields()))

	changes := make(chan *Proposal, 8)
	sub := s.Subscribe(ctx, testID, func(p *Proposal) { changes <- p })
	defer sub.Close()
	require.NotNil(t, nextProposal(t, changes))

	require.NoError(t, backend.Delete(ctx, path(testID)))
	assert.Nil(t, nextProposal(t, changes))
}

func TestSubscribeInvalidIDIsClosedNoop(t *testing.T) {
	backend := store.NewMemoryStore()
	s := newTestStore(t, backend)

	called := false
	sub := s.Subscribe(context.Background(), "../etc/passwd", func(*Proposal) { called = true })

	assert.False(t, sub.Active())
	sub.Close()
	sub.Close()
	assert.False(t, called)
	assert.Equal(t, 0, backend.Subscribers(path("../etc/passwd")))
}

func TestSubscribeBackendErrorReportsNil(t *testing.T) {
	backend := newFakeBackend()
	backend.subscribeFn = func(context.Context, string, func(store.Record), func(error)) (store.Unsubscribe, error) {
		return nil, errors.New("listen refused")
	}
	s := newTestStore(t, backend)

	var got []*Proposal
	sub := s.Subscribe(context.Background(), testID, func(p *Proposal) { got = append(got, p) })

	assert.False(t, sub.Active())
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestSubscribeListenerErrorReportsNil(t *testing.T) {
	backend := newFakeBackend()
	var fail func(error)
	backend.subscribeFn = func(_ context.Context, _ string, _ func(store.Record), onError func(error)) (store.Unsubscribe, error) {
		fail = onError
		return func() {}, nil
	}
	s := newTestStore(t, backend)

	var got []*Proposal
	sub := s.Subscribe(context.Background(), testID, func(p *Proposal) { got = append(got, p) })
	defer sub.Close()

	fail(errors.New("connection dropped"))
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestCloseAfterBackendClosed(t *testing.T) {
	backend := store.NewMemoryStore()
	s := NewStore(backend)
	require.NoError(t, s.Create(context.Background(), testID, validFields()))

	sub := s.Subscribe(context.Background(), testID, func(*Proposal) {})
	require.NoError(t, backend.Close())

	assert.NotPanics(t, func() {
		sub.Close()
		sub.Close()
	})
}
