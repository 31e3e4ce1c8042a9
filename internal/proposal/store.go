package proposal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/sanitize"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/store"
)

const pathPrefix = "proposals/"

// Store persists proposals in a realtime backend. Every value leaving the
// store is sanitized, including values written by other clients.
type Store struct {
	backend store.Backend
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(backend store.Backend, opts ...Option) *Store {
	s := &Store{backend: backend, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func path(id string) string {
	return pathPrefix + id
}

// Create writes a new pending proposal. The existence check and the write
// are separate backend calls, so two creators racing on one id can both
// succeed; ids are random, which makes that practically unreachable.
func (s *Store) Create(ctx context.Context, id string, fields Fields) error {
	if !sanitize.IsValidID(id) {
		return ErrInvalidID
	}
	proposerName := sanitize.Text(fields.ProposerName, sanitize.MaxNameLength)
	partnerName := sanitize.Text(fields.PartnerName, sanitize.MaxNameLength)
	if proposerName == "" || partnerName == "" {
		return ErrEmptyName
	}

	_, err := s.backend.Read(ctx, path(id))
	switch {
	case err == nil:
		return ErrAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Error("proposal existence check failed", zap.String("proposal_id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	record := store.Record{
		"proposerName":   proposerName,
		"proposerGender": string(ParseGender(fields.ProposerGender)),
		"partnerName":    partnerName,
		"partnerGender":  string(ParseGender(fields.PartnerGender)),
		"status":         string(StatusPending),
		"createdAt":      s.now().UnixMilli(),
		"openedAt":       nil,
		"acceptedAt":     nil,
	}
	if err := s.backend.Write(ctx, path(id), record); err != nil {
		s.logger.Error("proposal create failed", zap.String("proposal_id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.logger.Info("proposal created", zap.String("proposal_id", id))
	return nil
}

// Get returns the sanitized proposal. It reports false for an invalid id, a
// missing record or a backend failure; the failure is logged, not returned.
func (s *Store) Get(ctx context.Context, id string) (Proposal, bool) {
	if !sanitize.IsValidID(id) {
		return Proposal{}, false
	}
	record, err := s.backend.Read(ctx, path(id))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("proposal read failed", zap.String("proposal_id", id), zap.Error(err))
		}
		return Proposal{}, false
	}
	return *fromRecord(id, record, s.now()), true
}

// UpdateStatus merges the allowed keys of update into the record: status
// (opened or accepted only), and numeric openedAt/acceptedAt. Anything else
// is dropped. The current status is not checked, so call sites decide
// whether a transition is legal.
func (s *Store) UpdateStatus(ctx context.Context, id string, update Update) bool {
	if !sanitize.IsValidID(id) {
		return false
	}
	fields := filterUpdate(update)
	if len(fields) == 0 {
		return false
	}
	if err := s.backend.PartialUpdate(ctx, path(id), fields); err != nil {
		s.logger.Warn("proposal status update failed", zap.String("proposal_id", id), zap.Error(err))
		return false
	}
	return true
}

func filterUpdate(update Update) store.Record {
	fields := store.Record{}
	if raw, ok := update["status"].(string); ok {
		if status := Status(raw); status.Settable() {
			fields["status"] = string(status)
		}
	}
	for _, key := range []string{"openedAt", "acceptedAt"} {
		if at, ok := millis(update[key]); ok {
			fields[key] = at
		}
	}
	return fields
}

// Subscription is a live listener on one proposal.
type Subscription struct {
	once        sync.Once
	mu          sync.Mutex
	closed      bool
	unsubscribe store.Unsubscribe
}

// Close detaches the listener. Further calls do nothing.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubscribe := s.unsubscribe
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

// Active reports whether the listener is still attached.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func closedSubscription() *Subscription {
	sub := &Subscription{}
	sub.Close()
	return sub
}

// Subscribe calls onChange with the current proposal and after every
// change. A deleted record or a listener failure is reported as nil. For an
// invalid id the returned subscription is already closed and onChange is
// never called.
func (s *Store) Subscribe(ctx context.Context, id string, onChange func(*Proposal)) *Subscription {
	if !sanitize.IsValidID(id) {
		return closedSubscription()
	}
	sub := &Subscription{}
	onValue := func(record store.Record) {
		if !sub.Active() {
			return
		}
		if record == nil {
			onChange(nil)
			return
		}
		onChange(fromRecord(id, record, s.now()))
	}
	onError := func(err error) {
		s.logger.Warn("proposal listener error", zap.String("proposal_id", id), zap.Error(fmt.Errorf("%w: %w", ErrListener, err)))
		if sub.Active() {
			onChange(nil)
		}
	}

	unsubscribe, err := s.backend.Subscribe(ctx, path(id), onValue, onError)
	if err != nil {
		onError(err)
		sub.Close()
		return sub
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		unsubscribe()
		return sub
	}
	sub.unsubscribe = unsubscribe
	sub.mu.Unlock()
	return sub
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
