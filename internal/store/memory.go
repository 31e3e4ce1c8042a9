package store

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps records in process. Values are stored JSON-encoded so
// readers observe the same shapes as from the networked backends.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	subs    map[string]map[uint64]*memorySubscriber
	nextSub uint64
	closed  bool
}

// NewMemoryStore creates an empty in-process backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
		subs:    make(map[string]map[uint64]*memorySubscriber),
	}
}

func (s *MemoryStore) Read(ctx context.Context, path string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	raw, ok := s.records[path]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(raw)
}

func (s *MemoryStore) Write(ctx context.Context, path string, value Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodeRecord(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records[path] = payload
	s.notifyLocked(path)
	return nil
}

func (s *MemoryStore) PartialUpdate(ctx context.Context, path string, fields Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	current := Record{}
	if raw, ok := s.records[path]; ok {
		decoded, err := decodeRecord(raw)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if decoded != nil {
			current = decoded
		}
	}
	for key, value := range fields {
		current[key] = value
	}
	payload, err := encodeRecord(current)
	if err != nil {
		return err
	}
	s.records[path] = payload
	s.notifyLocked(path)
	return nil
}

// Delete removes the record at path. The proposal flow never deletes; this
// exists to simulate external edits of the data.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.records, path)
	s.notifyLocked(path)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, onValue func(Record), onError func(error)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	s.nextSub++
	id := s.nextSub
	sub := newMemorySubscriber(onValue)
	if s.subs[path] == nil {
		s.subs[path] = make(map[uint64]*memorySubscriber)
	}
	s.subs[path][id] = sub
	sub.push(s.currentLocked(path))
	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if subs := s.subs[path]; subs != nil {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.subs, path)
				}
			}
			s.mu.Unlock()
			sub.stop()
		})
	}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// Close stops every live subscription. Later operations fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	s.subs = make(map[string]map[uint64]*memorySubscriber)
	return nil
}

// Subscribers reports how many listeners are attached to path.
func (s *MemoryStore) Subscribers(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[path])
}

func (s *MemoryStore) currentLocked(path string) Record {
	raw, ok := s.records[path]
	if !ok {
		return nil
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return nil
	}
	return record
}

func (s *MemoryStore) notifyLocked(path string) {
	subs := s.subs[path]
	if len(subs) == 0 {
		return
	}
	current := s.currentLocked(path)
	for _, sub := range subs {
		sub.push(current.Clone())
	}
}

// memorySubscriber delivers queued values in order without blocking writers.
type memorySubscriber struct {
	onValue func(Record)

	mu    sync.Mutex
	queue []Record
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newMemorySubscriber(onValue func(Record)) *memorySubscriber {
	return &memorySubscriber{
		onValue: onValue,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (m *memorySubscriber) push(record Record) {
	m.mu.Lock()
	m.queue = append(m.queue, record)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *memorySubscriber) stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *memorySubscriber) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			next := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			select {
			case <-m.done:
				return
			default:
			}
			m.onValue(next)
		}
	}
}
