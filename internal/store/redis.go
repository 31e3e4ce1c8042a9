package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "valentine:"

// RedisStore keeps each record as a JSON string and announces changes on a
// per-record channel. Subscribers re-read the key on every announcement, so
// what they see is always the stored value rather than a message payload.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed record store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
	}
}

// Client exposes the underlying connection so other components can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) key(path string) string {
	return s.prefix + path
}

func (s *RedisStore) channel(path string) string {
	return s.prefix + "changes:" + path
}

func (s *RedisStore) Read(ctx context.Context, path string) (Record, error) {
	raw, err := s.client.Get(ctx, s.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) Write(ctx context.Context, path string, value Record) error {
	payload, err := encodeRecord(value)
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(path), payload, 0)
		pipe.Publish(ctx, s.channel(path), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// PartialUpdate merges fields into the stored value under WATCH. A
// concurrent modification aborts the update with redis.TxFailedErr; it is
// not retried.
func (s *RedisStore) PartialUpdate(ctx context.Context, path string, fields Record) error {
	key := s.key(path)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current := Record{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			decoded, err := decodeRecord(raw)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if decoded != nil {
				current = decoded
			}
		}
		for field, value := range fields {
			current[field] = value
		}
		payload, err := encodeRecord(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel(path), path).Err(); err != nil {
		return fmt.Errorf("announce update: %w", err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, onValue func(Record), onError func(error)) (Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(path))
	// wait for the subscription to be confirmed so no change is missed
	// between the initial read and the first message
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	messages := pubsub.Channel()

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	deliver := func() bool {
		record, err := s.Read(subCtx, path)
		if errors.Is(err, ErrNotFound) {
			onValue(nil)
			return true
		}
		if err != nil {
			if subCtx.Err() == nil && onError != nil {
				onError(err)
			}
			return false
		}
		if subCtx.Err() != nil {
			return false
		}
		onValue(record)
		return true
	}

	go func() {
		if !deliver() {
			return
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				if !deliver() {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
