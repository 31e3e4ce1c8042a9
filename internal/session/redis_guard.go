package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultInFlightTTL bounds how long a crashed attempt can hold its scope.
const DefaultInFlightTTL = 30 * time.Second

// releaseScript deletes the in-flight key only if it still holds the
// caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares guard state between server instances.
type RedisGuard struct {
	client      *redis.Client
	prefix      string
	inFlightTTL time.Duration
}

// NewRedisGuard connects to redisURL and verifies the connection.
func NewRedisGuard(redisURL string) (*RedisGuard, error) {
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

	return NewRedisGuardWithClient(client), nil
}

// NewRedisGuardWithClient creates a guard from an existing client, e.g. the
// one already used by the record backend.
func NewRedisGuardWithClient(client *redis.Client) *RedisGuard {
	return &RedisGuard{
		client:      client,
		prefix:      "valentine:guard:",
		inFlightTTL: DefaultInFlightTTL,
	}
}

func (g *RedisGuard) inFlightKey(scope string) string {
	return g.prefix + "inflight:" + scope
}

func (g *RedisGuard) cooldownKey(scope string) string {
	return g.prefix + "cooldown:" + scope
}

func (g *RedisGuard) Begin(ctx context.Context, scope string, cooldown time.Duration) (Release, error) {
	token := uuid.NewString()
	inFlightKey := g.inFlightKey(scope)

	acquired, err := g.client.SetNX(ctx, inFlightKey, token, g.inFlightTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submission slot: %w", err)
	}
	if !acquired {
		return nil, ErrInFlight
	}

	release := g.release(inFlightKey, token)
	if cooldown > 0 {
		fresh, err := g.client.SetNX(ctx, g.cooldownKey(scope), 1, cooldown).Result()
		if err != nil {
			release()
			return nil, fmt.Errorf("start cooldown: %w", err)
		}
		if !fresh {
			release()
			return nil, ErrCooldown
		}
	}
	return release, nil
}

func (g *RedisGuard) release(key, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// on failure the TTL frees the slot
			_ = releaseScript.Run(ctx, g.client, []string{key}, token).Err()
		})
	}
}

// Ping checks if Redis is reachable.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
