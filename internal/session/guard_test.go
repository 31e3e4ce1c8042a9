package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	guard, err := NewRedisGuard("redis://" + s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })
	return guard, s
}

// guardHarness lets the same behaviour run against both guards.
type guardHarness struct {
	guard   Guard
	advance func(time.Duration)
}

func harnesses(t *testing.T) map[string]func(t *testing.T) guardHarness {
	return map[string]func(t *testing.T) guardHarness{
		"memory": func(t *testing.T) guardHarness {
			g := NewMemoryGuard()
			now := time.Unix(1739500000, 0)
			g.SetClock(func() time.Time { return now })
			return guardHarness{guard: g, advance: func(d time.Duration) { now = now.Add(d) }}
		},
		"redis": func(t *testing.T) guardHarness {
			g, s := setupTestRedis(t)
			return guardHarness{guard: g, advance: s.FastForward}
		},
	}
}

func TestGuardCooldown(t *testing.T) {
	for name, setup := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			h := setup(t)
			ctx := context.Background()
			scope := CreateScope("client-1")

			release, err := h.guard.Begin(ctx, scope, 3*time.Second)
			require.NoError(t, err)
			release()

			_, err = h.guard.Begin(ctx, scope, 3*time.Second)
			require.ErrorIs(t, err, ErrCooldown)

			h.advance(3 * time.Second)
			release, err = h.guard.Begin(ctx, scope, 3*time.Second)
			require.NoError(t, err)
			release()
		})
	}
}

func TestGuardInFlight(t *testing.T) {
	for name, setup := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			h := setup(t)
			ctx := context.Background()
			scope := AcceptScope("val_0123456789")

			release, err := h.guard.Begin(ctx, scope, 0)
			require.NoError(t, err)

			_, err = h.guard.Begin(ctx, scope, 0)
			require.ErrorIs(t, err, ErrInFlight)

			release()
			release()

			again, err := h.guard.Begin(ctx, scope, 0)
			require.NoError(t, err)
			again()
		})
	}
}

func TestGuardScopesAreIndependent(t *testing.T) {
	for name, setup := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			h := setup(t)
			ctx := context.Background()

			first, err := h.guard.Begin(ctx, CreateScope("a"), time.Second)
			require.NoError(t, err)
			defer first()

			second, err := h.guard.Begin(ctx, CreateScope("b"), time.Second)
			require.NoError(t, err)
			second()
		})
	}
}

func TestGuardInFlightCheckedBeforeCooldown(t *testing.T) {
	for name, setup := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			h := setup(t)
			ctx := context.Background()
			scope := CreateScope("client-2")

			release, err := h.guard.Begin(ctx, scope, time.Second)
			require.NoError(t, err)
			defer release()

			_, err = h.guard.Begin(ctx, scope, time.Second)
			assert.ErrorIs(t, err, ErrInFlight)
		})
	}
}

func TestRedisGuardStaleReleaseKeepsNewHolder(t *testing.T) {
	g, s := setupTestRedis(t)
	ctx := context.Background()
	scope := AcceptScope("val_0123456789")

	stale, err := g.Begin(ctx, scope, 0)
	require.NoError(t, err)

	s.FastForward(DefaultInFlightTTL + time.Second)
	current, err := g.Begin(ctx, scope, 0)
	require.NoError(t, err)
	defer current()

	stale()
	_, err = g.Begin(ctx, scope, 0)
	assert.ErrorIs(t, err, ErrInFlight)
}

func TestRedisGuardKeyLayout(t *testing.T) {
	g, s := setupTestRedis(t)

	release, err := g.Begin(context.Background(), CreateScope("c1"), 3*time.Second)
	require.NoError(t, err)

	assert.True(t, s.Exists("valentine:guard:inflight:create:c1"))
	assert.True(t, s.Exists("valentine:guard:cooldown:create:c1"))
	assert.Equal(t, 3*time.Second, s.TTL("valentine:guard:cooldown:create:c1"))

	release()
	assert.False(t, s.Exists("valentine:guard:inflight:create:c1"))
}

func TestNewRedisGuardRejectsBadURL(t *testing.T) {
	_, err := NewRedisGuard("not-a-url://")
	assert.Error(t, err)
}

func TestMemoryGuardHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryGuard().Begin(ctx, CreateScope("x"), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryGuardDropsEndedCooldowns(t *testing.T) {
	g := NewMemoryGuard()
	now := time.Unix(1739500000, 0)
	g.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		release, err := g.Begin(ctx, CreateScope(fmt.Sprintf("client-%d", i)), 3*time.Second)
		require.NoError(t, err)
		release()
		now = now.Add(time.Minute)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Len(t, g.until, 1, "only the latest scope is still cooling down")
	assert.Empty(t, g.inFlight)
}

func TestMemoryGuardKeepsActiveCooldowns(t *testing.T) {
	g := NewMemoryGuard()
	now := time.Unix(1739500000, 0)
	g.SetClock(func() time.Time { return now })
	ctx := context.Background()

	release, err := g.Begin(ctx, CreateScope("slow"), time.Minute)
	require.NoError(t, err)
	release()

	now = now.Add(10 * time.Second)
	release, err = g.Begin(ctx, CreateScope("other"), 3*time.Second)
	require.NoError(t, err)
	release()

	_, err = g.Begin(ctx, CreateScope("slow"), time.Minute)
	assert.ErrorIs(t, err, ErrCooldown)
}
