// Package session guards user submissions: a per-scope cooldown between
// attempts and at most one attempt in flight at a time.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCooldown is returned when the scope was used less than the
	// cooldown ago.
	ErrCooldown = errors.New("submission cooling down")
	// ErrInFlight is returned while an earlier attempt on the scope has not
	// been released.
	ErrInFlight = errors.New("submission already in flight")
)

// Release ends an attempt started by Begin. It is safe to call more than
// once.
type Release func()

// Guard serializes attempts per scope. Scopes are opaque strings such as
// "create:<client id>" or "accept:<proposal id>".
type Guard interface {
	// Begin starts an attempt. A zero cooldown disables the cooldown check.
	Begin(ctx context.Context, scope string, cooldown time.Duration) (Release, error)
}

func CreateScope(clientID string) string {
	return "create:" + clientID
}

func AcceptScope(proposalID string) string {
	return "accept:" + proposalID
}

// MemoryGuard keeps guard state in process. Cooldowns are stored as expiry
// times and swept once they pass, so one-shot scopes do not accumulate.
type MemoryGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	until    map[string]time.Time
	now      func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		inFlight: make(map[string]struct{}),
		until:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (g *MemoryGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func (g *MemoryGuard) Begin(ctx context.Context, scope string, cooldown time.Duration) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[scope]; busy {
		return nil, ErrInFlight
	}
	now := g.now()
	g.sweep(now)
	if cooldown > 0 {
		if _, cooling := g.until[scope]; cooling {
			return nil, ErrCooldown
		}
		g.until[scope] = now.Add(cooldown)
	}
	g.inFlight[scope] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, scope)
			g.mu.Unlock()
		})
	}, nil
}

// sweep drops cooldowns that have ended. Callers hold g.mu.
func (g *MemoryGuard) sweep(now time.Time) {
	for scope, until := range g.until {
		if !now.Before(until) {
			delete(g.until, scope)
		}
	}
}
