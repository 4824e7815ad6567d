// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package ratelimit throttles user authentication prompts per identity.
//
// Repeated prompts for a locked-out or hostile caller are refused before
// they reach the key store. The limiter runs no background goroutine; idle
// identities are swept lazily during Allow.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket limiter keyed by identity.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*entry
	rate      rate.Limit
	burst     int
	enabled   bool
	maxIdle   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether throttling is active.
	Enabled bool

	// PromptsPerMinute sets the sustained prompt rate.
	PromptsPerMinute int

	// Burst allows short bursts above the sustained rate.
	// If not set, defaults to PromptsPerMinute.
	Burst int

	// MaxIdle is how long an identity can be idle before its bucket is
	// dropped. Defaults to 30 minutes.
	MaxIdle time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a limiter. A nil config disables throttling.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{}
	}
	burst := config.Burst
	if burst <= 0 {
		burst = config.PromptsPerMinute
	}
	maxIdle := config.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		limiters: make(map[string]*entry),
		rate:     rate.Limit(float64(config.PromptsPerMinute) / 60.0),
		burst:    burst,
		enabled:  config.Enabled && config.PromptsPerMinute > 0,
		maxIdle:  maxIdle,
		now:      now,
	}
}

// Allow reports whether a prompt for id may proceed, consuming a token if
// so. A nil or disabled limiter allows everything.
func (l *Limiter) Allow(id string) bool {
	if l == nil || !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.limiters[id]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[id] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Reset forgets the bucket for id, e.g. after its keys are deleted.
func (l *Limiter) Reset(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, id)
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]any{
		"enabled":            l.enabled,
		"active_identities":  len(l.limiters),
		"prompts_per_minute": float64(l.rate) * 60,
		"burst":              l.burst,
	}
}

// sweep drops idle buckets at most once per maxIdle.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.maxIdle {
		return
	}
	l.lastSweep = now
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.maxIdle {
			delete(l.limiters, id)
		}
	}
}
