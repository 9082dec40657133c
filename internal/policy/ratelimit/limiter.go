// Package ratelimit paces page loads: a per-host token bucket shared by all
// workers plus a randomised delay per load and a longer pause between units.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds pacing configuration. Zero ranges disable the matching delay.
type Config struct {
	// RequestsPerSecond caps loads per host across all workers; <= 0 means no cap.
	RequestsPerSecond float64
	Burst             int
	PaceMin           time.Duration
	PaceMax           time.Duration
	PauseMin          time.Duration
	PauseMax          time.Duration
}

// Limiter implements crawler.Pacer.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	cfg          Config
	sleep        func(ctx context.Context, d time.Duration) error
	jitter       func(lo, hi time.Duration) time.Duration
}

// New creates a new Limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.PaceMin < 0 || cfg.PaceMax < cfg.PaceMin {
		return nil, fmt.Errorf("invalid pace range [%s, %s]", cfg.PaceMin, cfg.PaceMax)
	}
	if cfg.PauseMin < 0 || cfg.PauseMax < cfg.PauseMin {
		return nil, fmt.Errorf("invalid pause range [%s, %s]", cfg.PauseMin, cfg.PauseMax)
	}
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		cfg:          cfg,
		sleep:        sleepCtx,
		jitter:       uniform,
	}, nil
}

// Wait blocks for the host's token, then for a random delay in [PaceMin, PaceMax].
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if err := l.limiterFor(hostOf(rawURL)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if err := l.sleep(ctx, l.jitter(l.cfg.PaceMin, l.cfg.PaceMax)); err != nil {
		return fmt.Errorf("pace delay: %w", err)
	}
	return nil
}

// Pause sleeps for a random duration in [PauseMin, PauseMax] or until ctx ends.
func (l *Limiter) Pause(ctx context.Context) {
	_ = l.sleep(ctx, l.jitter(l.cfg.PauseMin, l.cfg.PauseMax))
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1) // #nosec G404 -- pacing jitter, not security sensitive.
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
