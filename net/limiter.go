package net

import (
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// TokenLimiter is a token bucket, used to bound inbound messages per connection.
// Limits can be swapped at runtime.
type TokenLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenLimiter allows limit events per second with bursts up to burst.
func NewTokenLimiter(limit int, burst int) *TokenLimiter {
	l := &TokenLimiter{}
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
	return l
}

// Allow takes a token if one is available.
func (l *TokenLimiter) Allow() bool {
	return l.limiter.Load().Allow()
}

// Reload replaces the rate; the bucket starts full.
func (l *TokenLimiter) Reload(limit int, burst int) {
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// FunnelLimiter is a leaky bucket, used to pace outbound writes.
type FunnelLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewFunnelLimiter lets through at most limit events per second, evenly spaced.
func NewFunnelLimiter(limit int) *FunnelLimiter {
	limiter := ratelimit.New(limit)
	l := &FunnelLimiter{}
	l.limiter.Store(&limiter)
	return l
}

// Take blocks until the next event may pass.
func (l *FunnelLimiter) Take() time.Time {
	return (*l.limiter.Load()).Take()
}

// Reload replaces the rate.
func (l *FunnelLimiter) Reload(limit int) {
	limiter := ratelimit.New(limit)
	l.limiter.Store(&limiter)
}
