package services

import (
	"sync"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
)

const (
	authenticatedBudget   = 5000
	unauthenticatedBudget = 60
)

// RateLimiter mirrors the upstream's view of the request budget.
// It never blocks; callers ask HasBudget before paginating further.
type RateLimiter struct {
	mu            sync.RWMutex
	remaining     int
	resetAt       *time.Time
	authenticated bool
}

// NewRateLimiter starts from the documented hourly budget until the first response arrives
func NewRateLimiter(authenticated bool) *RateLimiter {
	remaining := unauthenticatedBudget
	if authenticated {
		remaining = authenticatedBudget
	}
	return &RateLimiter{remaining: remaining, authenticated: authenticated}
}

// Record overwrites the budget with the values from the latest response
func (l *RateLimiter) Record(remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.remaining = remaining
	if resetAt.IsZero() {
		l.resetAt = nil
	} else {
		reset := resetAt.UTC()
		l.resetAt = &reset
	}
	rateLimitRemaining.Set(float64(remaining))
}

// HasBudget reports whether at least threshold requests remain
func (l *RateLimiter) HasBudget(threshold int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.remaining >= threshold
}

// Remaining returns the last recorded remaining count
func (l *RateLimiter) Remaining() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.remaining
}

// Status reports the budget for health checks
func (l *RateLimiter) Status() models.RateLimitStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status := models.RateLimitStatus{
		Remaining:     l.remaining,
		Authenticated: l.authenticated,
	}
	if l.resetAt != nil {
		reset := *l.resetAt
		status.ResetAt = &reset
	}
	return status
}
