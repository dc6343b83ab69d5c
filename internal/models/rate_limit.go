package models

import "time"

// RateLimitStatus is the upstream request budget as last reported by GitHub
type RateLimitStatus struct {
	Remaining     int        `json:"remaining"`
	ResetAt       *time.Time `json:"reset_at"`
	Authenticated bool       `json:"authenticated"`
}
