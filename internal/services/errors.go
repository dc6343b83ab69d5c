package services

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout             = errors.New("upstream request timed out")
	ErrNotFound            = errors.New("upstream resource not found")
	ErrRateLimited         = errors.New("upstream rate limit exhausted")
	ErrMalformedPayload    = errors.New("malformed upstream payload")
	ErrPersistenceConflict = errors.New("persistence conflict")
)

// UpstreamError is a non-2xx response that is neither a 404 nor a rate limit
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Outcome tags the result of a fetch or upsert so callers handle every case
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeCached
	OutcomeRefreshed
	OutcomeStale
	OutcomeBelowThreshold
	OutcomeNotFound
	OutcomeRateLimited
)

var outcomeNames = map[Outcome]string{
	OutcomeFailed:         "failed",
	OutcomeCreated:        "created",
	OutcomeUpdated:        "updated",
	OutcomeCached:         "cached",
	OutcomeRefreshed:      "refreshed",
	OutcomeStale:          "stale",
	OutcomeBelowThreshold: "below_threshold",
	OutcomeNotFound:       "not_found",
	OutcomeRateLimited:    "rate_limited",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// OK reports whether the outcome carries a usable record
func (o Outcome) OK() bool {
	switch o {
	case OutcomeCreated, OutcomeUpdated, OutcomeCached, OutcomeRefreshed, OutcomeStale:
		return true
	}
	return false
}

// OutcomeFromError maps a fetch error to the outcome reported for the item
func OutcomeFromError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeUpdated
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeFailed
	}
}
