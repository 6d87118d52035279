package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited reports that a fixed-window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable reports that the counter backend could not be reached.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError carries the wait time of a rejected hit. It matches
// [ErrRateLimited] with errors.Is.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string { return ErrRateLimited.Error() }

func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter extracts the wait time from err, or zero.
func RetryAfter(err error) time.Duration {
	var le *LimitError
	if errors.As(err, &le) {
		return le.RetryAfter
	}
	return 0
}
