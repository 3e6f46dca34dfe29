// Package retry wraps the redirect loop with a transport-fault retry
// policy: only idempotent methods, only transport-retryable failure
// kinds, only when the request body can be replayed, and only up to a
// configured budget. A response with any status code, even 5xx, is
// never retried here — that classification lives with the caller.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
)

// Policy configures the retry loop.
type Policy struct {
	// Cap is the maximum number of retry attempts after the first. 0
	// disables retries.
	Cap int
}

// DefaultPolicy matches the documented default of 5 retries.
var DefaultPolicy = Policy{Cap: 5}

// Schedule is the documented default backoff sequence: 125ms, 250ms,
// 500ms, 1000ms, doubling each attempt, capped at MaxInterval. It
// implements backoff.BackOff directly instead of configuring
// backoff.ExponentialBackOff's jittered growth, since the documented
// sequence is exact rather than randomized.
type Schedule struct {
	Initial     time.Duration
	MaxInterval time.Duration

	current time.Duration
}

var _ backoff.BackOff = (*Schedule)(nil)

// NewSchedule builds a Schedule with the documented defaults.
func NewSchedule() *Schedule {
	return &Schedule{Initial: 125 * time.Millisecond, MaxInterval: 10 * time.Second}
}

// Reset rewinds the schedule to its initial interval.
func (s *Schedule) Reset() { s.current = 0 }

// NextBackOff returns the next interval in the doubling sequence.
func (s *Schedule) NextBackOff() time.Duration {
	if s.current == 0 {
		s.current = s.Initial
	} else {
		s.current *= 2
	}
	if s.current > s.MaxInterval {
		s.current = s.MaxInterval
	}
	return s.current
}

// Attempt performs one send, including any redirects it follows.
type Attempt func(ctx context.Context) (*model.Response, error)

// Do runs attempt, retrying on transport-retryable failures per
// policy. method and bodyRestartable describe the outermost request
// that initiated the send (redirects may change method/body mid-chain,
// but the retry loop only ever resends the original).
func Do(ctx context.Context, method string, bodyRestartable bool, policy Policy, bo backoff.BackOff, attempt Attempt) (*model.Response, error) {
	if policy.Cap <= 0 {
		return attempt(ctx)
	}
	if bo == nil {
		bo = NewSchedule()
	} else {
		bo.Reset()
	}

	return backoff.Retry(ctx, func() (*model.Response, error) {
		resp, err := attempt(ctx)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(method, bodyRestartable, err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(policy.Cap)+1))
}

func isRetryable(method string, bodyRestartable bool, err error) bool {
	if !bodyRestartable || !isIdempotent(method) {
		return false
	}
	kind, ok := herr.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case herr.ConnectFailure, herr.TransportReset:
		return true
	default:
		return false
	}
}

func isIdempotent(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS", "TRACE", "PUT", "DELETE":
		return true
	default:
		return false
	}
}
