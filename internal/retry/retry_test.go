package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
	"github.com/arn-dev/httpagent/internal/retry"
)

func TestScheduleDoublesUntilCapped(t *testing.T) {
	s := retry.NewSchedule()

	got := []time.Duration{
		s.NextBackOff(),
		s.NextBackOff(),
		s.NextBackOff(),
		s.NextBackOff(),
	}
	assert.Equal(t, []time.Duration{
		125 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		1000 * time.Millisecond,
	}, got)

	for i := 0; i < 10; i++ {
		s.NextBackOff()
	}
	assert.Equal(t, 10*time.Second, s.NextBackOff())
}

func TestScheduleResetRewindsToInitial(t *testing.T) {
	s := retry.NewSchedule()
	s.NextBackOff()
	s.NextBackOff()

	s.Reset()
	assert.Equal(t, 125*time.Millisecond, s.NextBackOff())
}

func TestDoRetriesTransportFailureOnIdempotentMethod(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		if attempts < 3 {
			return nil, herr.New(herr.ConnectFailure, "dial", errors.New("refused"))
		}
		return &model.Response{StatusCode: 200}, nil
	}

	resp, err := retry.Do(context.Background(), "GET", true, retry.Policy{Cap: 5}, nil, attempt)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonIdempotentMethod(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		return nil, herr.New(herr.ConnectFailure, "dial", errors.New("refused"))
	}

	_, err := retry.Do(context.Background(), "POST", true, retry.Policy{Cap: 5}, nil, attempt)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoDoesNotRetryWhenBodyNotRestartable(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		return nil, herr.New(herr.ConnectFailure, "dial", errors.New("refused"))
	}

	_, err := retry.Do(context.Background(), "GET", false, retry.Policy{Cap: 5}, nil, attempt)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoDoesNotRetryNonTransportErrorKind(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		return nil, herr.New(herr.ProtocolError, "frame", errors.New("bad frame"))
	}

	_, err := retry.Do(context.Background(), "GET", true, retry.Policy{Cap: 5}, nil, attempt)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoDoesNotRetryPlainError(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		return nil, errors.New("boom")
	}

	_, err := retry.Do(context.Background(), "GET", true, retry.Policy{Cap: 5}, nil, attempt)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoZeroCapBypassesRetryEntirely(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		return nil, herr.New(herr.ConnectFailure, "dial", errors.New("refused"))
	}

	_, err := retry.Do(context.Background(), "GET", true, retry.Policy{Cap: 0}, nil, attempt)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsCapAndReturnsLastError(t *testing.T) {
	attempts := 0
	wantErr := herr.New(herr.TransportReset, "read", errors.New("connection reset"))
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		return nil, wantErr
	}

	_, err := retry.Do(context.Background(), "GET", true, retry.Policy{Cap: 2}, nil, attempt)
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // first attempt + 2 retries
	assert.ErrorIs(t, err, wantErr)
}

func TestDoRetriesTransportResetKind(t *testing.T) {
	attempts := 0
	attempt := func(ctx context.Context) (*model.Response, error) {
		attempts++
		if attempts < 2 {
			return nil, herr.New(herr.TransportReset, "read", errors.New("connection reset"))
		}
		return &model.Response{StatusCode: 200}, nil
	}

	resp, err := retry.Do(context.Background(), "HEAD", true, retry.Policy{Cap: 3}, nil, attempt)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
