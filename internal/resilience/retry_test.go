package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/studio-suggest/internal/apperr"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_RetriesUntilCommit(t *testing.T) {
	tests := []struct {
		name     string
		failures []error
		attempts int
		wantErr  bool
		calls    int
	}{
		{"commits first time", nil, 3, false, 1},
		{"serialization failure then commit", []error{&pgconn.PgError{Code: "40001"}}, 3, false, 2},
		{"lost cas then commit", []error{&apperr.ConcurrencyError{ID: "s-1", Expected: "approved"}}, 3, false, 2},
		{"sqlite busy twice then commit", []error{
			errors.New("database is locked"),
			eris.Wrap(errors.New("SQLITE_BUSY"), "store: begin"),
		}, 3, false, 3},
		{"deadlocks exhaust attempts", []error{
			&pgconn.PgError{Code: "40P01"},
			&pgconn.PgError{Code: "40P01"},
			&pgconn.PgError{Code: "40P01"},
		}, 3, true, 3},
		{"illegal transition is final", []error{apperr.IllegalTransition("s-1", "apply", "applied")}, 3, true, 1},
		{"validation is final", []error{apperr.MissingData("payload.title")}, 3, true, 1},
		{"missing target is final", []error{apperr.NotFound("target", "P-9")}, 3, true, 1},
		{"unique violation is final", []error{&pgconn.PgError{Code: "23505"}}, 3, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := Do(context.Background(), fastRetry(tt.attempts), func(_ context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.failures[len(tt.failures)-1], err, "last error is returned as-is")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.calls, calls)
		})
	}
}

func TestDoVal_ReturnsSuggestionID(t *testing.T) {
	var calls atomic.Int32
	id, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", &apperr.ConcurrencyError{ID: "s-1", Expected: "pending"}
		}
		return "s-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	n, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 42, apperr.Invalid("bad decision")
	})
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestDo_CancelledContextStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Second, MaxBackoff: time.Second}

	var calls int
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(_ context.Context) error {
			calls++
			return &pgconn.PgError{Code: "40001"}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	sentinel := errors.New("handler busy")
	var retried []int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ZeroConfigUsesDefaults(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{InitialBackoff: time.Millisecond}, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("conn closed"), "")
	})
	require.Error(t, err)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, calls)
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 25 * time.Millisecond,
		MaxBackoff:     150 * time.Millisecond,
		Multiplier:     2,
	}
	assert.Equal(t, 25*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 50*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 100*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, 150*time.Millisecond, computeBackoff(3, cfg), "capped")

	cfg.JitterFraction = 0.5
	for i := 0; i < 50; i++ {
		d := computeBackoff(1, cfg)
		assert.GreaterOrEqual(t, d, 25*time.Millisecond)
		assert.LessOrEqual(t, d, 75*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	log := RetryLogger("apply", "s-1")
	assert.NotPanics(t, func() { log(1, &pgconn.PgError{Code: "40001"}) })
}
