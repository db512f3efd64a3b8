package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fakeyudi/howl/internal/normalize"
)

// APIError is a non-success reply from a backend.
type APIError struct {
	Backend    string
	StatusCode int    // HTTP status; 0 when the reply was unusable rather than rejected
	Status     string // backend-specific status, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *APIError) Error() string {
	status := e.Status
	if status == "" && e.StatusCode != 0 {
		status = http.StatusText(e.StatusCode)
	}
	if status == "" {
		return fmt.Sprintf("%s API error: %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("%s API error (%s): %s", e.Backend, status, e.Message)
}

// ExhaustedError is returned when every allowed attempt failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts. Last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Class is the retry category of a failed call.
type Class int

const (
	// ClassTransient covers network failures, timeouts and anything
	// unrecognised. Retried with exponential backoff.
	ClassTransient Class = iota
	// ClassServer is a 5xx reply. Retried with exponential backoff.
	ClassServer
	// ClassRateLimited is a 429 reply. Retried with linear backoff.
	ClassRateLimited
	// ClassClient is any other 4xx reply. Not retried.
	ClassClient
	// ClassMalformed is a reply that could not be normalized. Not retried.
	ClassMalformed
	// ClassCanceled means the caller gave up. Not retried.
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassServer:
		return "server"
	case ClassRateLimited:
		return "rate-limited"
	case ClassClient:
		return "client"
	case ClassMalformed:
		return "malformed"
	case ClassCanceled:
		return "canceled"
	default:
		return "transient"
	}
}

// Retryable reports whether a failure of this class is worth another attempt.
func (c Class) Retryable() bool {
	return c == ClassTransient || c == ClassServer || c == ClassRateLimited
}

// Classify sorts err into a retry class.
func Classify(err error) Class {
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ClassRateLimited
		case apiErr.StatusCode >= 500:
			return ClassServer
		case apiErr.StatusCode >= 400:
			return ClassClient
		}
		return ClassTransient
	}
	var normErr *normalize.Error
	if errors.As(err, &normErr) {
		return ClassMalformed
	}
	return ClassTransient
}

// RetryPolicy bounds and paces retries. The zero value is usable and
// equivalent to DefaultRetryPolicy.
type RetryPolicy struct {
	MaxAttempts   int           // total tries, including the first
	BaseDelay     time.Duration // exponential backoff unit: BaseDelay * 2^attempt
	RateLimitStep time.Duration // linear backoff unit for 429: RateLimitStep * attempt

	// Sleep waits for d or until ctx is done. Tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the pacing the hosted backends tolerate.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		RateLimitStep: 10 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.RateLimitStep <= 0 {
		p.RateLimitStep = d.RateLimitStep
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Delay is the wait before the retry that follows failed attempt number
// attempt (1-based).
func (p RetryPolicy) Delay(c Class, attempt int) time.Duration {
	p = p.withDefaults()
	if c == ClassRateLimited {
		return p.RateLimitStep * time.Duration(attempt)
	}
	return p.BaseDelay * time.Duration(1<<attempt)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget runs out. Cancelling ctx stops both the in-flight call and
// any pending backoff.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, op func(ctx context.Context) error) error {
	p = p.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		}

		class := Classify(err)
		if !class.Retryable() {
			return err
		}
		last = err
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Delay(class, attempt)
		log.Warn("backend call failed, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"class", class.String(),
			"wait", wait,
			"err", err,
		)
		if err := p.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
