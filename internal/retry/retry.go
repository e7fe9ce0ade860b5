// Package retry wraps outbound provider calls with bounded retries.
//
// Failures are classified as transient (rate limits, server errors, network
// timeouts) or permanent (other client errors). Transient failures are
// retried with exponential backoff plus jitter, preferring a server-supplied
// Retry-After delay when one is present.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// MaxAttempts caps how many times a single wrapped call is tried.
const MaxAttempts = 4

const (
	backoffBase = 400 * time.Millisecond
	jitterMin   = 200 * time.Millisecond
	jitterMax   = 1000 * time.Millisecond

	// Floor applied to a Retry-After date that has already passed.
	minRetryAfter = 500 * time.Millisecond
)

// ProviderError is the typed failure surfaced by provider calls.
//
// StatusCode is 0 when the request never reached the network. RetryAfter is
// the server-suggested delay, zero when the server offered none.
type ProviderError struct {
	StatusCode int
	Transient  bool
	RetryAfter time.Duration
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider request failed with status %d", e.StatusCode)
}

// FromResponse builds a ProviderError from a non-success HTTP response.
func FromResponse(resp *http.Response, body []byte) *ProviderError {
	transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	delay, _ := retryAfter(resp.Header, time.Now())
	msg := fmt.Sprintf("provider request failed with status %d", resp.StatusCode)
	if len(body) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, string(body))
	}
	return &ProviderError{
		StatusCode: resp.StatusCode,
		Transient:  transient,
		RetryAfter: delay,
		Message:    msg,
	}
}

// retryAfter interprets a Retry-After header as either a seconds delta or an
// absolute HTTP date minus now, floored to a small positive delay.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return minRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(raw); err == nil {
		delay := at.Sub(now)
		if delay <= 0 {
			delay = minRetryAfter
		}
		return delay, true
	}

	return 0, false
}

// IsTransient reports whether err is worth retrying.
//
// Caller cancellation is never transient; it must propagate immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Transient
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(urlErr.Err, context.Canceled)
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// SuggestedDelay extracts the server-provided retry delay from err, if any.
func SuggestedDelay(err error) (time.Duration, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.RetryAfter > 0 {
		return provErr.RetryAfter, true
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retryAfter(retrieveErr.Response.Header, time.Now())
	}

	return 0, false
}

// Backoff computes the wait before the next attempt: base * 2^(attempt-1)
// plus uniform jitter. Attempt numbering starts at 1.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := backoffBase << (attempt - 1)
	jitter := jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
	return backoff + jitter
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes op with up to MaxAttempts attempts.
//
// A transient failure with attempts remaining waits (server delay first,
// computed backoff otherwise) and retries. A permanent failure, caller
// cancellation, or attempt exhaustion surfaces the last error unchanged.
func Do(ctx context.Context, logger *log.Logger, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return lastErr
		}

		if !IsTransient(lastErr) || attempt == MaxAttempts {
			return lastErr
		}

		delay, ok := SuggestedDelay(lastErr)
		if !ok {
			delay = Backoff(attempt)
		}

		if logger != nil {
			logger.Warn("retrying provider call", "attempt", attempt, "delay", delay, "err", lastErr)
		}

		if err := Sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	return lastErr
}
