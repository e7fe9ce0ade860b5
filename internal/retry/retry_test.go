package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		header        http.Header
		body          string
		wantTransient bool
		wantDelay     time.Duration
	}{
		{
			name:          "rate limited with Retry-After seconds",
			status:        http.StatusTooManyRequests,
			header:        http.Header{"Retry-After": []string{"3"}},
			wantTransient: true,
			wantDelay:     3 * time.Second,
		},
		{
			name:          "server error is transient",
			status:        http.StatusBadGateway,
			wantTransient: true,
		},
		{
			name:          "client error is permanent",
			status:        http.StatusNotFound,
			body:          "no such playlist",
			wantTransient: false,
		},
		{
			name:          "unauthorized is permanent",
			status:        http.StatusUnauthorized,
			wantTransient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			if resp.Header == nil {
				resp.Header = http.Header{}
			}

			err := FromResponse(resp, []byte(tt.body))
			if err.Transient != tt.wantTransient {
				t.Errorf("Transient = %v, want %v", err.Transient, tt.wantTransient)
			}
			if err.RetryAfter != tt.wantDelay {
				t.Errorf("RetryAfter = %v, want %v", err.RetryAfter, tt.wantDelay)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
			if tt.body != "" && !strings.Contains(err.Error(), tt.body) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.body)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("seconds form", func(t *testing.T) {
		h := http.Header{"Retry-After": []string{"10"}}
		delay, ok := retryAfter(h, now)
		if !ok || delay != 10*time.Second {
			t.Errorf("retryAfter = (%v, %v), want (10s, true)", delay, ok)
		}
	})

	t.Run("http date form", func(t *testing.T) {
		h := http.Header{"Retry-After": []string{now.Add(30 * time.Second).Format(http.TimeFormat)}}
		delay, ok := retryAfter(h, now)
		if !ok || delay != 30*time.Second {
			t.Errorf("retryAfter = (%v, %v), want (30s, true)", delay, ok)
		}
	})

	t.Run("past date floors to minimum", func(t *testing.T) {
		h := http.Header{"Retry-After": []string{now.Add(-time.Hour).Format(http.TimeFormat)}}
		delay, ok := retryAfter(h, now)
		if !ok || delay != minRetryAfter {
			t.Errorf("retryAfter = (%v, %v), want (%v, true)", delay, ok, minRetryAfter)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		if _, ok := retryAfter(http.Header{}, now); ok {
			t.Error("expected ok = false for missing header")
		}
	})

	t.Run("garbage value", func(t *testing.T) {
		h := http.Header{"Retry-After": []string{"soon"}}
		if _, ok := retryAfter(h, now); ok {
			t.Error("expected ok = false for unparseable header")
		}
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"transient provider error", &ProviderError{StatusCode: 503, Transient: true}, true},
		{"permanent provider error", &ProviderError{StatusCode: 400}, false},
		{"wrapped provider error", errors.Join(errors.New("outer"), &ProviderError{StatusCode: 500, Transient: true}), true},
		{
			"oauth retrieve 429",
			&oauth2.RetrieveError{Response: &http.Response{StatusCode: 429, Header: http.Header{}}},
			true,
		},
		{
			"oauth retrieve 400",
			&oauth2.RetrieveError{Response: &http.Response{StatusCode: 400, Header: http.Header{}}},
			false,
		},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		base := backoffBase << (attempt - 1)
		for i := 0; i < 20; i++ {
			d := Backoff(attempt)
			if d < base+jitterMin || d > base+jitterMax {
				t.Fatalf("Backoff(%d) = %v, want within [%v, %v]", attempt, d, base+jitterMin, base+jitterMax)
			}
		}
	}

	if d := Backoff(0); d < backoffBase {
		t.Errorf("Backoff(0) = %v, want at least %v", d, backoffBase)
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds first attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), nil, func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("Do returned error: %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("retries transient then succeeds", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), nil, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &ProviderError{StatusCode: 503, Transient: true, RetryAfter: time.Millisecond}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do returned error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("server delay wins over computed backoff", func(t *testing.T) {
		// Backoff(1) is at least backoffBase+jitterMin, so a wait shorter
		// than that proves the server-suggested delay was used.
		suggested := 100 * time.Millisecond

		calls := 0
		start := time.Now()
		err := Do(context.Background(), nil, func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return &ProviderError{StatusCode: 429, Transient: true, RetryAfter: suggested}
			}
			return nil
		})
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("Do returned error: %v", err)
		}
		if calls != 2 {
			t.Fatalf("calls = %d, want 2", calls)
		}
		if elapsed < suggested {
			t.Errorf("elapsed = %v, want at least the suggested %v", elapsed, suggested)
		}
		if elapsed >= backoffBase+jitterMin {
			t.Errorf("elapsed = %v, want under the minimum backoff %v", elapsed, backoffBase+jitterMin)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		wantErr := &ProviderError{StatusCode: 404}
		err := Do(context.Background(), nil, func(ctx context.Context) error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("Do returned %v, want %v", err, wantErr)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("attempt budget exhausted", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), nil, func(ctx context.Context) error {
			calls++
			return &ProviderError{StatusCode: 500, Transient: true, RetryAfter: time.Millisecond}
		})

		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("Do returned %v, want *ProviderError", err)
		}
		if calls != MaxAttempts {
			t.Errorf("calls = %d, want %d", calls, MaxAttempts)
		}
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, nil, func(ctx context.Context) error {
			calls++
			cancel()
			return &ProviderError{StatusCode: 500, Transient: true}
		})
		if err == nil {
			t.Fatal("Do returned nil, want error after cancellation")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
