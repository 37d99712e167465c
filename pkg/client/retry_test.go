package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// newTestExecutor returns an executor whose sleeps are recorded instead of
// taken, plus the recorded wait durations.
func newTestExecutor(config RetryConfig) (*Executor, *[]time.Duration) {
	executor := NewExecutor(config)
	waits := &[]time.Duration{}
	executor.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return executor, waits
}

func makeResponse(statusCode int, body string, headers map[string]string) *http.Response {
	header := http.Header{}
	for key, value := range headers {
		header.Set(key, value)
	}
	return &http.Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	executor, waits := newTestExecutor(DefaultRetryConfig())

	callCount := 0
	resp, err := executor.Do(context.Background(), func() (*http.Response, error) {
		callCount++
		return makeResponse(200, `{"ok":true}`, nil), nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if len(*waits) != 0 {
		t.Errorf("Expected no waits on immediate success, got %v", *waits)
	}
}

func TestExecutor_SuccessAfterRetryableFailures(t *testing.T) {
	tests := []struct {
		name          string
		failures      []func() (*http.Response, error)
		expectedCalls int
	}{
		{
			name: "429 then 500 then success",
			failures: []func() (*http.Response, error){
				func() (*http.Response, error) { return makeResponse(429, "", nil), nil },
				func() (*http.Response, error) { return makeResponse(500, "", nil), nil },
			},
			expectedCalls: 3,
		},
		{
			name: "network error then success",
			failures: []func() (*http.Response, error){
				func() (*http.Response, error) { return nil, errors.New("connection reset") },
			},
			expectedCalls: 2,
		},
		{
			name: "four failures then success on last attempt",
			failures: []func() (*http.Response, error){
				func() (*http.Response, error) { return nil, errors.New("timeout") },
				func() (*http.Response, error) { return makeResponse(503, "", nil), nil },
				func() (*http.Response, error) { return makeResponse(429, "", nil), nil },
				func() (*http.Response, error) { return makeResponse(502, "", nil), nil },
			},
			expectedCalls: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, _ := newTestExecutor(DefaultRetryConfig())

			callCount := 0
			resp, err := executor.Do(context.Background(), func() (*http.Response, error) {
				callCount++
				if callCount <= len(tt.failures) {
					return tt.failures[callCount-1]()
				}
				return makeResponse(200, `{}`, nil), nil
			})

			if err != nil {
				t.Fatalf("Expected success, got %v", err)
			}
			resp.Body.Close()
			if callCount != tt.expectedCalls {
				t.Errorf("Expected %d calls, got %d", tt.expectedCalls, callCount)
			}
			if callCount > 5 {
				t.Errorf("Made more than 5 attempts: %d", callCount)
			}
		})
	}
}

func TestExecutor_RetryAfterHonored(t *testing.T) {
	executor, waits := newTestExecutor(DefaultRetryConfig())

	callCount := 0
	resp, err := executor.Do(context.Background(), func() (*http.Response, error) {
		callCount++
		if callCount == 1 {
			return makeResponse(429, "", map[string]string{"Retry-After": "7"}), nil
		}
		return makeResponse(200, `{}`, nil), nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	resp.Body.Close()

	if len(*waits) != 1 {
		t.Fatalf("Expected 1 wait, got %d", len(*waits))
	}
	// The server-directed wait wins over the 1s exponential default.
	if (*waits)[0] != 7*time.Second {
		t.Errorf("Wait = %v, want 7s from Retry-After header", (*waits)[0])
	}
}

func TestExecutor_RetryAfterUnparseableFallsBack(t *testing.T) {
	executor, waits := newTestExecutor(DefaultRetryConfig())

	callCount := 0
	resp, err := executor.Do(context.Background(), func() (*http.Response, error) {
		callCount++
		if callCount == 1 {
			return makeResponse(429, "", map[string]string{"Retry-After": "soon"}), nil
		}
		return makeResponse(200, `{}`, nil), nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	resp.Body.Close()

	if len(*waits) != 1 {
		t.Fatalf("Expected 1 wait, got %d", len(*waits))
	}
	if (*waits)[0] != 1*time.Second {
		t.Errorf("Wait = %v, want 1s exponential default", (*waits)[0])
	}
}

func TestExecutor_ClientErrorNoRetry(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{name: "bad request", statusCode: 400},
		{name: "unauthorized", statusCode: 401},
		{name: "forbidden", statusCode: 403},
		{name: "not found", statusCode: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, waits := newTestExecutor(DefaultRetryConfig())

			callCount := 0
			_, err := executor.Do(context.Background(), func() (*http.Response, error) {
				callCount++
				return makeResponse(tt.statusCode, `{"errorMessages":["nope"]}`, nil), nil
			})

			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if callCount != 1 {
				t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
			}
			if len(*waits) != 0 {
				t.Errorf("Expected no waits, got %v", *waits)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %T", err)
			}
			if apiErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.statusCode)
			}
			if apiErr.Body != `{"errorMessages":["nope"]}` {
				t.Errorf("Body = %q, want the response body preserved", apiErr.Body)
			}
			if errors.Is(err, ErrRetriesExhausted) {
				t.Error("Client errors must not report ErrRetriesExhausted")
			}
		})
	}
}

func TestExecutor_RetriesExhausted(t *testing.T) {
	executor, waits := newTestExecutor(DefaultRetryConfig())

	callCount := 0
	_, err := executor.Do(context.Background(), func() (*http.Response, error) {
		callCount++
		return makeResponse(503, "unavailable", nil), nil
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("Expected ErrRetriesExhausted, got %v", err)
	}
	if callCount != 5 {
		t.Errorf("Expected 5 calls (MaxAttempts), got %d", callCount)
	}
	// No wait after the final attempt.
	if len(*waits) != 4 {
		t.Errorf("Expected 4 waits, got %d", len(*waits))
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Terminal error should carry the last observed status: %v", err)
	}
}

func TestExecutor_ExponentialBackoff(t *testing.T) {
	executor, waits := newTestExecutor(RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	})

	_, _ = executor.Do(context.Background(), func() (*http.Response, error) {
		return nil, errors.New("timeout")
	})

	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*waits) != len(expected) {
		t.Fatalf("Expected %d waits, got %d", len(expected), len(*waits))
	}
	for i, want := range expected {
		if (*waits)[i] != want {
			t.Errorf("Wait %d = %v, want %v", i+1, (*waits)[i], want)
		}
	}
}

func TestExecutor_BackoffCappedAtMax(t *testing.T) {
	executor, waits := newTestExecutor(RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        3 * time.Second,
		BackoffMultiplier: 2.0,
	})

	_, _ = executor.Do(context.Background(), func() (*http.Response, error) {
		return makeResponse(500, "", nil), nil
	})

	expected := []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	if len(*waits) != len(expected) {
		t.Fatalf("Expected %d waits, got %d", len(expected), len(*waits))
	}
	for i, want := range expected {
		if (*waits)[i] != want {
			t.Errorf("Wait %d = %v, want %v", i+1, (*waits)[i], want)
		}
	}
}

func TestExecutor_ContextCancelled(t *testing.T) {
	executor := NewExecutor(RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	_, err := executor.Do(ctx, func() (*http.Response, error) {
		callCount++
		cancel()
		return makeResponse(500, "", nil), nil
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation stopped retries, got %d", callCount)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
		ok       bool
	}{
		{name: "integer seconds", value: "5", expected: 5 * time.Second, ok: true},
		{name: "fractional seconds", value: "2.5", expected: 2500 * time.Millisecond, ok: true},
		{name: "zero", value: "0", expected: 0, ok: true},
		{name: "missing", value: "", ok: false},
		{name: "negative", value: "-3", ok: false},
		{name: "http date ignored", value: "Wed, 21 Oct 2015 07:28:00 GMT", ok: false},
		{name: "garbage", value: "soon", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set("Retry-After", tt.value)
			}

			wait, ok := parseRetryAfter(header)
			if ok != tt.ok {
				t.Fatalf("parseRetryAfter(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if ok && wait != tt.expected {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, wait, tt.expected)
			}
		})
	}
}
