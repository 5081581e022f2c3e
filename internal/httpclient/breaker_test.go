package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("jokes", BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Minute}, nil)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	cb.Mark(boom)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	cb.Mark(boom)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(time.Minute)
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected probe to be allowed after cooldown, got %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	cb.Mark(nil)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("jokes", BreakerConfig{FailureThreshold: 1, Cooldown: time.Second}, nil)
	cb.now = func() time.Time { return now }

	cb.Mark(errors.New("boom"))
	now = now.Add(2 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb.Mark(errors.New("still down"))
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened circuit, got %s", cb.State())
	}
}

func TestWrapTransportCountsServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cb := NewCircuitBreaker("jokes", BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour}, nil)
	client := &http.Client{Transport: WrapTransport(Transport(), cb)}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
		_ = resp.Body.Close()
	}
	if _, err := client.Get(srv.URL); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit error, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected upstream to see 2 requests, got %d", hits.Load())
	}
}

func TestNewDefaultsTimeout(t *testing.T) {
	if got := New(0).Timeout; got != defaultTimeout {
		t.Fatalf("expected default timeout, got %v", got)
	}
}
