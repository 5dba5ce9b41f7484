package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "test-key", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	// No real pauses in tests.
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func chatOK(text, finish string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"finish_reason": finish, "message": map[string]any{"content": text}},
		},
	})
	return b
}

func TestCall_SuccessAndHeaders(t *testing.T) {
	var gotAuth, gotReferer, gotTitle, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		gotReqID = r.Header.Get("X-Request-ID")
		w.Write(chatOK("hello", "stop"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Call(context.Background(), "openai/gpt-4o", []Message{{Role: "user", Content: "hi"}}, 0)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Text != "hello" || res.FinishReason != "stop" {
		t.Fatalf("result: %+v", res)
	}
	if res.MS < 0 {
		t.Fatalf("MS: %d", res.MS)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization: %q", gotAuth)
	}
	if gotReferer != "http://localhost:8000" {
		t.Fatalf("HTTP-Referer: %q", gotReferer)
	}
	if gotTitle != "UltrAI Project" {
		t.Fatalf("X-Title: %q", gotTitle)
	}
	if gotReqID == "" {
		t.Fatalf("X-Request-ID missing")
	}
}

func TestCall_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 0)
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls: %d", n)
	}
}

func TestCall_PaymentRequiredNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 0)
	var pe *PaymentRequiredError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PaymentRequiredError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls: %d", n)
	}
}

func TestCall_RateLimitedRetriesOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(chatOK("after retry", "stop"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Call(context.Background(), "m", nil, 0)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Text != "after retry" {
		t.Fatalf("text: %q", res.Text)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls: %d", n)
	}
}

func TestCall_RateLimitedLongRetryAfterEscalates(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 0)
	if !IsRateLimited(err) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls: %d", n)
	}
}

func TestCall_ServerErrorRetriedOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 0)
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !ue.Retryable() {
		t.Fatalf("5xx should classify retryable")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls: %d", n)
	}
}

func TestCall_MidStreamErrorDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatOK("partial", "error"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 0)
	var ms *MidStreamError
	if !errors.As(err, &ms) {
		t.Fatalf("expected MidStreamError, got %v", err)
	}
	if ms.StatusCode() != http.StatusOK {
		t.Fatalf("status: %d", ms.StatusCode())
	}
}

func TestCall_MidStreamRecoversOnRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write(chatOK("partial", "error"))
			return
		}
		w.Write(chatOK("complete", "stop"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Call(context.Background(), "m", nil, 0)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Text != "complete" {
		t.Fatalf("text: %q", res.Text)
	}
}

func TestCall_BudgetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write(chatOK("late", "stop"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 50*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Budget != 50*time.Millisecond {
		t.Fatalf("budget: %v", te.Budget)
	}
}

func TestCall_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "m", nil, 0)
	var ms *MidStreamError
	if !errors.As(err, &ms) {
		t.Fatalf("expected MidStreamError, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"openai/gpt-4o"},{"id":"x-ai/grok-4"},{"id":""}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ids, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(ids) != 2 || ids[0] != "openai/gpt-4o" || ids[1] != "x-ai/grok-4" {
		t.Fatalf("ids: %v", ids)
	}
}

func TestListModels_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListModels(context.Background())
	if !IsAuth(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if d := parseRetryAfter("3", now); d == nil || *d != 3*time.Second {
		t.Fatalf("seconds form: %v", d)
	}
	date := now.Add(10 * time.Second).Format(http.TimeFormat)
	if d := parseRetryAfter(date, now); d == nil || *d != 10*time.Second {
		t.Fatalf("date form: %v", d)
	}
	if d := parseRetryAfter("", now); d != nil {
		t.Fatalf("empty: %v", d)
	}
	if d := parseRetryAfter("junk", now); d != nil {
		t.Fatalf("junk: %v", d)
	}
}

func TestDelayForAttempt_CappedAndDeterministic(t *testing.T) {
	cfg := BackoffConfig{InitialDelayMS: 200, BackoffFactor: 2.0, MaxDelayMS: 2000, Jitter: true}
	a := DelayForAttempt(5, cfg, "seed")
	b := DelayForAttempt(5, cfg, "seed")
	if a != b {
		t.Fatalf("same seed must give same delay: %v vs %v", a, b)
	}
	if a > 3*time.Second {
		t.Fatalf("delay exceeds cap with jitter headroom: %v", a)
	}
	if DelayForAttempt(1, BackoffConfig{}, "x") != 0 {
		t.Fatalf("zero config should yield zero delay")
	}
}
