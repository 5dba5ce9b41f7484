// Package gateway is the HTTP client for the OpenRouter chat-completions API.
//
// One Call is one logical attempt from the scheduler's point of view: the
// client may retry internally (once on transport/5xx, once on 429), but
// everything happens inside the caller's budget and the returned latency
// covers only the attempt that produced the answer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	chatPath       = "/chat/completions"
	modelsPath     = "/models"

	connectTimeout    = 10 * time.Second
	defaultReadBudget = 45 * time.Second

	// maxRateLimitWait bounds the pause honored before the single 429 retry;
	// longer Retry-After values escalate immediately so the scheduler can
	// switch to the fallback model.
	maxRateLimitWait = 2 * time.Second
)

// Message is one chat turn sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is a completed chat call.
type Result struct {
	Text         string
	FinishReason string
	MS           int64
}

// Caller is the surface the orchestrator schedules against.
type Caller interface {
	Call(ctx context.Context, model string, messages []Message, budget time.Duration) (Result, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Config holds gateway credentials and attribution headers.
type Config struct {
	APIKey   string
	BaseURL  string
	SiteURL  string // HTTP-Referer attribution header
	SiteName string // X-Title attribution header
}

// Client calls OpenRouter. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	backoff    BackoffConfig
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

// NewClient builds a client from an explicit config.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gateway: missing API key")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.SiteURL) == "" {
		cfg.SiteURL = "http://localhost:8000"
	}
	if strings.TrimSpace(cfg.SiteName) == "" {
		cfg.SiteName = "UltrAI Project"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// Per-request deadlines come from contexts; the transport only
			// bounds connection establishment.
			Timeout: 0,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
				MaxIdleConnsPerHost: 16,
			},
		},
		backoff: defaultBackoffConfig(),
		sleep:   sleepCtx,
		now:     time.Now,
	}, nil
}

// NewClientFromEnv reads OPENROUTER_API_KEY plus the optional YOUR_SITE_URL
// and YOUR_SITE_NAME attribution variables.
func NewClientFromEnv() (*Client, error) {
	key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if key == "" {
		return nil, fmt.Errorf("gateway: OPENROUTER_API_KEY is not set")
	}
	return NewClient(Config{
		APIKey:   key,
		BaseURL:  os.Getenv("OPENROUTER_BASE_URL"),
		SiteURL:  os.Getenv("YOUR_SITE_URL"),
		SiteName: os.Getenv("YOUR_SITE_NAME"),
	})
}

// Call sends messages to model and waits for a complete, usable response.
// budget bounds the whole call including any internal retry; zero means the
// default read budget. The returned MS covers only the successful exchange.
//
// A 429 is retried once only when its Retry-After fits inside
// maxRateLimitWait; a longer wait escalates the RateLimitedError unretried,
// and the scheduler reacts by moving to the slot's fallback model.
func (c *Client) Call(ctx context.Context, model string, messages []Message, budget time.Duration) (Result, error) {
	if budget <= 0 {
		budget = defaultReadBudget
	}
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	res, err := c.attempt(callCtx, model, messages)
	if err == nil {
		return res, nil
	}

	var rl *RateLimitedError
	switch {
	case errors.As(err, &rl):
		wait := maxRateLimitWait
		if ra := rl.RetryAfter(); ra != nil {
			if *ra > maxRateLimitWait {
				return Result{}, err
			}
			wait = *ra
		}
		if serr := c.sleep(callCtx, wait); serr != nil {
			return Result{}, withBudget(err, budget)
		}
	case IsRetryable(err):
		d := DelayForAttempt(1, c.backoff, model+":retry")
		if serr := c.sleep(callCtx, d); serr != nil {
			return Result{}, withBudget(err, budget)
		}
	default:
		return Result{}, withBudget(err, budget)
	}

	res, err2 := c.attempt(callCtx, model, messages)
	if err2 == nil {
		return res, nil
	}
	return Result{}, withBudget(err2, budget)
}

// withBudget stamps the caller's budget onto timeout errors so messages
// report the deadline that actually applied.
func withBudget(err error, budget time.Duration) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		te.Budget = budget
	}
	return err
}

func (c *Client) attempt(ctx context.Context, model string, messages []Message) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return Result{}, &TransportError{ModelID: model, Err: err}
	}
	c.setHeaders(req)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, c.wrapTransport(ctx, model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Result{}, c.wrapTransport(ctx, model, err)
	}
	elapsed := c.now().Sub(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := upstreamMessage(raw)
		ra := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return Result{}, errorFromStatus(model, resp.StatusCode, msg, ra)
	}

	var parsed struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, &MidStreamError{ModelID: model, Message: "unparseable response body"}
	}
	if len(parsed.Choices) == 0 {
		return Result{}, &MidStreamError{ModelID: model, Message: "response has no choices"}
	}
	choice := parsed.Choices[0]
	if choice.FinishReason == "error" {
		return Result{}, &MidStreamError{ModelID: model, Message: "finish_reason=error"}
	}
	return Result{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		MS:           elapsed.Milliseconds(),
	}, nil
}

// ListModels fetches the upstream model catalog and returns its IDs.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultReadBudget)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+modelsPath, nil)
	if err != nil {
		return nil, &TransportError{ModelID: "", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.wrapTransport(reqCtx, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, c.wrapTransport(reqCtx, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ra := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return nil, errorFromStatus("", resp.StatusCode, upstreamMessage(raw), ra)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("gateway: parse model catalog: %w", err)
	}
	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if strings.TrimSpace(m.ID) != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	req.Header.Set("X-Title", c.cfg.SiteName)
	req.Header.Set("X-Request-ID", uuid.NewString())
}

func (c *Client) wrapTransport(ctx context.Context, model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{ModelID: model, Budget: defaultReadBudget}
	}
	return &TransportError{ModelID: model, Err: err}
}

// upstreamMessage extracts the error text OpenRouter nests under "error".
func upstreamMessage(raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
