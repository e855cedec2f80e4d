package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// Client issues chat-completion requests against an OpenAI-compatible
// endpoint. A Client owns its rate limiter and in-flight bound, so each
// processing pass creates its own.
type Client struct {
	settings   Settings
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	inflight   *semaphore.Weighted
	retry      RetryPolicy
	stats      *Stats
	log        *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. Per-call deadlines come from the
// settings, so the client should not carry its own Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithStats records call outcomes into s.
func WithStats(s *Stats) Option {
	return func(c *Client) { c.stats = s }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRetryPolicy overrides the backoff schedule.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func NewClient(settings Settings, opts ...Option) *Client {
	settings = settings.WithDefaults()

	limit := rate.Inf
	if iv := settings.Interval(); iv > 0 {
		limit = rate.Every(iv)
	}

	c := &Client{
		settings:   settings,
		endpoint:   chatEndpoint(settings.BaseURL),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		inflight:   semaphore.NewWeighted(int64(settings.BatchSize)),
		retry:      DefaultRetryPolicy(),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the settings the client was built with.
func (c *Client) Settings() Settings { return c.settings }

// Model returns the configured model name.
func (c *Client) Model() string { return c.settings.Model }

// Request is one chat-completion call.
type Request struct {
	System       string
	User         string
	ImageDataURL string // optional data: or http(s) URL sent as an image part
	ExpectJSON   bool
	MaxTokens    int
	Temperature  float64
}

// Response is a successful HTTP exchange. Err carries a non-fatal
// MalformedResponseError when the body could not be fully interpreted; Raw
// is always kept.
type Response struct {
	Body     Body
	Text     string
	JSON     json.RawMessage
	Raw      []byte
	Err      error
	Attempts int
	Latency  time.Duration
}

// Submit waits for an in-flight slot, then performs req in the background and
// hands the outcome to done. Slots are granted in the order Submit is called.
// If ctx ends before a slot frees up, nothing is dispatched and an error
// wrapping ErrNotDispatched is returned.
func (c *Client) Submit(ctx context.Context, req Request, done func(*Response, error)) error {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDispatched, err)
	}
	go func() {
		defer c.inflight.Release(1)
		done(c.do(ctx, req))
	}()
	return nil
}

// Complete performs req and waits for the outcome.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	type outcome struct {
		resp *Response
		err  error
	}
	ch := make(chan outcome, 1)
	if err := c.Submit(ctx, req, func(r *Response, err error) { ch <- outcome{r, err} }); err != nil {
		return nil, err
	}
	o := <-ch
	return o.resp, o.err
}

// do runs the retry loop. Cancelling ctx stops further dispatches and
// backoff waits; a request already sent runs to completion or its own
// timeout.
func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	jsonMode := req.ExpectJSON
	attempts := 0
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, fmt.Errorf("%w: %w", ErrNotDispatched, err)
		}

		attempts++
		raw, err := c.send(ctx, req, jsonMode)
		if err != nil && jsonMode && rejectsResponseFormat(err) {
			c.log.Info("provider rejected response_format, retrying without it", "model", c.settings.Model)
			jsonMode = false
			attempt--
			continue
		}
		if err == nil {
			resp := c.interpret(raw, req.ExpectJSON)
			resp.Attempts = attempts
			resp.Latency = time.Since(start)
			c.stats.Record(c.settings.Model, resp.Latency, attempts, false)
			return resp, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt >= c.settings.MaxRetries {
			c.stats.Record(c.settings.Model, time.Since(start), attempts, true)
			return nil, err
		}

		delay := c.retry.Backoff(attempt)
		c.log.Warn("transient llm error, retrying",
			"model", c.settings.Model,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.stats.Record(c.settings.Model, time.Since(start), attempts, true)
			return nil, lastErr
		}
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

func (c *Client) buildRequest(req Request, jsonMode bool) chatRequest {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	if req.ImageDataURL != "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: []contentPart{
			{Type: "text", Text: req.User},
			{Type: "image_url", ImageURL: &imageURL{URL: req.ImageDataURL, Detail: "auto"}},
		}})
	} else {
		msgs = append(msgs, chatMessage{Role: "user", Content: req.User})
	}

	body := chatRequest{
		Model:       c.settings.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

// send performs one HTTP exchange under its own deadline. The deadline is
// detached from ctx cancellation so an in-flight call is never cut short.
func (c *Client) send(ctx context.Context, req Request, jsonMode bool) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.CallTimeout())
	defer cancel()

	payload, err := json.Marshal(c.buildRequest(req, jsonMode))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.settings.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(fmt.Errorf("llm api: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return nil, &TransientError{StatusCode: resp.StatusCode, Message: string(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// interpret resolves the body shape once and, in JSON mode, recovers the
// structured payload.
func (c *Client) interpret(raw []byte, expectJSON bool) *Response {
	body := ResolveBody(raw)
	resp := &Response{Body: body, Raw: raw, Text: strings.TrimSpace(body.Text())}

	if _, ok := body.(Unrecognized); ok {
		resp.Err = &MalformedResponseError{Reason: "unrecognized response shape"}
		return resp
	}
	if expectJSON {
		js, err := ParseJSON(resp.Text)
		if err != nil {
			resp.Err = &MalformedResponseError{Reason: "model output is not json", Err: err}
			return resp
		}
		resp.JSON = js
	}
	return resp
}

func rejectsResponseFormat(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(se.Message), "response_format")
}
