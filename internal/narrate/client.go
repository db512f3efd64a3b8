package narrate

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

	"golang.org/x/time/rate"
)

// ErrMissingAPIKey is returned when a hosted backend is configured without a key.
var ErrMissingAPIKey = errors.New("API key is not configured")

// maxErrorBody caps how much of an error reply is kept in an APIError.
const maxErrorBody = 500

// Option configures a backend.
type Option func(*transport)

// WithHTTPClient replaces the backend's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) { t.client = c }
}

// WithLogger sets the logger used for retries and fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(t *transport) { t.log = l }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(t *transport) { t.policy = p }
}

// WithRequestsPerMinute paces outgoing requests. Zero means unlimited.
func WithRequestsPerMinute(n int) Option {
	return func(t *transport) {
		if n <= 0 {
			t.limiter = nil
			return
		}
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// transport is the HTTP plumbing shared by every backend.
type transport struct {
	backend string
	client  *http.Client
	policy  RetryPolicy
	limiter *rate.Limiter
	log     *slog.Logger
}

func newTransport(backend string, timeout time.Duration, opts []Option) transport {
	t := transport{
		backend: backend,
		client:  &http.Client{Timeout: timeout},
		policy:  DefaultRetryPolicy(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(&t)
	}
	t.log = t.log.With("backend", backend)
	return t
}

// retry runs op under the retry policy, waiting on the rate limiter before
// every attempt.
func (t *transport) retry(ctx context.Context, op func(ctx context.Context) error) error {
	return t.policy.Do(ctx, t.log, func(ctx context.Context) error {
		if err := t.wait(ctx); err != nil {
			return err
		}
		return op(ctx)
	})
}

func (t *transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// doJSON sends one request and decodes a 2xx JSON reply into out. body may be
// nil for GET requests.
func (t *transport) doJSON(ctx context.Context, method, url string, header http.Header, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to communicate with %s: %w", t.backend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s reply: %w", t.backend, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return t.apiError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{
			Backend: t.backend,
			Message: fmt.Sprintf("failed to parse reply: %v: %s", err, truncate(string(data), maxErrorBody)),
		}
	}
	return nil
}

// apiError builds an APIError from an error reply, using the structured
// {"error": {...}} body both Gemini and OpenAI-style servers send when present.
func (t *transport) apiError(code int, body []byte) *APIError {
	e := &APIError{Backend: t.backend, StatusCode: code}

	var structured struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &structured) == nil && len(structured.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		}
		var str string
		switch {
		case json.Unmarshal(structured.Error, &obj) == nil && obj.Message != "":
			e.Message, e.Status = obj.Message, obj.Status
			return e
		case json.Unmarshal(structured.Error, &str) == nil && str != "":
			e.Message = str
			return e
		}
	}
	e.Message = truncate(strings.TrimSpace(string(body)), maxErrorBody)
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
