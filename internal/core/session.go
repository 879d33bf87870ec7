package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SessionConfig controls how every request of a run is issued.
type SessionConfig struct {
	// UserAgent is sent with every request.
	UserAgent string
	// FollowRedirects makes the client follow 3xx responses. When false the
	// first redirect response is returned to the caller as-is.
	FollowRedirects bool
	// MaxRetries is the number of additional attempts after a failed one.
	MaxRetries int
	// Backoff spaces out retry attempts.
	Backoff BackoffPolicy
	// Timeout bounds a single attempt. If <= 0, DefaultTimeout is used.
	Timeout time.Duration
	// Sleep overrides the wait between attempts (tests).
	Sleep SleepFunc
	Logger *slog.Logger
}

// DefaultSessionConfig mirrors the CLI defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		UserAgent:       DefaultUserAgent,
		FollowRedirects: true,
		MaxRetries:      DefaultMaxRetries,
		Backoff:         DefaultBackoff(),
		Timeout:         DefaultTimeout,
	}
}

// Session wraps one http.Client shared by all fetches of a run.
// It is meant to be driven sequentially.
type Session struct {
	client *http.Client
	config SessionConfig
	logger *slog.Logger
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FinalURL is the request URL after any redirects were followed.
	FinalURL string
}

// NewSession creates a Session from cfg.
func NewSession(cfg SessionConfig) *Session {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Session{client: client, config: cfg, logger: logger}
}

// Config returns the configuration the session was built with.
func (s *Session) Config() SessionConfig { return s.config }

// Get fetches url, retrying transport errors and non-2xx/3xx responses up to
// MaxRetries more times. Once the budget is spent it returns a *FetchError;
// if the last attempt produced a response, that response is returned too so
// callers can inspect the archive's error page.
func (s *Session) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	if _, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil); err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	policy := RetryPolicy{
		MaxRetries: s.config.MaxRetries,
		Backoff:    s.config.Backoff,
		Sleep:      s.config.Sleep,
	}

	res := Retry(ctx, policy, func(ctx context.Context, attempt int) (*Response, error) {
		resp, err := s.do(ctx, url, header)
		if err != nil {
			s.logger.Info("request failed", "url", url, "attempt", attempt, "error", err)
			return resp, err
		}
		return resp, nil
	})
	if !res.Exhausted() {
		return res.Value, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	fe := &FetchError{URL: url, Attempts: res.Attempts, Err: res.Err}
	if res.Value != nil {
		fe.StatusCode = res.Value.StatusCode
	}
	s.logger.Info("maximum retries reached", "url", url, "attempts", res.Attempts)
	return res.Value, fe
}

// do performs one attempt. A response outside 2xx/3xx is returned alongside
// an error.
func (s *Session) do(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return out, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return out, nil
}
