// Package gateway is a typed client for the story API. Every call resolves to
// a Result envelope; expected failures (network, server rejection, missing
// credentials) are reported in the envelope, never as a panic or a separate
// error return.
package gateway

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

	"github.com/google/uuid"

	"github.com/stevemurr/story-sync/auth"
)

var (
	// ErrNetwork is a transport-level failure or an unreadable response.
	ErrNetwork = errors.New("network failure")
	// ErrServerRejected is a well-formed response carrying an error flag.
	ErrServerRejected = errors.New("server rejected request")
	// ErrUnauthenticated means no usable bearer token was available or the
	// server refused it.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNoToken means login succeeded but the response held no token.
	ErrNoToken = errors.New("no token in login response")
	// ErrInvalidInput is a caller contract violation; no request is sent.
	ErrInvalidInput = errors.New("invalid input")
)

// Result is the uniform envelope returned by every gateway call. Err is nil
// when OK is true and otherwise wraps one of the package's sentinel errors.
type Result[T any] struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Err     error  `json:"-"`
}

func success[T any](message string, data T) Result[T] {
	return Result[T]{OK: true, Message: message, Data: data}
}

func failure[T any](kind error, message string) Result[T] {
	var zero T
	return Result[T]{Message: message, Data: zero, Err: fmt.Errorf("%w: %s", kind, message)}
}

// apiStatus is the logical status every API response body carries.
type apiStatus struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

const (
	defaultTimeout        = 30 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client provides methods to interact with the story API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         auth.TokenSource
	logger         *slog.Logger
	retryAttempts  int
	retryBaseDelay time.Duration
}

// NewClient creates a client for the API at baseURL. tokens supplies the
// bearer token for authenticated calls and may be nil.
func NewClient(baseURL string, tokens auth.TokenSource, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if tokens == nil {
		tokens = auth.NewMemoryTokens()
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     opts.HTTPClient,
		tokens:         tokens,
		logger:         opts.Logger,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// request describes one API call.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	// requireAuth fails the call with ErrUnauthenticated before sending when
	// no token is available.
	requireAuth bool
	// retry enables backoff on transient failures. Only set for idempotent
	// calls.
	retry bool
}

// response is a completed HTTP exchange.
type response struct {
	status int
	body   []byte
}

// send performs req and returns the response or a classified error
// (ErrNetwork or ErrUnauthenticated).
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	token, hasToken := c.tokens.Token()
	if req.requireAuth && !hasToken {
		return nil, fmt.Errorf("%w: not logged in", ErrUnauthenticated)
	}

	attempt := func() (*response, error) {
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create request: %w", ErrInvalidInput, err)
		}
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		if hasToken {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		requestID := uuid.NewString()
		httpReq.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, &transientError{err: fmt.Errorf("%w: %w", ErrNetwork, err)}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &transientError{err: fmt.Errorf("%w: failed to read response: %w", ErrNetwork, err)}
		}
		c.logger.Debug("api call",
			"method", req.method,
			"path", req.path,
			"status", resp.StatusCode,
			"duration", time.Since(start),
			"request_id", requestID,
		)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &response{status: resp.StatusCode, body: raw},
				&transientError{err: fmt.Errorf("%w: status %d", ErrServerRejected, resp.StatusCode)}
		}
		return &response{status: resp.StatusCode, body: raw}, nil
	}

	if !req.retry {
		return unwrapTransient(attempt())
	}
	return unwrapTransient(retryWithBackoff(ctx, c.logger, req.method+" "+req.path, c.retryAttempts, c.retryBaseDelay, attempt))
}

// unwrapTransient keeps a final 5xx response so its body can still be
// decoded, and strips the retry marker from errors.
func unwrapTransient(resp *response, err error) (*response, error) {
	var te *transientError
	if errors.As(err, &te) {
		if resp != nil {
			return resp, nil
		}
		return nil, te.err
	}
	if err != nil && !errors.Is(err, ErrNetwork) && !errors.Is(err, ErrInvalidInput) && !errors.Is(err, ErrUnauthenticated) {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return resp, err
}

// call sends req and decodes the JSON body into out. It returns the
// classified error and a short message for the envelope.
func (c *Client) call(ctx context.Context, req request, out any) (string, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err.Error(), err
	}

	var status apiStatus
	decodeErr := json.Unmarshal(resp.body, &status)
	if decodeErr == nil && out != nil {
		decodeErr = json.Unmarshal(resp.body, out)
	}

	if resp.status == http.StatusUnauthorized {
		msg := firstNonEmpty(status.Message, "unauthorized")
		return msg, fmt.Errorf("%w: %s", ErrUnauthenticated, msg)
	}
	if decodeErr != nil {
		if resp.status >= 400 {
			msg := fmt.Sprintf("status %d", resp.status)
			return msg, fmt.Errorf("%w: %s", ErrServerRejected, msg)
		}
		return "invalid response", fmt.Errorf("%w: invalid response: %w", ErrNetwork, decodeErr)
	}
	if status.Error || resp.status >= 400 {
		msg := firstNonEmpty(status.Message, fmt.Sprintf("status %d", resp.status))
		return msg, fmt.Errorf("%w: %s", ErrServerRejected, msg)
	}
	return status.Message, nil
}

func jsonBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return b, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// fromError builds a failed envelope from a classified error.
func fromError[T any](message string, err error) Result[T] {
	var zero T
	return Result[T]{Message: message, Data: zero, Err: err}
}
