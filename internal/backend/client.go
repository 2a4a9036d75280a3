// Package backend is the typed HTTP client for the storefront REST API.
// Every failure is converted to the pkg/errors taxonomy before it leaves the package.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agroconexion/storefront-sync/api/middleware"
	"github.com/agroconexion/storefront-sync/pkg/auth"
	"github.com/agroconexion/storefront-sync/pkg/config"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 512

var validate = validator.New()

type Options struct {
	BaseURL string
	Timeout time.Duration
	Tokens  auth.TokenSource
	Breaker config.BreakerConfig
	HTTP    *http.Client
	Metrics *metrics.SyncMetrics
	Logger  *logger.Logger
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	tokens  auth.TokenSource
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	metrics *metrics.SyncMetrics
	logg    *logger.Logger
}

type rawResponse struct {
	status int
	body   []byte
}

// serverError marks 5xx responses so the breaker counts them as failures.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("backend returned %d", e.status)
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = auth.StaticToken("")
	}

	c := &Client{
		baseURL: base,
		http:    httpClient,
		timeout: timeout,
		tokens:  tokens,
		metrics: opts.Metrics,
		logg:    opts.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](breakerSettings(opts.Breaker, c.onBreakerChange))
	return c, nil
}

func breakerSettings(cfg config.BreakerConfig, onChange func(string, gobreaker.State, gobreaker.State)) gobreaker.Settings {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.Settings{
		Name:        "storefront-backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: onChange,
	}
}

func (c *Client) onBreakerChange(name string, from, to gobreaker.State) {
	if c.logg == nil {
		return
	}
	ctx := c.logg.WithFields(context.Background(), map[string]any{
		"breaker": name,
		"from":    from.String(),
		"to":      to.String(),
	})
	c.logg.Warn(ctx, "backend.breaker.state_change")
}

// call describes one backend request. Endpoint is the route template used for
// metrics and error details, Path the concrete path.
type call struct {
	Endpoint string
	Method   string
	Path     string
	Body     any
}

func (c *Client) do(ctx context.Context, req call, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, req)
	})
	outcome := "ok"
	defer func() {
		c.metrics.ObserveRemoteCall(req.Endpoint, outcome, time.Since(start))
	}()

	if err != nil {
		var srvErr *serverError
		switch {
		case errors.As(err, &srvErr):
			// handled below with the response body
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = "breaker_open"
			return pkgerrors.Wrap(pkgerrors.CodeTransient, err, "backend temporarily unavailable").
				WithDetails(pkgerrors.StatusDetails{Endpoint: req.Endpoint})
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
			return pkgerrors.Wrap(pkgerrors.CodeTransient, err, "backend call timed out").
				WithDetails(pkgerrors.StatusDetails{Endpoint: req.Endpoint})
		case errors.Is(err, context.Canceled):
			outcome = "canceled"
			return pkgerrors.Wrap(pkgerrors.CodeTransient, err, "backend call canceled")
		default:
			var typed *pkgerrors.Error
			if errors.As(err, &typed) {
				outcome = "error"
				return err
			}
			outcome = "network"
			return pkgerrors.Wrap(pkgerrors.CodeTransient, err, "backend unreachable").
				WithDetails(pkgerrors.StatusDetails{Endpoint: req.Endpoint})
		}
	}

	if resp.status >= http.StatusBadRequest {
		outcome = fmt.Sprintf("%dxx", resp.status/100)
		return statusError(req.Endpoint, resp)
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		outcome = "malformed"
		return pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "decoding backend response").
			WithDetails(pkgerrors.StatusDetails{Status: resp.status, Endpoint: req.Endpoint})
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req call) (*rawResponse, error) {
	rel, err := url.Parse(strings.TrimPrefix(req.Path, "/"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building backend url")
	}
	target := c.baseURL.ResolveReference(rel)

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding backend request")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building backend request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	requestID := middleware.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set(middleware.RequestIDHeader, requestID)

	token, err := c.tokens.AccessToken(ctx)
	switch {
	case errors.Is(err, auth.ErrNoToken):
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "loading access token")
	default:
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading backend response: %w", err)
	}
	raw := &rawResponse{status: res.StatusCode, body: data}
	if res.StatusCode >= http.StatusInternalServerError {
		return raw, &serverError{status: res.StatusCode}
	}
	return raw, nil
}

func statusError(endpoint string, resp *rawResponse) error {
	body := strings.TrimSpace(string(resp.body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	code := pkgerrors.FromStatus(resp.status)
	return pkgerrors.New(code, fmt.Sprintf("%s returned %d", endpoint, resp.status)).
		WithDetails(pkgerrors.StatusDetails{Status: resp.status, Endpoint: endpoint, Body: body})
}

// StatusOf returns the backend HTTP status carried by err, or 0.
func StatusOf(err error) int {
	typed := pkgerrors.As(err)
	if typed == nil {
		return 0
	}
	if details, ok := typed.Details().(pkgerrors.StatusDetails); ok {
		return details.Status
	}
	return 0
}
