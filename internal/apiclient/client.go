package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"queuehive/internal/metrics"
)

const maxResponseBytes = 4 << 20

type Options struct {
	BaseURL string
	Timeout time.Duration

	// Credentials returns the bearer token to attach, or "" for anonymous
	// requests. It is called once per request.
	Credentials func() string

	// OnAuthFailure is called for every 401/403 response.
	OnAuthFailure func(*Error)

	Transport http.RoundTripper
	Metrics   *metrics.Metrics
}

// Client is the REST facade for the QueueHive backend. Every failure is
// returned as *Error or, for local field checks, ValidationErrors.
type Client struct {
	baseURL string
	http    *http.Client
	opts    Options
}

type validatable interface {
	Validate() error
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := otelhttp.NewTransport(&loggingTransport{next: base, metrics: opts.Metrics})
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:    opts,
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if v, ok := body.(validatable); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return c.fail(setupError(err))
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return c.fail(setupError(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.opts.Credentials != nil {
		if token := c.opts.Credentials(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(networkError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.fail(networkError(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := serverError(resp.StatusCode, data)
		if apiErr.IsAuth() && c.opts.OnAuthFailure != nil {
			c.opts.OnAuthFailure(apiErr)
		}
		return c.fail(apiErr)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.fail(&Error{
			StatusCode: resp.StatusCode,
			Message:    unexpectedBodyMessage,
			Details:    []FieldError{},
			Kind:       KindServer,
			Err:        err,
		})
	}
	return nil
}

func (c *Client) fail(apiErr *Error) error {
	c.opts.Metrics.RequestError(string(apiErr.Kind))
	event := log.Debug()
	if apiErr.Kind != KindServer {
		event = log.Warn()
	}
	event.Int("status", apiErr.StatusCode).Str("kind", string(apiErr.Kind)).AnErr("cause", apiErr.Err).Msg(apiErr.Message)
	return apiErr
}
