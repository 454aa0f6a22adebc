package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/observability"
)

const userAgent = "storm-lightning-service/1.0"

// Client issues JSON-RPC calls against the strike backend. It performs exactly
// one HTTP request per call and never retries or caches.
type Client struct {
	baseURL     string
	contentType string
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewClient creates a JSON-RPC client. contentType is sent verbatim and must be
// one the backend accepts (application/json or text/json).
func NewClient(baseURL, contentType string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:     baseURL,
		contentType: contentType,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// BaseURL returns the endpoint the client posts to.
func (c *Client) BaseURL() string { return c.baseURL }

// WithBaseURL returns a copy of the client posting to baseURL. The copy shares
// the underlying http.Client.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.baseURL = baseURL
	return &cp
}

type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Call invokes method with positional params and returns the response object.
// A response wrapped in a top-level array is unwrapped to its first element.
func (c *Client) Call(ctx context.Context, method domain.Method, params ...any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.call(ctx, method, params)
	c.metrics.RPCDuration.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.RPCRequests.WithLabelValues(string(method), "error").Inc()
		c.metrics.RPCErrors.WithLabelValues(string(method), domain.ErrorKind(err)).Inc()
		return nil, err
	}
	c.metrics.RPCRequests.WithLabelValues(string(method), "success").Inc()
	return raw, nil
}

func (c *Client) call(ctx context.Context, method domain.Method, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{ID: 0, Method: string(method), Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", c.contentType)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &domain.TransportError{Method: method, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	c.logger.Debug("rpc response received", "method", method, "bytes", len(data))

	return unwrap(method, data)
}

// unwrap validates the response body and returns the payload object.
func unwrap(method domain.Method, data []byte) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", method, domain.ErrEmptyResponse)
	}

	var v json.RawMessage
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &domain.MalformedPayloadError{Method: method, Reason: "invalid json", Err: err}
	}

	if v[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err != nil {
			return nil, &domain.MalformedPayloadError{Method: method, Reason: "invalid array", Err: err}
		}
		if len(arr) == 0 {
			return nil, &domain.MalformedPayloadError{Method: method, Reason: "empty array"}
		}
		v = bytes.TrimSpace(arr[0])
	}

	if len(v) == 0 || v[0] != '{' {
		return nil, &domain.MalformedPayloadError{Method: method, Reason: "response is not an object"}
	}

	if reason, ok := fault(v); ok {
		return nil, &domain.MalformedPayloadError{Method: method, Reason: "fault", Err: errors.New(reason)}
	}
	return v, nil
}

// fault detects the proxy fault envelope {"fault":true,"faultString":"..."}.
func fault(v json.RawMessage) (string, bool) {
	var env struct {
		Fault       any    `json:"fault"`
		FaultString string `json:"faultString"`
	}
	if err := json.Unmarshal(v, &env); err != nil || env.Fault == nil || env.Fault == false {
		return "", false
	}
	if env.FaultString == "" {
		return "backend fault", true
	}
	return env.FaultString, true
}

// HTTPSFallback returns the https variant of an http URL. ok is false when the
// URL is not plain http.
func HTTPSFallback(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Scheme, "http") {
		return "", false
	}
	u.Scheme = "https"
	return u.String(), true
}
