// Package forecastapi is the typed client for the two upstream services: the
// forecast service (domain forecasts and history, port 8000) and the model
// registry (training jobs and file ingestion, port 8001).
package forecastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikana/dashboard/internal/htmlutil"
	"github.com/mikana/dashboard/internal/httputil"
	"github.com/mikana/dashboard/internal/metrics"
)

const (
	DefaultForecastURL = "http://localhost:8000"
	DefaultRegistryURL = "http://localhost:8001"

	serviceForecast = "forecast"
	serviceRegistry = "registry"

	// maxBody bounds every response read, including export blobs.
	maxBody = 64 << 20
)

type Config struct {
	ForecastURL string
	RegistryURL string
	// Timeout bounds each call. Zero means httputil.DefaultTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	forecastURL string
	registryURL string
	timeout     time.Duration
	http        *http.Client
}

func New(cfg Config) *Client {
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = DefaultRegistryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httputil.DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.NewClientWithTimeout(cfg.Timeout)
	}
	return &Client{
		forecastURL: strings.TrimRight(cfg.ForecastURL, "/"),
		registryURL: strings.TrimRight(cfg.RegistryURL, "/"),
		timeout:     cfg.Timeout,
		http:        cfg.HTTPClient,
	}
}

type call struct {
	service     string
	op          string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

type response struct {
	status      int
	body        []byte
	contentType string
}

// do performs one upstream round trip. Non-2xx answers become KindHTTP
// errors carrying the server's detail.
func (c *Client) do(ctx context.Context, cl call) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	base := c.forecastURL
	if cl.service == serviceRegistry {
		base = c.registryURL
	}
	u := base + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: cl.op, Err: fmt.Errorf("create request: %w", err)}
	}
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	req.Header.Set("Accept", "application/json, */*")
	req.Header.Set("User-Agent", "Mikana-Dashboard/1.0")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamLatency.WithLabelValues(cl.service, cl.op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(cl.service, cl.op, "error").Inc()
		return nil, transportError(cl.op, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamCallsTotal.WithLabelValues(cl.service, cl.op, strconv.Itoa(resp.StatusCode)).Inc()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, transportError(cl.op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindHTTP, Op: cl.op, Status: resp.StatusCode, Detail: errorDetail(b)}
	}

	return &response{status: resp.StatusCode, body: b, contentType: resp.Header.Get("Content-Type")}, nil
}

func (c *Client) getJSON(ctx context.Context, service, op, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, call{service: service, op: op, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

func (c *Client) postJSON(ctx context.Context, service, op, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return ValidationError(op, fmt.Sprintf("requête impossible à encoder : %v", err))
		}
		body = b
	}
	resp, err := c.do(ctx, call{service: service, op: op, method: http.MethodPost, path: path, body: body, contentType: "application/json"})
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

func decode(op string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return parseError(op, fmt.Errorf("unmarshal: %w", err))
	}
	return nil
}

// errorDetail extracts FastAPI's {"detail": ...} from an error body, falling
// back to readable text for HTML or plain bodies.
func errorDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		return string(envelope.Detail)
	}
	return htmlutil.ErrorText(body)
}
