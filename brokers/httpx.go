package brokers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/errs"
)

const (
	dialTimeout    = 5 * time.Second
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	requestTimeout = dialTimeout + readTimeout + writeTimeout

	maxAttempts       = 3
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 4 * time.Second
)

// HTTPClient is the retrying transport every adapter routes its REST
// calls through. Transport timeouts and HTTP 5xx are retried on a 1s, 2s,
// 4s schedule; 4xx and vendor business errors are the adapter's to map,
// never retried here. One HTTPClient per adapter, shared across its
// methods; Close aborts idle connections at shutdown.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPClient builds a client rooted at baseURL.
func NewHTTPClient(baseURL string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: readTimeout,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		log: log.With().Str("component", "http").Logger(),
	}
}

// Request describes one vendor REST call. Headers is invoked per attempt
// so each retry snapshots the live session token; tokens rotate and a
// shared header map across concurrent requests would race.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Form    url.Values // form-encoded body
	JSON    any        // JSON body; mutually exclusive with Form
	Headers func() map[string]string
}

// Response is the raw vendor reply. Any HTTP status lands here after the
// retry policy ran its course; envelope interpretation belongs to the
// adapter.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes the request with the retry policy. The returned error is a
// BrokerError wrapping the last transport failure; vendor-level errors
// are not detected here.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()
	log := c.log.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Logger()

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = initialRetryDelay
	schedule.MaxInterval = maxRetryDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		started := time.Now()
		resp, err := c.attempt(ctx, req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			log.Debug().
				Int("attempt", attempt).
				Int("status", resp.StatusCode).
				Dur("duration_ms", time.Since(started)).
				Msg("request complete")
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("broker returned HTTP %d", resp.StatusCode)
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		if attempt == maxAttempts {
			break
		}

		delay := schedule.NextBackOff()
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, errs.Broker(
		fmt.Sprintf("%s %s failed after %d attempts", req.Method, req.Path, maxAttempts),
		errs.WithCause(lastErr))
}

func (c *HTTPClient) attempt(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.JSON != nil:
		encoded, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Headers != nil {
		for key, value := range req.Headers() {
			httpReq.Header.Set(key, value)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: payload}, nil
}

// Close releases idle connections. In-flight requests abort through
// their contexts.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}
