package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient is a retrying, rate limited client shared by all tools.
type HTTPClient struct {
	client  *http.Client
	retries int
	backoff time.Duration
	limiter *rate.Limiter
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Body) }

func NewHTTPClient(timeout time.Duration, retries int, backoff time.Duration, perSec float64, burst int) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// DoJSON sends body as JSON (when non-nil) and decodes a 2xx response into out.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if body != nil && headers["Content-Type"] == "" {
		headers["Content-Type"] = "application/json"
	}
	if headers["Accept"] == "" {
		headers["Accept"] = "application/json"
	}
	data, _, err := c.do(ctx, method, url, headers, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Get fetches url and returns the body along with the final URL after redirects.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) ([]byte, string, error) {
	return c.do(ctx, http.MethodGet, url, headers, nil)
}

const maxBody = 4 << 20

func (c *HTTPClient) do(ctx context.Context, method, url string, headers map[string]string, payload []byte) ([]byte, string, error) {
	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, "", err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return data, resp.Request.URL.String(), nil
			default:
				if len(data) > 4096 {
					data = data[:4096]
				}
				lastErr = &StatusError{Code: resp.StatusCode, Body: string(data)}
				// client errors other than rate limiting will not improve on retry
				if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return nil, "", lastErr
				}
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return nil, "", lastErr
}
