// Package httpclient talks to a running report format service.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const defaultTimeout = 5 * time.Minute

// RequestOptions describes one request against the service API.
type RequestOptions struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Body        []byte
}

// HTTPError is returned for responses with a status of 400 or above.
// Code is the numeric result code sent by operations that define one.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       int
}

func (e *HTTPError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("HTTP %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	serverURL  string
	token      string
	httpClient *http.Client
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying client, for example to use a test
// server's transport.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// NewClient returns a client for serverURL that authenticates with the
// bearer token when one is given.
func NewClient(serverURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		serverURL:  serverURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DoRequest sends the request and returns the body and the Location header
// of a successful response.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid server URL: %v", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = path.Join(u.Path, opts.Path)
	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %v", err)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("url", u.String()).Msg("request failed")
		return nil, "", fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()
	rspBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", parseError(resp.StatusCode, rspBody)
	}
	return rspBody, resp.Header.Get("Location"), nil
}

func parseError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status, Message: string(bytes.TrimSpace(body))}
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			e.Message = msg.String()
		}
		e.Code = int(gjson.GetBytes(body, "code").Int())
	}
	return e
}
