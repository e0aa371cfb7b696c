// Package fetch executes JSON requests against the backend and classifies
// every failure into a closed error taxonomy that downstream consumers can
// react to uniformly.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedwatch/internal/diaglog"
)

// Options describes one request.
type Options struct {
	URL     string
	Method  string // defaults to GET
	Body    any    // marshaled as JSON when non-nil
	Headers map[string]string
}

// Response is a successful (2xx) response.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Client executes requests with classification, pending-request tracking for
// global aborts, and a logout hook for 401 responses.
type Client struct {
	http   *http.Client
	diag   *diaglog.Buffer
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[int64]context.CancelFunc
	nextID  int64
	logout  func()
}

// NewClient creates a Client. diag may be nil to disable the diagnostic log.
func NewClient(timeout time.Duration, diag *diaglog.Buffer, logger zerolog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		diag:    diag,
		logger:  logger.With().Str("component", "fetch").Logger(),
		pending: make(map[int64]context.CancelFunc),
	}
}

// OnUnauthorized installs the session-logout hook invoked on every 401
// response. The hook fires once per occurrence; the classified error still
// propagates to the caller.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.logout = fn
	c.mu.Unlock()
}

// Do executes the request. It returns a *Response on 2xx and otherwise one of
// the classified error kinds: *HTTPError, *NetworkError, *AbortError or
// *GenericError.
func (c *Client) Do(ctx context.Context, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, Classify(err)
		}
		bodyReader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithCancel(ctx)
	id := c.track(cancel)
	defer c.untrack(id)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, bodyReader)
	if err != nil {
		return nil, Classify(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		classified := Classify(err)
		c.record(opts.URL, classified)
		return nil, classified
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		classified := Classify(err)
		c.record(opts.URL, classified)
		return nil, classified
	}

	if resp.StatusCode >= 400 {
		httpErr := classifyResponse(resp.StatusCode, data)
		if resp.StatusCode == http.StatusUnauthorized {
			c.handleUnauthorized(opts.URL)
		}
		c.record(opts.URL, httpErr)
		return nil, httpErr
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// JSON executes the request and decodes the response body into T.
func JSON[T any](ctx context.Context, c *Client, opts Options) (T, error) {
	var out T
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, Classify(err)
	}
	return out, nil
}

// AbortPending cancels all outstanding requests. Each one fails with an
// *AbortError, which the registration façade suppresses automatically.
// Returns true if any request was cancelled.
func (c *Client) AbortPending() bool {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.pending))
	for _, cancel := range c.pending {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels) > 0
}

func (c *Client) track(cancel context.CancelFunc) int64 {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = cancel
	c.mu.Unlock()
	return id
}

func (c *Client) untrack(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) handleUnauthorized(url string) {
	c.mu.Lock()
	logout := c.logout
	c.mu.Unlock()

	c.logger.Warn().Str("url", url).Msg("request not authenticated, triggering logout")
	if logout != nil {
		logout()
	}
}

// record writes a failure to the diagnostic log. Aborts are client-initiated
// and carry no diagnostic value.
func (c *Client) record(url string, classified Error) {
	if _, ok := classified.(*AbortError); ok {
		c.logger.Debug().Str("url", url).Msg("request aborted")
		return
	}
	resp := classified.Response()
	c.logger.Debug().Str("url", url).Int("status", resp.Status).Str("title", resp.Title).Msg("request failed")
	c.diag.Add(diaglog.Entry{
		Name:    resp.Title,
		Message: resp.String(),
		URL:     url,
	})
}
