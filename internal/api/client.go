package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// StatusError is a non-2xx response from a remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error: %d", e.Code)
	}
	return fmt.Sprintf("API error: %d: %s", e.Code, e.Body)
}

// Throttled reports whether the remote asked us to back off.
func (e *StatusError) Throttled() bool {
	return e.Code == fasthttp.StatusTooManyRequests
}

// Client is the fasthttp transport shared by the sheets and peer clients.
// It remembers the last Retry-After the remote sent and refuses to send
// requests until it has passed.
type Client struct {
	token  string
	client *fasthttp.Client

	backoffMu    sync.RWMutex
	backoffUntil time.Time
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
		client: &fasthttp.Client{
			MaxConnsPerHost:     32,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
			// sheet ranges carry quoted, non-ASCII titles
			DisablePathNormalizing: true,
		},
	}
}

// BackoffUntil returns when the remote will accept requests again. The zero
// time means no backoff is in effect.
func (c *Client) BackoffUntil() time.Time {
	c.backoffMu.RLock()
	defer c.backoffMu.RUnlock()
	return c.backoffUntil
}

func (c *Client) updateBackoff(resp *fasthttp.Response) {
	if resp.StatusCode() != fasthttp.StatusTooManyRequests {
		return
	}
	wait := 30 * time.Second
	if v := string(resp.Header.Peek(fasthttp.HeaderRetryAfter)); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	c.backoffMu.Lock()
	c.backoffUntil = time.Now().Add(wait)
	c.backoffMu.Unlock()
}

type request struct {
	method string
	url    string
	body   any
}

func doRequest[T any](ctx context.Context, client *Client, r request) (*T, error) {
	if until := client.BackoffUntil(); time.Now().Before(until) {
		return nil, &StatusError{Code: fasthttp.StatusTooManyRequests, Body: "backing off until " + until.Format(time.RFC3339)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.url)
	req.Header.SetMethod(r.method)
	if client.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+client.token)
	}
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	client.updateBackoff(resp)

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		body := resp.Body()
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &StatusError{Code: code, Body: string(body)}
	}

	var result T
	if len(resp.Body()) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
