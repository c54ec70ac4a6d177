// Package chessclient talks to a chessd server: JSON calls over fasthttp and
// the websocket event stream.
package chessclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-chess/pkg/chessdto"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status int
	chessdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chess api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 60 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 60 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateGame(ctx context.Context, req chessdto.CreateGameRequest) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/games", req, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Game(ctx context.Context, id string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(id, ""), nil, &st, true); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Move(ctx context.Context, id string, req chessdto.MoveRequest) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "moves"), req, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

// EngineMove asks the engine side to move again.
func (c *Client) EngineMove(ctx context.Context, id string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "engine"), nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Undo(ctx context.Context, id string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "undo"), nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Resign(ctx context.Context, id string, req chessdto.ResignRequest) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "resign"), req, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) PGN(ctx context.Context, id string) (string, error) {
	body, err := c.do(ctx, fasthttp.MethodGet, gamePath(id, "pgn"), nil, true)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) Archived(ctx context.Context, id string) (*chessdto.ArchivedGame, error) {
	var g chessdto.ArchivedGame
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/archive/"+url.PathEscape(id), nil, &g, true); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) Recent(ctx context.Context, limit int) ([]*chessdto.ArchivedGame, error) {
	var list []*chessdto.ArchivedGame
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/archive?limit="+strconv.Itoa(limit), nil, &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, fasthttp.MethodGet, "/healthz", nil, false)
	return err
}

func gamePath(id, action string) string {
	p := "/games/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	body, err := c.do(ctx, method, path, payload, retry)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if payload != nil {
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return append([]byte(nil), resp.Body()...), nil
			}
			apiErr := decodeAPIError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return nil, apiErr
			}
			lastErr = apiErr
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	var wrapped struct {
		Error chessdto.DomainError `json:"error"`
	}
	e := &APIError{Status: status}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Code != "" {
		e.DomainError = wrapped.Error
	} else {
		e.Message = truncate(string(body), 512)
	}
	return e
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
