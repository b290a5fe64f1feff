// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"giteakit/internal/cache"
	apperrors "giteakit/internal/errors"
	"giteakit/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultUserAgent = "giteakit/0.1"
	requestTimeout   = 30 * time.Second
	noCacheParam     = "noCache"
)

// Response is a complete REST response, returned by GetResponse.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       []byte
	// Cached is set when the response came from the response cache.
	Cached bool
}

type GetRequest struct {
	URL    string
	Params url.Values
	Config APIConfig
	// NoCache bypasses the cache for this read only.
	NoCache bool
}

type RestRequest struct {
	URL     string
	Payload any
	Config  APIConfig
}

// Client issues REST calls against a Gitea server. Reads go through an
// optional shared ResponseCache; writes never do.
type Client struct {
	http      *http.Client
	cache     *cache.ResponseCache
	online    OnlineFunc
	logger    *zap.Logger
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache shares a response cache with the client. Every client given
// the same cache reuses each other's responses.
func WithCache(rc *cache.ResponseCache) Option {
	return func(c *Client) { c.cache = rc }
}

func WithOnlineCheck(fn OnlineFunc) Option {
	return func(c *Client) { c.online = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: requestTimeout,
		},
		online:    InterfacesUp,
		logger:    zap.NewNop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Cache() *cache.ResponseCache {
	return c.cache
}

// Invalidate drops the cached response of req, so the next Get reaches
// the server.
func (c *Client) Invalidate(ctx context.Context, req GetRequest) error {
	if c.cache == nil {
		return nil
	}
	cfg := ExtendConfig(req.Config)
	target, err := resolveURL(cfg.BaseURL, req.URL)
	if err != nil {
		return err
	}
	if err := c.cache.Invalidate(ctx, target, req.Params); err != nil {
		return fmt.Errorf("invalidating %s: %w", target, err)
	}
	c.logger.Debug("cache entry dropped", zap.String("url", target))
	return nil
}

// Get returns the body of a read. See GetResponse.
func (c *Client) Get(ctx context.Context, req GetRequest) ([]byte, error) {
	resp, err := c.GetResponse(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetJSON decodes the body of a read into dest.
func (c *Client) GetJSON(ctx context.Context, req GetRequest, dest any) error {
	data, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding %s: %w", req.URL, err)
	}
	return nil
}

// GetResponse issues a read. When the read fails for any reason the
// server is probed: if the probe fails its error replaces the original,
// so callers learn whether the network or the server is at fault.
// Otherwise the original error is returned.
func (c *Client) GetResponse(ctx context.Context, req GetRequest) (*Response, error) {
	cfg := ExtendConfig(req.Config)
	target, err := resolveURL(cfg.BaseURL, req.URL)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, target, req.Params, cfg, req.NoCache || cfg.NoCache)
	if err == nil {
		return resp, nil
	}

	server := cfg.Server
	if server == "" {
		server = serverOf(target)
	}
	if probeErr := c.CheckIfServerOnline(ctx, server); probeErr != nil {
		c.logger.Warn("read failed and server probe failed",
			zap.String("url", target),
			zap.NamedError("cause", err),
			zap.Error(probeErr))
		return nil, probeErr
	}
	return nil, err
}

func (c *Client) get(ctx context.Context, target string, params url.Values, cfg APIConfig, noCache bool) (*Response, error) {
	if noCache || c.cache == nil {
		p := cloneValues(params)
		if noCache && p.Get(noCacheParam) == "" {
			p.Set(noCacheParam, uuid.NewString())
		}
		return c.do(ctx, http.MethodGet, target, p, cfg.Headers, nil)
	}

	if entry, err := c.cache.Lookup(ctx, target, params); err == nil {
		c.logger.Debug("cache hit", zap.String("url", target))
		return &Response{
			StatusCode: entry.StatusCode,
			Header:     entry.Header,
			Data:       entry.Body,
			Cached:     true,
		}, nil
	}

	resp, err := c.do(ctx, http.MethodGet, target, params, cfg.Headers, nil)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Store(ctx, target, params, resp.StatusCode, resp.Header, resp.Data); err != nil {
		c.logger.Warn("storing response in cache", zap.String("url", target), zap.Error(err))
	}
	return resp, nil
}

func (c *Client) Post(ctx context.Context, req RestRequest) ([]byte, error) {
	return c.write(ctx, http.MethodPost, req)
}

func (c *Client) Put(ctx context.Context, req RestRequest) ([]byte, error) {
	return c.write(ctx, http.MethodPut, req)
}

func (c *Client) Patch(ctx context.Context, req RestRequest) ([]byte, error) {
	return c.write(ctx, http.MethodPatch, req)
}

// Delete sends req.Payload, if any, as the request body.
func (c *Client) Delete(ctx context.Context, req RestRequest) ([]byte, error) {
	return c.write(ctx, http.MethodDelete, req)
}

func (c *Client) write(ctx context.Context, method string, req RestRequest) ([]byte, error) {
	cfg := ExtendConfig(req.Config)
	target, err := resolveURL(cfg.BaseURL, req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, target, nil, cfg.Headers, body)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, target string, params url.Values, headers map[string]string, body io.Reader) (*Response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", target, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", u.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperrors.StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Data:       data,
	}, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
