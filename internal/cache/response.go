package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"giteakit/internal/logging"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// DefaultMaxAge mirrors the browser toolkit: cached responses only live
// long enough to collapse bursts of identical reads.
const DefaultMaxAge = time.Second

// KeyFunc derives the cache key of a request.
type KeyFunc func(rawURL string, params url.Values) string

// DefaultKey keys on the URL plus its serialized query parameters.
func DefaultKey(rawURL string, params url.Values) string {
	return rawURL + params.Encode()
}

// HashKey compacts a cache key into a fixed width store key.
func HashKey(key string) string {
	h := xxh3.HashString128(key)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// Entry is a cached response.
type Entry struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type Options struct {
	MaxAge time.Duration
	Key    KeyFunc
	// CompressMinSize is the smallest body stored zstd compressed. Zero
	// disables compression.
	CompressMinSize int
	Logger          *zap.Logger
	Now             func() time.Time
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64
	Misses int64
	Stores int64
}

// ResponseCache is the TTL cache consulted by client reads. It is safe
// for concurrent use as long as its Store is.
type ResponseCache struct {
	store  Store
	maxAge time.Duration
	key    KeyFunc
	codec  *codec
	logger *zap.Logger
	now    func() time.Time

	hits, misses, stores atomic.Int64
}

func NewResponseCache(store Store, opts Options) (*ResponseCache, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Key == nil {
		opts.Key = DefaultKey
	}
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c, err := newCodec(opts.CompressMinSize)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{
		store:  store,
		maxAge: opts.MaxAge,
		key:    opts.Key,
		codec:  c,
		logger: opts.Logger,
		now:    opts.Now,
	}, nil
}

func (c *ResponseCache) MaxAge() time.Duration {
	return c.maxAge
}

// Lookup returns the live entry for the request, or ErrMiss.
func (c *ResponseCache) Lookup(ctx context.Context, rawURL string, params url.Values) (*Entry, error) {
	key := HashKey(c.key(rawURL, params))

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		c.misses.Add(1)
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache read failed", zap.String("url", rawURL), zap.Error(err))
		}
		return nil, ErrMiss
	}

	data, err := c.codec.decode(raw)
	if err != nil {
		c.misses.Add(1)
		c.logger.Warn("dropping undecodable cache entry", zap.String("url", rawURL), zap.Error(err))
		_ = c.store.Delete(ctx, key)
		return nil, ErrMiss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.misses.Add(1)
		_ = c.store.Delete(ctx, key)
		return nil, ErrMiss
	}

	if entry.expired(c.now()) {
		c.misses.Add(1)
		_ = c.store.Delete(ctx, key)
		return nil, ErrMiss
	}

	c.hits.Add(1)
	return &entry, nil
}

// Store records a response for maxAge.
func (c *ResponseCache) Store(ctx context.Context, rawURL string, params url.Values, status int, header http.Header, body []byte) error {
	entry := Entry{
		StatusCode: status,
		Header:     header,
		Body:       body,
		ExpiresAt:  c.now().Add(c.maxAge),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	key := HashKey(c.key(rawURL, params))
	if err := c.store.Set(ctx, key, c.codec.encode(data), c.maxAge); err != nil {
		return err
	}
	c.stores.Add(1)
	return nil
}

// Invalidate drops the entry for the request, if any.
func (c *ResponseCache) Invalidate(ctx context.Context, rawURL string, params url.Values) error {
	return c.store.Delete(ctx, HashKey(c.key(rawURL, params)))
}

func (c *ResponseCache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *ResponseCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Stores: c.stores.Load(),
	}
}
