// Package cache holds the HTTP response cache shared by every client call.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrMiss = errors.New("cache miss")

// Store is the key/value backend of a ResponseCache. Values are opaque.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps values in a bounded LRU. Expiry is left to the
// ResponseCache, which stamps every entry.
type MemoryStore struct {
	lru *lru.Cache[string, []byte]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	return &MemoryStore{lru: c}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.lru.Add(key, value)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.lru.Purge()
	return nil
}

func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

// BadgerStore persists values across runs under a key prefix. Badger's
// own TTL reclaims expired entries.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{db: db, prefix: prefix}
}

func (s *BadgerStore) makeKey(key string) []byte {
	return []byte(s.prefix + ":" + key)
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.makeKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	return value, nil
}

func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry(s.makeKey(key), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.makeKey(key))
	})
}

func (s *BadgerStore) Clear(_ context.Context) error {
	if err := s.db.DropPrefix([]byte(s.prefix + ":")); err != nil {
		return fmt.Errorf("dropping cache entries: %w", err)
	}
	return nil
}

// Tiered reads through a fast store in front of a durable one. Writes go
// to both.
type Tiered struct {
	Front Store
	Back  Store
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := t.Front.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := t.Back.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	// promotion failures only cost a later back-store read
	_ = t.Front.Set(ctx, key, v, 0)
	return v, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.Front.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return t.Back.Set(ctx, key, value, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.Front.Delete(ctx, key); err != nil {
		return err
	}
	return t.Back.Delete(ctx, key)
}

func (t *Tiered) Clear(ctx context.Context) error {
	if err := t.Front.Clear(ctx); err != nil {
		return err
	}
	return t.Back.Clear(ctx)
}
