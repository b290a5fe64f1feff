// Package app assembles the toolkit from a config: badger, the response
// cache, the REST client, the Gitea API and the draft store.
package app

import (
	"fmt"
	"os"

	"giteakit/client"
	"giteakit/internal/cache"
	"giteakit/internal/config"
	"giteakit/internal/draft"
	"giteakit/internal/gitea"
	"giteakit/internal/logging"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const responsePrefix = "http"

type App struct {
	Config *config.Config
	Logger *logging.Logger
	DB     *badger.DB
	Cache  *cache.ResponseCache
	Client *client.Client
	Gitea  *gitea.API
	Drafts *draft.Store
}

// Open builds an App. Close releases it.
func Open(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	if err := os.MkdirAll(cfg.Database.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", cfg.Database.Path, err)
	}
	opts := badger.DefaultOptions(cfg.Database.Path)
	opts.Logger = badgerLogger{logger.Named("badger").Sugar()}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rc, err := newResponseCache(cfg, db, logger.Logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := client.New(
		client.WithCache(rc),
		client.WithLogger(logger.Named("client")),
	)

	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Cache:  rc,
		Client: c,
		Gitea:  gitea.New(c, APIConfig(cfg), logger.Named("gitea")),
		Drafts: draft.NewStore(db, logger.Named("draft")),
	}, nil
}

func newResponseCache(cfg *config.Config, db *badger.DB, logger *zap.Logger) (*cache.ResponseCache, error) {
	mem, err := cache.NewMemoryStore(cfg.Cache.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}

	var store cache.Store = mem
	if cfg.Cache.Persistent {
		store = &cache.Tiered{Front: mem, Back: cache.NewBadgerStore(db, responsePrefix)}
	}

	rc, err := cache.NewResponseCache(store, cache.Options{
		MaxAge:          cfg.Cache.MaxAge,
		CompressMinSize: cfg.Cache.CompressMinSize,
		Logger:          logger.Named("cache"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating response cache: %w", err)
	}
	return rc, nil
}

// APIConfig is the server config the toolkit authenticates with.
func APIConfig(cfg *config.Config) client.APIConfig {
	return client.APIConfig{
		Server:   cfg.Gitea.Server,
		Token:    cfg.Gitea.Token,
		Username: cfg.Gitea.Username,
		Password: cfg.Gitea.Password,
	}
}

func (a *App) Close() error {
	return a.DB.Close()
}

// badgerLogger routes badger's logs through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
