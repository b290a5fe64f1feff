// Package draft keeps autosaved drafts of files being edited, keyed by
// the file's html_url.
package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giteakit/internal/file"
	"giteakit/internal/logging"
	"giteakit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const prefix = "draft"

type Draft struct {
	HTMLURL    string    `json:"html_url"`
	Repository string    `json:"repository,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	Filepath   string    `json:"filepath,omitempty"`
	Content    string    `json:"content"`
	SavedAt    time.Time `json:"saved_at"`
}

func (d Draft) GetID() string {
	return d.HTMLURL
}

// Store is a file.Autosave backed by badger.
type Store struct {
	drafts *storage.BadgerStore[Draft]
	logger *zap.Logger
	now    func() time.Time
}

var _ file.Autosave = (*Store)(nil)

func NewStore(db *badger.DB, logger *zap.Logger) *Store {
	logger = logging.OrNop(logger)
	return &Store{
		drafts: storage.NewBadgerStore[Draft](db, prefix),
		logger: logger,
		now:    time.Now,
	}
}

func (s *Store) Load(ctx context.Context, req file.CacheRequest) (string, error) {
	if req.HTMLURL == "" {
		return "", nil
	}
	d, err := s.drafts.Get(req.HTMLURL)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading draft: %w", err)
	}
	return d.Content, nil
}

func (s *Store) Save(ctx context.Context, req file.CacheRequest, content *string) error {
	if req.HTMLURL == "" {
		return fmt.Errorf("draft of %s has no html_url", req.Filepath)
	}

	if content == nil {
		err := s.drafts.Delete(req.HTMLURL)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("clearing draft: %w", err)
		}
		s.logger.Debug("draft cleared", zap.String("html_url", req.HTMLURL))
		return nil
	}

	d := Draft{
		HTMLURL:  req.HTMLURL,
		Branch:   req.Branch,
		Filepath: req.Filepath,
		Content:  *content,
		SavedAt:  s.now().UTC(),
	}
	if req.Repository != nil {
		d.Repository = req.Repository.FullName
	}
	if err := s.drafts.Put(d); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	s.logger.Debug("draft saved", zap.String("html_url", req.HTMLURL), zap.Int("bytes", len(d.Content)))
	return nil
}

func (s *Store) Get(htmlURL string) (Draft, error) {
	return s.drafts.Get(htmlURL)
}

func (s *Store) List() ([]Draft, error) {
	return s.drafts.List()
}
