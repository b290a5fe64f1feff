// Package file coordinates one open file of a Gitea repository: ensure it
// exists, load it (draft first, then the server), save, delete and close.
package file

import (
	"context"
	"fmt"
	"sync"

	"giteakit/internal/gitea"
	"giteakit/internal/logging"

	"go.uber.org/zap"
)

type Options struct {
	// DefaultContent seeds files that do not exist yet.
	DefaultContent string
	Validate       gitea.OpenValidator
	Autosave       Autosave
	// Confirm gates Replace while another file is open.
	Confirm Confirmer
	// CatalogOrg owns the published copies. Empty means the repository
	// owner.
	CatalogOrg string
	Logger     *zap.Logger
}

type subscription struct {
	id       int
	listener Listener
}

// Session holds at most one open file. It is safe for concurrent use;
// every Load and Close starts a new generation and results of older
// generations are dropped with ErrSuperseded.
type Session struct {
	remote Remote
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	repo       *gitea.Repository
	filepath   string
	record     *Record
	state      State
	dirty      bool
	generation uint64
	listeners  []subscription
	nextID     int
}

func New(remote Remote, opts Options) *Session {
	logger := logging.OrNop(opts.Logger)
	return &Session{
		remote: remote,
		opts:   opts,
		logger: logger,
	}
}

// Subscribe registers l and returns a function removing it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, listener: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	for i, sub := range s.listeners {
		listeners[i] = sub.listener
	}
	s.mu.Unlock()

	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// File returns a copy of the open file, or nil.
func (s *Session) File() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.clone()
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) Filepath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filepath
}

func (s *Session) Repository() *gitea.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return nil
	}
	r := *s.repo
	return &r
}

func (s *Session) Branch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branchLocked()
}

func (s *Session) branchLocked() string {
	if s.repo == nil {
		return ""
	}
	return s.repo.WorkingBranch()
}

// needsLoadLocked reports whether the current target differs from what
// is loaded.
func (s *Session) needsLoadLocked() bool {
	if s.repo == nil || s.filepath == "" {
		return false
	}
	return s.record == nil || s.record.Filepath != s.filepath
}

// SetRepository switches the repository context. A nil repository closes
// the open file. When a filepath is pending the file is loaded.
func (s *Session) SetRepository(ctx context.Context, repo *gitea.Repository) error {
	if repo == nil {
		s.mu.Lock()
		open := s.record != nil
		s.repo = nil
		s.mu.Unlock()

		if open {
			s.Close()
		}
		return nil
	}

	r := *repo
	s.mu.Lock()
	before := s.branchLocked()
	s.repo = &r
	after := s.branchLocked()
	load := s.needsLoadLocked()
	s.mu.Unlock()

	if before != after {
		s.emit(Event{Kind: BranchChanged, Branch: after})
	}
	if !load {
		return nil
	}
	_, err := s.Load(ctx)
	return err
}

// SetBranch changes the working branch of the repository context.
func (s *Session) SetBranch(branch string) {
	s.mu.Lock()
	if s.repo == nil || s.repo.WorkingBranch() == branch {
		s.mu.Unlock()
		return
	}
	r := *s.repo
	r.Branch = branch
	s.repo = &r
	s.mu.Unlock()

	s.emit(Event{Kind: BranchChanged, Branch: branch})
}

// Read announces filepath to listeners without opening it.
func (s *Session) Read(filepath string) {
	s.emit(Event{Kind: FilepathChanged, Filepath: filepath})
}

// Open targets filepath and loads it when a repository is set.
func (s *Session) Open(ctx context.Context, filepath string) error {
	s.mu.Lock()
	changed := s.filepath != filepath
	s.filepath = filepath
	load := s.needsLoadLocked()
	s.mu.Unlock()

	if changed {
		s.emit(Event{Kind: FilepathChanged, Filepath: filepath})
	}
	if !load {
		return nil
	}
	_, err := s.Load(ctx)
	return err
}

// Load ensures the target exists and replaces the open file with it.
// Content comes from a non-empty draft when there is one; otherwise from
// the server, with the published copy attached when the repository
// declares a production tag.
func (s *Session) Load(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	if s.repo == nil || s.filepath == "" {
		s.mu.Unlock()
		return nil, ErrNoTarget
	}
	repo := *s.repo
	filepath := s.filepath
	s.generation++
	gen := s.generation
	s.state = StateLoading
	s.mu.Unlock()

	rec, err := s.fetch(ctx, &repo, filepath)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("dropping superseded load", zap.String("filepath", filepath), zap.Uint64("generation", gen))
		return nil, ErrSuperseded
	}
	if err != nil {
		if s.record != nil {
			s.state = StateLoaded
		} else {
			s.state = StateEmpty
		}
		s.mu.Unlock()
		return nil, err
	}
	s.record = rec
	s.state = StateLoaded
	events := s.resetDirtyLocked()
	out := rec.clone()
	s.mu.Unlock()

	s.emit(events...)
	s.logger.Debug("file loaded",
		zap.String("filepath", rec.Filepath),
		zap.String("branch", rec.Branch),
		zap.Bool("published", rec.PublishedContent != nil))
	return out, nil
}

func (s *Session) fetch(ctx context.Context, repo *gitea.Repository, filepath string) (*Record, error) {
	branch := repo.WorkingBranch()
	contents, err := s.remote.EnsureFile(ctx, gitea.FileRequest{
		Repository:     repo,
		Branch:         branch,
		Filepath:       filepath,
		DefaultContent: s.opts.DefaultContent,
		Validate:       s.opts.Validate,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring %s: %w", filepath, err)
	}
	if contents == nil {
		return nil, fmt.Errorf("ensuring %s: %w", filepath, gitea.ErrNoContents)
	}

	rec := &Record{
		Name:        contents.Name,
		Filepath:    contents.Path,
		Branch:      branch,
		SHA:         contents.SHA,
		HTMLURL:     contents.HTMLURL,
		DownloadURL: contents.DownloadURL,
	}
	if rec.Filepath == "" {
		rec.Filepath = filepath
	}

	if draft := s.loadDraft(ctx, repo, rec); draft != "" {
		rec.Content = draft
		return rec, nil
	}

	content, err := s.remote.FileContent(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath, err)
	}
	rec.Content = content

	if tag := repo.ProdTag(); tag != "" {
		org := s.opts.CatalogOrg
		if org == "" {
			org = repo.OwnerName()
		}
		published, err := s.remote.FetchCatalogContent(ctx, org, repo.Name, tag, filepath)
		if err != nil {
			s.logger.Warn("published content unavailable",
				zap.String("repo", repo.Name),
				zap.String("tag", tag),
				zap.Error(err))
		} else {
			rec.PublishedContent = &published
		}
	}
	return rec, nil
}

func cacheRequest(repo *gitea.Repository, rec *Record) CacheRequest {
	return CacheRequest{
		Repository: repo,
		Branch:     rec.Branch,
		HTMLURL:    rec.HTMLURL,
		Filepath:   rec.Filepath,
	}
}

func (s *Session) loadDraft(ctx context.Context, repo *gitea.Repository, rec *Record) string {
	if s.opts.Autosave == nil || rec.HTMLURL == "" {
		return ""
	}
	draft, err := s.opts.Autosave.Load(ctx, cacheRequest(repo, rec))
	if err != nil {
		s.logger.Warn("reading draft", zap.String("html_url", rec.HTMLURL), zap.Error(err))
		return ""
	}
	return draft
}

// CreateFile ensures filepath on branch, switches to that branch and
// opens the file.
func (s *Session) CreateFile(ctx context.Context, branch, filepath, defaultContent string) error {
	s.mu.Lock()
	if s.repo == nil {
		s.mu.Unlock()
		return ErrNoTarget
	}
	repo := *s.repo
	s.mu.Unlock()

	_, err := s.remote.EnsureFile(ctx, gitea.FileRequest{
		Repository:     &repo,
		Branch:         branch,
		Filepath:       filepath,
		DefaultContent: defaultContent,
		Validate:       s.opts.Validate,
	})
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath, err)
	}

	s.SetBranch(branch)
	return s.Open(ctx, filepath)
}

// Save writes content, clears the draft and reloads the file. A failed
// write leaves the open file as it was.
func (s *Session) Save(ctx context.Context, content string) (*Record, error) {
	s.mu.Lock()
	if s.record == nil || s.repo == nil {
		s.mu.Unlock()
		return nil, ErrNoFile
	}
	repo := *s.repo
	rec := s.record.clone()
	s.mu.Unlock()

	_, err := s.remote.UpdateFile(ctx, gitea.UpdateFileOptions{
		Owner:    repo.OwnerName(),
		Repo:     repo.Name,
		Filepath: rec.Filepath,
		Branch:   rec.Branch,
		SHA:      rec.SHA,
		Content:  content,
	})
	if err != nil {
		return nil, fmt.Errorf("saving %s: %w", rec.Filepath, err)
	}

	if err := s.saveDraft(ctx, &repo, rec, nil); err != nil {
		return nil, err
	}
	return s.Load(ctx)
}

// SaveCache stores content as the draft of the open file.
func (s *Session) SaveCache(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.record == nil || s.repo == nil {
		s.mu.Unlock()
		return ErrNoFile
	}
	repo := *s.repo
	rec := s.record.clone()
	s.mu.Unlock()

	return s.saveDraft(ctx, &repo, rec, &content)
}

func (s *Session) saveDraft(ctx context.Context, repo *gitea.Repository, rec *Record, content *string) error {
	if s.opts.Autosave == nil {
		return nil
	}
	if err := s.opts.Autosave.Save(ctx, cacheRequest(repo, rec), content); err != nil {
		return fmt.Errorf("saving draft of %s: %w", rec.Filepath, err)
	}
	return nil
}

// Delete removes the open file from the server and closes it. Without
// push permission nothing happens and false is returned.
func (s *Session) Delete(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.record == nil || s.repo == nil {
		s.mu.Unlock()
		return false, ErrNoFile
	}
	repo := *s.repo
	rec := s.record.clone()
	s.mu.Unlock()

	if !repo.Writeable() {
		s.logger.Debug("delete skipped without push permission", zap.String("repo", repo.FullName))
		return false, nil
	}

	err := s.remote.DeleteFile(ctx, gitea.DeleteFileOptions{
		Owner:    repo.OwnerName(),
		Repo:     repo.Name,
		Filepath: rec.Filepath,
		Branch:   rec.Branch,
		SHA:      rec.SHA,
	})
	if err != nil {
		return false, err
	}

	s.Close()
	return true, nil
}

// Close drops the open file and clears the filepath. Loads in flight are
// superseded.
func (s *Session) Close() {
	s.mu.Lock()
	s.generation++
	s.record = nil
	s.filepath = ""
	s.state = StateEmpty
	events := append([]Event{{Kind: FilepathChanged}}, s.resetDirtyLocked()...)
	s.mu.Unlock()

	s.emit(events...)
}

// Replace closes the open file and opens filepath. When another file is
// open and a Confirmer is set, it must agree first; false is returned
// when it does not.
func (s *Session) Replace(ctx context.Context, filepath string) (bool, error) {
	s.mu.Lock()
	current := s.record
	s.mu.Unlock()

	if current != nil && current.Filepath != filepath && s.opts.Confirm != nil {
		ok, err := s.opts.Confirm(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	s.Close()
	if filepath == "" {
		return true, nil
	}
	return true, s.Open(ctx, filepath)
}

// MarkChanged sets the dirty flag. Loading or closing a file resets it.
func (s *Session) MarkChanged(dirty bool) {
	s.mu.Lock()
	if s.dirty == dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = dirty
	s.mu.Unlock()

	s.emit(Event{Kind: DirtyChanged, Dirty: dirty})
}

func (s *Session) resetDirtyLocked() []Event {
	if !s.dirty {
		return nil
	}
	s.dirty = false
	return []Event{{Kind: DirtyChanged, Dirty: false}}
}
