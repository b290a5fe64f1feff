package file

import (
	"context"
	"errors"

	"giteakit/internal/gitea"
)

var (
	ErrNoFile = errors.New("no file is open")
	// ErrNoTarget is returned by Load when the repository or the filepath
	// is missing.
	ErrNoTarget = errors.New("repository and filepath are required")
	// ErrSuperseded is returned by an operation whose result was
	// discarded because a later Load or Close replaced it.
	ErrSuperseded = errors.New("superseded by a newer operation")
)

type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

// Record is the open file. It is replaced wholesale on every load.
type Record struct {
	Name        string `json:"name"`
	Filepath    string `json:"filepath"`
	Branch      string `json:"branch"`
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url,omitempty"`
	// PublishedContent is the catalog copy at the production tag, when the
	// repository has one and the content did not come from a draft.
	PublishedContent *string `json:"published_content,omitempty"`
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.PublishedContent != nil {
		p := *r.PublishedContent
		out.PublishedContent = &p
	}
	return &out
}

// CacheRequest identifies the file an autosave draft belongs to.
type CacheRequest struct {
	Repository *gitea.Repository
	Branch     string
	HTMLURL    string
	Filepath   string
}

// Autosave keeps local drafts of files being edited.
type Autosave interface {
	// Load returns the draft for req, or "" when there is none.
	Load(ctx context.Context, req CacheRequest) (string, error)
	// Save stores content as the draft for req. A nil content clears it.
	Save(ctx context.Context, req CacheRequest, content *string) error
}

// Confirmer decides whether an open file may be replaced by another.
type Confirmer func(ctx context.Context) (bool, error)

// Remote is the part of the Gitea API a Session drives.
type Remote interface {
	EnsureFile(ctx context.Context, req gitea.FileRequest) (*gitea.Contents, error)
	FileContent(ctx context.Context, c *gitea.Contents) (string, error)
	UpdateFile(ctx context.Context, opts gitea.UpdateFileOptions) (*gitea.Contents, error)
	DeleteFile(ctx context.Context, opts gitea.DeleteFileOptions) error
	FetchCatalogContent(ctx context.Context, org, repo, tag, filepath string) (string, error)
}

type EventKind int

const (
	FilepathChanged EventKind = iota + 1
	BranchChanged
	DirtyChanged
)

func (k EventKind) String() string {
	switch k {
	case FilepathChanged:
		return "filepath"
	case BranchChanged:
		return "branch"
	case DirtyChanged:
		return "dirty"
	default:
		return "unknown"
	}
}

// Event is pushed to listeners after the change it reports.
type Event struct {
	Kind     EventKind `json:"kind"`
	Filepath string    `json:"filepath,omitempty"`
	Branch   string    `json:"branch,omitempty"`
	Dirty    bool      `json:"dirty"`
}

// Listener receives events synchronously, in order, outside the
// session's lock.
type Listener func(Event)
