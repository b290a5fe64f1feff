package gitea

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"giteakit/client"
	apperrors "giteakit/internal/errors"

	"go.uber.org/zap"
)

// ErrNoContents is returned when a write succeeds but the response names
// no file entry.
var ErrNoContents = errors.New("response carried no file entry")

// OpenValidator inspects the content of an existing file before it is
// opened. A non-nil error refuses the file.
type OpenValidator func(filepath, content string) error

// FileRequest identifies a file to ensure.
type FileRequest struct {
	Repository     *Repository
	Branch         string
	Filepath       string
	DefaultContent string
	Validate       OpenValidator
}

type CreateFileOptions struct {
	Owner    string
	Repo     string
	Filepath string
	// Branch is where the file is committed. When NewBranch is set, Branch
	// is the base NewBranch is created from.
	Branch    string
	NewBranch string
	Content   string
	Message   string
}

type UpdateFileOptions struct {
	Owner    string
	Repo     string
	Filepath string
	Branch   string
	SHA      string
	Content  string
	Message  string
}

type DeleteFileOptions struct {
	Owner    string
	Repo     string
	Filepath string
	Branch   string
	SHA      string
	Message  string
}

func contentsEndpoint(owner, repo, filepath string) string {
	return client.Endpoint("repos", owner, repo, "contents", filepath)
}

// GetContents reads a file entry. Contents are never served from the
// response cache: a read after a write must see the write.
func (a *API) GetContents(ctx context.Context, owner, repo, filepath, ref string) (*Contents, error) {
	params := url.Values{}
	if ref != "" {
		params.Set("ref", ref)
	}
	var c Contents
	if err := a.getJSON(ctx, contentsEndpoint(owner, repo, filepath), params, true, &c); err != nil {
		return nil, fmt.Errorf("getting %s: %w", filepath, err)
	}
	return &c, nil
}

func (a *API) CreateFile(ctx context.Context, opts CreateFileOptions) (*Contents, error) {
	payload := map[string]any{
		"content": base64.StdEncoding.EncodeToString([]byte(opts.Content)),
		"message": commitMessage(opts.Message, "Create", opts.Filepath),
		"branch":  opts.Branch,
	}
	if opts.NewBranch != "" {
		payload["new_branch"] = opts.NewBranch
	}

	var resp FileResponse
	if err := a.send(ctx, a.client.Post, contentsEndpoint(opts.Owner, opts.Repo, opts.Filepath), payload, &resp); err != nil {
		return nil, fmt.Errorf("creating %s: %w", opts.Filepath, err)
	}
	if resp.Content == nil {
		return nil, fmt.Errorf("creating %s: %w", opts.Filepath, ErrNoContents)
	}
	a.logger.Info("file created",
		zap.String("repo", opts.Owner+"/"+opts.Repo),
		zap.String("path", opts.Filepath),
		zap.String("branch", firstNonEmpty(opts.NewBranch, opts.Branch)))
	return resp.Content, nil
}

func (a *API) UpdateFile(ctx context.Context, opts UpdateFileOptions) (*Contents, error) {
	payload := map[string]any{
		"content": base64.StdEncoding.EncodeToString([]byte(opts.Content)),
		"message": commitMessage(opts.Message, "Edit", opts.Filepath),
		"branch":  opts.Branch,
		"sha":     opts.SHA,
	}

	var resp FileResponse
	if err := a.send(ctx, a.client.Put, contentsEndpoint(opts.Owner, opts.Repo, opts.Filepath), payload, &resp); err != nil {
		return nil, fmt.Errorf("updating %s: %w", opts.Filepath, err)
	}
	if resp.Content == nil {
		return nil, fmt.Errorf("updating %s: %w", opts.Filepath, ErrNoContents)
	}
	return resp.Content, nil
}

func (a *API) DeleteFile(ctx context.Context, opts DeleteFileOptions) error {
	payload := map[string]any{
		"message": commitMessage(opts.Message, "Delete", opts.Filepath),
		"branch":  opts.Branch,
		"sha":     opts.SHA,
	}
	if err := a.send(ctx, a.client.Delete, contentsEndpoint(opts.Owner, opts.Repo, opts.Filepath), payload, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", opts.Filepath, err)
	}
	a.logger.Info("file deleted",
		zap.String("repo", opts.Owner+"/"+opts.Repo),
		zap.String("path", opts.Filepath))
	return nil
}

// FileContent returns the decoded text of c, downloading it when the
// entry came without inline content.
func (a *API) FileContent(ctx context.Context, c *Contents) (string, error) {
	if c == nil {
		return "", nil
	}
	if c.Encoding == "base64" {
		raw := strings.NewReplacer("\n", "", "\r", "").Replace(c.Content)
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", fmt.Errorf("decoding %s: %w", c.Path, err)
		}
		return string(data), nil
	}
	if c.Content != "" || c.DownloadURL == "" {
		return c.Content, nil
	}

	data, err := a.client.Get(ctx, client.GetRequest{URL: c.DownloadURL, Config: a.config, NoCache: true})
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", c.Path, err)
	}
	return string(data), nil
}

// EnsureFile returns the file named by req, creating it with the default
// content when it does not exist. A missing working branch is created
// from the repository's default branch in the same commit.
func (a *API) EnsureFile(ctx context.Context, req FileRequest) (*Contents, error) {
	repo := req.Repository
	if repo == nil {
		return nil, fmt.Errorf("ensure %s: no repository", req.Filepath)
	}
	owner := repo.OwnerName()
	branch := firstNonEmpty(req.Branch, repo.WorkingBranch())

	existing, err := a.GetContents(ctx, owner, repo.Name, req.Filepath, branch)
	if err == nil {
		if req.Validate != nil {
			content, err := a.FileContent(ctx, existing)
			if err != nil {
				return nil, err
			}
			if err := req.Validate(req.Filepath, content); err != nil {
				return nil, fmt.Errorf("opening %s: %w", req.Filepath, err)
			}
		}
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	opts := CreateFileOptions{
		Owner:    owner,
		Repo:     repo.Name,
		Filepath: req.Filepath,
		Branch:   branch,
		Content:  req.DefaultContent,
	}
	if branch != "" && branch != repo.DefaultBranch {
		if _, err := a.GetBranch(ctx, owner, repo.Name, branch); err != nil {
			if !apperrors.IsNotFound(err) {
				return nil, fmt.Errorf("checking branch %s: %w", branch, err)
			}
			opts.Branch = repo.DefaultBranch
			opts.NewBranch = branch
		}
	}
	return a.CreateFile(ctx, opts)
}

func commitMessage(message, verb, filepath string) string {
	if message != "" {
		return message
	}
	return fmt.Sprintf("%s '%s'", verb, path.Base(filepath))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
