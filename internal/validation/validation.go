package validation

import (
	"encoding/json"
	"net/http"
	"path"
	"regexp"
	"strings"

	"giteakit/internal/errors"
)

type Validator interface {
	Validate() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// OpenSessionRequest names the file a new editing session opens.
type OpenSessionRequest struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	Branch         string `json:"branch,omitempty"`
	Filepath       string `json:"filepath"`
	DefaultContent string `json:"default_content,omitempty"`
}

func (o *OpenSessionRequest) Validate() error {
	problems := map[string]string{}
	if !namePattern.MatchString(o.Owner) {
		problems["owner"] = "must be a user or organization name"
	}
	if !namePattern.MatchString(o.Repo) {
		problems["repo"] = "must be a repository name"
	}
	if o.Branch != "" && !ValidBranch(o.Branch) {
		problems["branch"] = "is not a valid branch name"
	}
	if msg := checkFilepath(o.Filepath); msg != "" {
		problems["filepath"] = msg
	}
	if len(problems) > 0 {
		return errors.ValidationError("invalid session request", problems)
	}
	return nil
}

// ContentRequest carries the text of a save or a draft.
type ContentRequest struct {
	Content *string `json:"content"`
}

func (c *ContentRequest) Validate() error {
	if c.Content == nil {
		return errors.ValidationError("content is required", nil)
	}
	return nil
}

// Decode reads a JSON body into v and validates it.
func Decode(r *http.Request, v Validator) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.ValidationError("invalid request body", nil)
	}
	return v.Validate()
}

func checkFilepath(p string) string {
	switch {
	case strings.TrimSpace(p) == "":
		return "is required"
	case strings.HasPrefix(p, "/"):
		return "must be relative to the repository root"
	case path.Clean(p) != p:
		return "must be a clean path"
	case p == ".." || strings.HasPrefix(p, "../"):
		return "must stay inside the repository"
	}
	return ""
}

// ValidBranch applies the subset of git's ref name rules that matter for
// names typed by people.
func ValidBranch(name string) bool {
	if name == "" || strings.HasPrefix(name, "-") || strings.HasSuffix(name, ".") || strings.HasSuffix(name, "/") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") || strings.HasSuffix(name, ".lock") {
		return false
	}
	return !strings.ContainsAny(name, " ~^:?*[\\")
}
