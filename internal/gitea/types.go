// internal/gitea/types.go
package gitea

import "time"

type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Name is the login, falling back to the legacy username field.
func (u *User) Name() string {
	if u.Login != "" {
		return u.Login
	}
	return u.Username
}

type Organization struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

type Permissions struct {
	Admin bool `json:"admin"`
	Push  bool `json:"push"`
	Pull  bool `json:"pull"`
}

// CatalogRelease names the ref a catalog stage was published from.
type CatalogRelease struct {
	BranchOrTagName string `json:"branch_or_tag_name"`
}

type Catalog struct {
	Prod    *CatalogRelease `json:"prod,omitempty"`
	Preprod *CatalogRelease `json:"preprod,omitempty"`
}

type Repository struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	FullName      string       `json:"full_name"`
	Description   string       `json:"description"`
	Owner         User         `json:"owner"`
	HTMLURL       string       `json:"html_url"`
	DefaultBranch string       `json:"default_branch"`
	Permissions   *Permissions `json:"permissions,omitempty"`
	Catalog       *Catalog     `json:"catalog,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Branch is the working branch picked by the caller. It is not part
	// of the API payload.
	Branch string `json:"branch,omitempty"`
}

// WorkingBranch is the caller's branch, or the default branch.
func (r *Repository) WorkingBranch() string {
	if r.Branch != "" {
		return r.Branch
	}
	return r.DefaultBranch
}

func (r *Repository) OwnerName() string {
	return r.Owner.Name()
}

// Writeable reports push permission.
func (r *Repository) Writeable() bool {
	return r.Permissions != nil && r.Permissions.Push
}

// ProdTag is the ref of the production catalog release, if any.
func (r *Repository) ProdTag() string {
	if r.Catalog == nil || r.Catalog.Prod == nil {
		return ""
	}
	return r.Catalog.Prod.BranchOrTagName
}

type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		ID string `json:"id"`
	} `json:"commit"`
}

// Contents is a file entry of the contents API.
type Contents struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	Encoding    string `json:"encoding,omitempty"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url"`
}

type FileResponse struct {
	Content *Contents `json:"content"`
}

type AccessToken struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	SHA1           string   `json:"sha1,omitempty"`
	TokenLastEight string   `json:"token_last_eight,omitempty"`
	Scopes         []string `json:"scopes,omitempty"`
}

type ServerVersion struct {
	Version string `json:"version"`
}
