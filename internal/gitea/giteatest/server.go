// Package giteatest runs an in-memory Gitea for tests. It serves the
// subset of the REST API the toolkit consumes and counts every call.
package giteatest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"giteakit/client"
	"giteakit/internal/gitea"

	"github.com/google/uuid"
)

const Version = "1.21.11"

type userRecord struct {
	user     gitea.User
	password string
	tokens   []gitea.AccessToken
	orgs     []string
}

type repoRecord struct {
	repo     gitea.Repository
	branches map[string]map[string]string
	tags     map[string]map[string]string
}

// RepoSeed describes a repository to create.
type RepoSeed struct {
	Owner         string
	Name          string
	DefaultBranch string
	Push          bool
	ProdTag       string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	users    map[string]*userRecord
	orgs     map[string]gitea.Organization
	repos    map[string]*repoRecord
	tokens   map[string]string
	calls    map[string]int
	failures map[string]int
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	s := &Server{
		users:    map[string]*userRecord{},
		orgs:     map[string]gitea.Organization{},
		repos:    map[string]*repoRecord{},
		tokens:   map[string]string{},
		calls:    map[string]int{},
		failures: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/user", s.handleCurrentUser)
	mux.HandleFunc("GET /api/v1/user/orgs", s.handleCurrentUserOrgs)
	mux.HandleFunc("GET /api/v1/users/{name}", s.handleGetUser)
	mux.HandleFunc("GET /api/v1/users/{name}/orgs", s.handleUserOrgs)
	mux.HandleFunc("GET /api/v1/users/{name}/tokens", s.handleListTokens)
	mux.HandleFunc("POST /api/v1/users/{name}/tokens", s.handleCreateToken)
	mux.HandleFunc("DELETE /api/v1/users/{name}/tokens/{id}", s.handleDeleteToken)
	mux.HandleFunc("GET /api/v1/orgs/{org}/repos", s.handleOrgRepos)
	mux.HandleFunc("GET /api/v1/repos/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}", s.handleGetRepo)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/branches/{branch}", s.handleGetBranch)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/contents/{path...}", s.handleGetContents)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/contents/{path...}", s.handleCreateContents)
	mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/contents/{path...}", s.handleUpdateContents)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/contents/{path...}", s.handleDeleteContents)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/raw/{path...}", s.handleRaw)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callKey(r.Method, r.URL.Path)
		s.mu.Lock()
		s.calls[key]++
		status := s.failures[key]
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Config points an APIConfig at the server.
func (s *Server) Config() client.APIConfig {
	return client.APIConfig{Server: s.URL}
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) AddUser(login, password string) gitea.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := gitea.User{
		ID:       s.id(),
		Login:    login,
		Username: login,
		FullName: strings.ToUpper(login[:1]) + login[1:],
		Email:    login + "@example.com",
	}
	s.users[login] = &userRecord{user: u, password: password}
	return u
}

// Token issues an access token for login without going through the API.
func (s *Server) Token(login string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		panic("giteatest: unknown user " + login)
	}
	tok := s.newToken(u, "test")
	return tok.SHA1
}

func (s *Server) AddOrg(name string, members ...string) gitea.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()

	org := gitea.Organization{ID: s.id(), Username: name, FullName: name}
	s.orgs[name] = org
	for _, m := range members {
		if u, ok := s.users[m]; ok {
			u.orgs = append(u.orgs, name)
		}
	}
	return org
}

func (s *Server) AddRepo(seed RepoSeed) gitea.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seed.DefaultBranch == "" {
		seed.DefaultBranch = "master"
	}
	owner := gitea.User{Login: seed.Owner, Username: seed.Owner}
	if u, ok := s.users[seed.Owner]; ok {
		owner = u.user
	} else if o, ok := s.orgs[seed.Owner]; ok {
		owner.ID = o.ID
	}

	repo := gitea.Repository{
		ID:            s.id(),
		Name:          seed.Name,
		FullName:      seed.Owner + "/" + seed.Name,
		Owner:         owner,
		HTMLURL:       s.URL + "/" + seed.Owner + "/" + seed.Name,
		DefaultBranch: seed.DefaultBranch,
		Permissions:   &gitea.Permissions{Pull: true, Push: seed.Push},
		UpdatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if seed.ProdTag != "" {
		repo.Catalog = &gitea.Catalog{Prod: &gitea.CatalogRelease{BranchOrTagName: seed.ProdTag}}
	}

	s.repos[repo.FullName] = &repoRecord{
		repo:     repo,
		branches: map[string]map[string]string{seed.DefaultBranch: {}},
		tags:     map[string]map[string]string{},
	}
	return repo
}

// PutFile writes a file on branch, creating the branch when needed.
func (s *Server) PutFile(owner, repo, branch, filepath, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.mustRepo(owner, repo)
	if rec.branches[branch] == nil {
		rec.branches[branch] = map[string]string{}
	}
	rec.branches[branch][filepath] = content
}

// PutTagFile writes a file as published at tag.
func (s *Server) PutTagFile(owner, repo, tag, filepath, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.mustRepo(owner, repo)
	if rec.tags[tag] == nil {
		rec.tags[tag] = map[string]string{}
	}
	rec.tags[tag][filepath] = content
}

func (s *Server) File(owner, repo, branch, filepath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.mustRepo(owner, repo)
	content, ok := rec.branches[branch][filepath]
	return content, ok
}

func (s *Server) HasBranch(owner, repo, branch string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.mustRepo(owner, repo).branches[branch]
	return ok
}

// Calls counts requests for method and the unescaped path.
func (s *Server) Calls(method, urlPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[callKey(method, urlPath)]
}

// CallsWithPrefix counts requests of method whose path starts with prefix.
func (s *Server) CallsWithPrefix(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, count := range s.calls {
		if strings.HasPrefix(key, method+" "+prefix) {
			n += count
		}
	}
	return n
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = map[string]int{}
}

// Fail answers every request for method and path with status until
// ClearFailures is called.
func (s *Server) Fail(method, urlPath string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[callKey(method, urlPath)] = status
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]int{}
}

// ContentsPath is the API path of a file, as Calls expects it.
func ContentsPath(owner, repo, filepath string) string {
	return "/api/v1/repos/" + owner + "/" + repo + "/contents/" + filepath
}

// RawPath is the API path of the raw endpoint for a file.
func RawPath(owner, repo, filepath string) string {
	return "/api/v1/repos/" + owner + "/" + repo + "/raw/" + filepath
}

func callKey(method, urlPath string) string {
	return method + " " + urlPath
}

func (s *Server) mustRepo(owner, repo string) *repoRecord {
	rec, ok := s.repos[owner+"/"+repo]
	if !ok {
		panic("giteatest: unknown repository " + owner + "/" + repo)
	}
	return rec
}

func (s *Server) newToken(u *userRecord, name string) gitea.AccessToken {
	secret := strings.ReplaceAll(uuid.NewString(), "-", "")
	tok := gitea.AccessToken{
		ID:             s.id(),
		Name:           name,
		SHA1:           secret,
		TokenLastEight: secret[len(secret)-8:],
		Scopes:         []string{"all"},
	}
	u.tokens = append(u.tokens, tok)
	s.tokens[secret] = u.user.Login
	return tok
}

// authenticated resolves the request's credentials. Callers hold s.mu.
func (s *Server) authenticated(r *http.Request) (*userRecord, bool) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "token "); ok {
		login, found := s.tokens[token]
		if !found {
			return nil, false
		}
		return s.users[login], true
	}
	if username, password, ok := r.BasicAuth(); ok {
		u, found := s.users[username]
		if !found || u.password != password {
			return nil, false
		}
		return u, true
	}
	return nil, false
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gitea.ServerVersion{Version: Version})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticated(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, u.user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "user does not exist")
		return
	}
	writeJSON(w, http.StatusOK, u.user)
}

func (s *Server) handleCurrentUserOrgs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticated(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, s.orgsOf(u))
}

func (s *Server) handleUserOrgs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "user does not exist")
		return
	}
	writeJSON(w, http.StatusOK, s.orgsOf(u))
}

func (s *Server) orgsOf(u *userRecord) []gitea.Organization {
	orgs := make([]gitea.Organization, 0, len(u.orgs))
	for _, name := range u.orgs {
		orgs = append(orgs, s.orgs[name])
	}
	return orgs
}

// tokenOwner authorizes a token endpoint: basic auth as the path's user.
func (s *Server) tokenOwner(w http.ResponseWriter, r *http.Request) (*userRecord, bool) {
	username, password, ok := r.BasicAuth()
	u, found := s.users[r.PathValue("name")]
	if !ok || !found || username != u.user.Login || password != u.password {
		writeError(w, http.StatusUnauthorized, "basic auth required")
		return nil, false
	}
	return u, true
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.tokenOwner(w, r)
	if !ok {
		return
	}
	listed := make([]gitea.AccessToken, 0, len(u.tokens))
	for _, t := range u.tokens {
		t.SHA1 = ""
		listed = append(listed, t)
	}
	writeJSON(w, http.StatusOK, listed)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.tokenOwner(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "token name required")
		return
	}
	for _, t := range u.tokens {
		if t.Name == body.Name {
			writeError(w, http.StatusBadRequest, "access token name has been used already")
			return
		}
	}
	writeJSON(w, http.StatusCreated, s.newToken(u, body.Name))
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.tokenOwner(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad token id")
		return
	}
	for i, t := range u.tokens {
		if t.ID == id {
			delete(s.tokens, t.SHA1)
			u.tokens = append(u.tokens[:i], u.tokens[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "token not found")
}

func (s *Server) sortedRepos(keep func(gitea.Repository) bool) []gitea.Repository {
	repos := []gitea.Repository{}
	for _, rec := range s.repos {
		if keep(rec.repo) {
			repos = append(repos, rec.repo)
		}
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].FullName < repos[j].FullName })
	return repos
}

func (s *Server) handleOrgRepos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	org := r.PathValue("org")
	if _, ok := s.orgs[org]; !ok {
		writeError(w, http.StatusNotFound, "organization does not exist")
		return
	}
	writeJSON(w, http.StatusOK, s.sortedRepos(func(repo gitea.Repository) bool {
		return repo.Owner.Login == org
	}))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(r.URL.Query().Get("q"))
	uid, _ := strconv.ParseInt(r.URL.Query().Get("uid"), 10, 64)
	repos := s.sortedRepos(func(repo gitea.Repository) bool {
		if uid != 0 && repo.Owner.ID != uid {
			return false
		}
		return q == "" || strings.Contains(strings.ToLower(repo.Name), q)
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": repos})
}

func (s *Server) lookupRepo(w http.ResponseWriter, r *http.Request) (*repoRecord, bool) {
	rec, ok := s.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
	if !ok {
		writeError(w, http.StatusNotFound, "repository does not exist")
	}
	return rec, ok
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.lookupRepo(w, r); ok {
		writeJSON(w, http.StatusOK, rec.repo)
	}
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupRepo(w, r)
	if !ok {
		return
	}
	name := r.PathValue("branch")
	if _, ok := rec.branches[name]; !ok {
		writeError(w, http.StatusNotFound, "branch does not exist")
		return
	}
	var b gitea.Branch
	b.Name = name
	b.Commit.ID = fmt.Sprintf("%040d", len(rec.branches[name]))
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) contents(rec *repoRecord, branch, filepath, content string) gitea.Contents {
	owner, name := rec.repo.Owner.Login, rec.repo.Name
	return gitea.Contents{
		Name:        path.Base(filepath),
		Path:        filepath,
		SHA:         blobSHA(content),
		Type:        "file",
		Size:        int64(len(content)),
		Encoding:    "base64",
		Content:     base64.StdEncoding.EncodeToString([]byte(content)),
		URL:         s.URL + ContentsPath(owner, name, filepath) + "?ref=" + branch,
		HTMLURL:     rec.repo.HTMLURL + "/src/branch/" + branch + "/" + filepath,
		DownloadURL: s.URL + RawPath(owner, name, filepath) + "?ref=" + branch,
	}
}

func (s *Server) handleGetContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupRepo(w, r)
	if !ok {
		return
	}
	branch := r.URL.Query().Get("ref")
	if branch == "" {
		branch = rec.repo.DefaultBranch
	}
	filepath := r.PathValue("path")
	content, ok := rec.branches[branch][filepath]
	if !ok {
		writeError(w, http.StatusNotFound, "file does not exist")
		return
	}
	writeJSON(w, http.StatusOK, s.contents(rec, branch, filepath, content))
}

type fileBody struct {
	Content   string `json:"content"`
	Message   string `json:"message"`
	Branch    string `json:"branch"`
	NewBranch string `json:"new_branch"`
	SHA       string `json:"sha"`
}

func decodeFileBody(w http.ResponseWriter, r *http.Request, rec *repoRecord) (fileBody, string, bool) {
	var body fileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid body")
		return body, "", false
	}
	if body.Branch == "" {
		body.Branch = rec.repo.DefaultBranch
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not base64")
		return body, "", false
	}
	return body, string(decoded), true
}

func (s *Server) handleCreateContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupRepo(w, r)
	if !ok {
		return
	}
	body, content, ok := decodeFileBody(w, r, rec)
	if !ok {
		return
	}
	base, ok := rec.branches[body.Branch]
	if !ok {
		writeError(w, http.StatusNotFound, "branch does not exist")
		return
	}

	target := body.Branch
	if body.NewBranch != "" {
		if _, exists := rec.branches[body.NewBranch]; exists {
			writeError(w, http.StatusUnprocessableEntity, "branch already exists")
			return
		}
		files := make(map[string]string, len(base))
		for k, v := range base {
			files[k] = v
		}
		rec.branches[body.NewBranch] = files
		target = body.NewBranch
	}

	filepath := r.PathValue("path")
	if _, exists := rec.branches[target][filepath]; exists {
		writeError(w, http.StatusUnprocessableEntity, "file already exists")
		return
	}
	rec.branches[target][filepath] = content
	c := s.contents(rec, target, filepath, content)
	writeJSON(w, http.StatusCreated, gitea.FileResponse{Content: &c})
}

func (s *Server) handleUpdateContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupRepo(w, r)
	if !ok {
		return
	}
	body, content, ok := decodeFileBody(w, r, rec)
	if !ok {
		return
	}
	filepath := r.PathValue("path")
	current, exists := rec.branches[body.Branch][filepath]
	if !exists {
		writeError(w, http.StatusNotFound, "file does not exist")
		return
	}
	if body.SHA != blobSHA(current) {
		writeError(w, http.StatusConflict, "sha does not match")
		return
	}
	rec.branches[body.Branch][filepath] = content
	c := s.contents(rec, body.Branch, filepath, content)
	writeJSON(w, http.StatusOK, gitea.FileResponse{Content: &c})
}

func (s *Server) handleDeleteContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupRepo(w, r)
	if !ok {
		return
	}
	body, _, ok := decodeFileBody(w, r, rec)
	if !ok {
		return
	}
	filepath := r.PathValue("path")
	current, exists := rec.branches[body.Branch][filepath]
	if !exists {
		writeError(w, http.StatusNotFound, "file does not exist")
		return
	}
	if body.SHA != blobSHA(current) {
		writeError(w, http.StatusConflict, "sha does not match")
		return
	}
	delete(rec.branches[body.Branch], filepath)
	writeJSON(w, http.StatusOK, gitea.FileResponse{})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupRepo(w, r)
	if !ok {
		return
	}
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		ref = rec.repo.DefaultBranch
	}
	filepath := r.PathValue("path")

	files, ok := rec.tags[ref]
	if !ok {
		files = rec.branches[ref]
	}
	content, ok := files[filepath]
	if !ok {
		writeError(w, http.StatusNotFound, "file does not exist")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func blobSHA(content string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("blob %d\x00%s", len(content), content)))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
