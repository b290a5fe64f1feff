package file_test

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"giteakit/internal/file"
	"giteakit/internal/gitea"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// world is a fake server and draft store sharing one call log.
type world struct {
	mu        sync.Mutex
	files     map[string]string
	published map[string]string
	drafts    map[string]string
	log       []string
	catalogs  []string

	failUpdate error
	// emptyEnsure makes EnsureFile succeed without a file entry.
	emptyEnsure bool
	// beforeEnsure runs inside EnsureFile, outside the lock.
	beforeEnsure func()
}

func newWorld() *world {
	return &world{
		files:     map[string]string{},
		published: map[string]string{},
		drafts:    map[string]string{},
	}
}

func (w *world) record(op string) {
	w.log = append(w.log, op)
}

func (w *world) calls(op string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, o := range w.log {
		if o == op {
			n++
		}
	}
	return n
}

func (w *world) ops() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.log...)
}

func (w *world) resetLog() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log = nil
}

func htmlURL(repo *gitea.Repository, branch, filepath string) string {
	return "https://git.example.com/" + repo.FullName + "/src/branch/" + branch + "/" + filepath
}

func (w *world) EnsureFile(ctx context.Context, req gitea.FileRequest) (*gitea.Contents, error) {
	if w.beforeEnsure != nil {
		w.beforeEnsure()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("ensure")
	if w.emptyEnsure {
		return nil, nil
	}

	key := req.Branch + "/" + req.Filepath
	content, ok := w.files[key]
	if !ok {
		content = req.DefaultContent
		w.files[key] = content
		w.record("create")
	}
	if req.Validate != nil {
		if err := req.Validate(req.Filepath, content); err != nil {
			return nil, err
		}
	}
	return &gitea.Contents{
		Name:    path.Base(req.Filepath),
		Path:    req.Filepath,
		SHA:     "sha-" + content,
		Content: content,
		HTMLURL: htmlURL(req.Repository, req.Branch, req.Filepath),
	}, nil
}

func (w *world) FileContent(ctx context.Context, c *gitea.Contents) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("content")
	return c.Content, nil
}

func (w *world) UpdateFile(ctx context.Context, opts gitea.UpdateFileOptions) (*gitea.Contents, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("update")
	if w.failUpdate != nil {
		return nil, w.failUpdate
	}
	w.files[opts.Branch+"/"+opts.Filepath] = opts.Content
	return &gitea.Contents{Path: opts.Filepath, SHA: "sha-" + opts.Content}, nil
}

func (w *world) DeleteFile(ctx context.Context, opts gitea.DeleteFileOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("delete")
	delete(w.files, opts.Branch+"/"+opts.Filepath)
	return nil
}

func (w *world) FetchCatalogContent(ctx context.Context, org, repo, tag, filepath string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("catalog")
	w.catalogs = append(w.catalogs, org+"/"+repo+"@"+tag)
	content, ok := w.published[tag+"/"+filepath]
	if !ok {
		return "", errors.New("not published")
	}
	return content, nil
}

func (w *world) Load(ctx context.Context, req file.CacheRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("draft-load")
	return w.drafts[req.HTMLURL], nil
}

func (w *world) Save(ctx context.Context, req file.CacheRequest, content *string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if content == nil {
		w.record("draft-clear")
		delete(w.drafts, req.HTMLURL)
		return nil
	}
	w.record("draft-save")
	w.drafts[req.HTMLURL] = *content
	return nil
}

func testRepo(push bool, prodTag string) *gitea.Repository {
	repo := &gitea.Repository{
		Name:          "en_tn",
		FullName:      "unfoldingWord/en_tn",
		Owner:         gitea.User{Login: "unfoldingWord"},
		DefaultBranch: "master",
		Permissions:   &gitea.Permissions{Pull: true, Push: push},
	}
	if prodTag != "" {
		repo.Catalog = &gitea.Catalog{Prod: &gitea.CatalogRelease{BranchOrTagName: prodTag}}
	}
	return repo
}

type eventLog struct {
	mu     sync.Mutex
	events []file.Event
}

func (l *eventLog) listen(e file.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []file.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]file.EventKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func (l *eventLog) last() file.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newSession(t *testing.T, w *world, opts file.Options) *file.Session {
	if opts.Autosave == nil {
		opts.Autosave = w
	}
	opts.Logger = zaptest.NewLogger(t)
	return file.New(w, opts)
}

func openFile(t *testing.T, s *file.Session, repo *gitea.Repository, filepath string) {
	ctx := context.Background()
	require.NoError(t, s.SetRepository(ctx, repo))
	require.NoError(t, s.Open(ctx, filepath))
	require.Equal(t, file.StateLoaded, s.State())
}

func TestLoad_RemoteContentWithoutDraftOrTag(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	s := newSession(t, w, file.Options{})

	openFile(t, s, testRepo(true, ""), "tn_TIT.tsv")

	rec := s.File()
	require.NotNil(t, rec)
	assert.Equal(t, "remote", rec.Content)
	assert.Nil(t, rec.PublishedContent)
	assert.Equal(t, "master", rec.Branch)
	assert.Equal(t, 1, w.calls("content"))
	assert.Zero(t, w.calls("catalog"))
}

func TestLoad_DraftWinsOverRemote(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	repo := testRepo(true, "v1")
	w.drafts[htmlURL(repo, "master", "tn_TIT.tsv")] = "draft"
	s := newSession(t, w, file.Options{})

	openFile(t, s, repo, "tn_TIT.tsv")

	rec := s.File()
	assert.Equal(t, "draft", rec.Content)
	assert.Nil(t, rec.PublishedContent)
	assert.Zero(t, w.calls("content"))
	assert.Zero(t, w.calls("catalog"))
}

func TestLoad_EmptyDraftIsIgnored(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	repo := testRepo(true, "")
	w.drafts[htmlURL(repo, "master", "tn_TIT.tsv")] = ""
	s := newSession(t, w, file.Options{})

	openFile(t, s, repo, "tn_TIT.tsv")
	assert.Equal(t, "remote", s.File().Content)
}

func TestLoad_PublishedContentForProdTag(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	w.published["v42/tn_TIT.tsv"] = "published"

	s := newSession(t, w, file.Options{})
	openFile(t, s, testRepo(true, "v42"), "tn_TIT.tsv")

	rec := s.File()
	require.NotNil(t, rec.PublishedContent)
	assert.Equal(t, "published", *rec.PublishedContent)
	assert.Equal(t, "remote", rec.Content)
	assert.Equal(t, []string{"unfoldingWord/en_tn@v42"}, w.catalogs)

	w2 := newWorld()
	w2.published["v42/tn_TIT.tsv"] = "published"
	s2 := newSession(t, w2, file.Options{CatalogOrg: "Door43-Catalog"})
	openFile(t, s2, testRepo(true, "v42"), "tn_TIT.tsv")
	assert.Equal(t, []string{"Door43-Catalog/en_tn@v42"}, w2.catalogs)
}

func TestLoad_MissingPublishedCopyIsNotAnError(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	s := newSession(t, w, file.Options{})

	openFile(t, s, testRepo(true, "v1"), "tn_TIT.tsv")
	assert.Nil(t, s.File().PublishedContent)
	assert.Equal(t, 1, w.calls("catalog"))
}

func TestLoad_EnsuresMissingFile(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, file.Options{DefaultContent: "Reference\tID\n"})

	openFile(t, s, testRepo(true, ""), "tn_JUD.tsv")
	assert.Equal(t, 1, w.calls("create"))
	assert.Equal(t, "Reference\tID\n", s.File().Content)
}

func TestLoad_RequiresRepositoryAndFilepath(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, file.Options{})
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, file.ErrNoTarget)

	// a filepath without a repository waits for the repository
	require.NoError(t, s.Open(ctx, "tn_TIT.tsv"))
	assert.Equal(t, file.StateEmpty, s.State())
	assert.Zero(t, w.calls("ensure"))

	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))
	assert.Equal(t, file.StateLoaded, s.State())
}

func TestLoad_ValidationFailureKeepsSlotEmpty(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "garbage"
	errInvalid := errors.New("invalid tsv")
	s := newSession(t, w, file.Options{Validate: func(string, string) error { return errInvalid }})
	ctx := context.Background()

	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))
	err := s.Open(ctx, "tn_TIT.tsv")
	assert.ErrorIs(t, err, errInvalid)
	assert.Equal(t, file.StateEmpty, s.State())
	assert.Nil(t, s.File())
}

func TestLoad_EnsureWithoutFileEntry(t *testing.T) {
	w := newWorld()
	w.emptyEnsure = true
	s := newSession(t, w, file.Options{})
	ctx := context.Background()

	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))
	var err error
	require.NotPanics(t, func() { err = s.Open(ctx, "tn_TIT.tsv") })
	assert.ErrorIs(t, err, gitea.ErrNoContents)
	assert.Equal(t, file.StateEmpty, s.State())
	assert.Nil(t, s.File())
}

func TestSave_ClearsDraftThenReloads(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	repo := testRepo(true, "")
	w.drafts[htmlURL(repo, "master", "tn_TIT.tsv")] = "draft"
	s := newSession(t, w, file.Options{})
	openFile(t, s, repo, "tn_TIT.tsv")
	w.resetLog()

	rec, err := s.Save(context.Background(), "saved")
	require.NoError(t, err)

	assert.Equal(t, []string{"update", "draft-clear", "ensure", "draft-load", "content"}, w.ops())
	assert.Equal(t, "saved", rec.Content)
	assert.Equal(t, "saved", s.File().Content)
	assert.Equal(t, "sha-saved", s.File().SHA)
	assert.Empty(t, w.drafts)
}

func TestSave_FailureLeavesFileUntouched(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	repo := testRepo(true, "")
	w.drafts[htmlURL(repo, "master", "tn_TIT.tsv")] = "draft"
	s := newSession(t, w, file.Options{})
	openFile(t, s, repo, "tn_TIT.tsv")
	before := s.File()

	w.failUpdate = errors.New("conflict")
	w.resetLog()
	_, err := s.Save(context.Background(), "saved")
	require.Error(t, err)

	assert.Equal(t, []string{"update"}, w.ops())
	assert.Equal(t, before, s.File())
	assert.Equal(t, "draft", w.drafts[htmlURL(repo, "master", "tn_TIT.tsv")])
}

func TestSave_WithoutOpenFile(t *testing.T) {
	s := newSession(t, newWorld(), file.Options{})
	_, err := s.Save(context.Background(), "x")
	assert.ErrorIs(t, err, file.ErrNoFile)
	assert.ErrorIs(t, s.SaveCache(context.Background(), "x"), file.ErrNoFile)
}

func TestSaveCache(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	repo := testRepo(true, "")
	s := newSession(t, w, file.Options{})
	openFile(t, s, repo, "tn_TIT.tsv")

	require.NoError(t, s.SaveCache(context.Background(), "work in progress"))
	assert.Equal(t, "work in progress", w.drafts[htmlURL(repo, "master", "tn_TIT.tsv")])
}

func TestDelete_WithoutPushIsNoop(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	s := newSession(t, w, file.Options{})
	openFile(t, s, testRepo(false, ""), "tn_TIT.tsv")

	deleted, err := s.Delete(context.Background())
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Zero(t, w.calls("delete"))
	assert.Equal(t, file.StateLoaded, s.State())
	assert.NotNil(t, s.File())
}

func TestDelete_ClosesFile(t *testing.T) {
	w := newWorld()
	w.files["master/tn_TIT.tsv"] = "remote"
	s := newSession(t, w, file.Options{})
	events := &eventLog{}
	openFile(t, s, testRepo(true, ""), "tn_TIT.tsv")
	s.Subscribe(events.listen)

	deleted, err := s.Delete(context.Background())
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 1, w.calls("delete"))
	assert.Equal(t, file.StateEmpty, s.State())
	assert.Nil(t, s.File())
	assert.Empty(t, s.Filepath())
	assert.Equal(t, file.Event{Kind: file.FilepathChanged}, events.last())
}

func TestReplace_AsksForConfirmation(t *testing.T) {
	w := newWorld()
	w.files["master/a.md"] = "a"
	w.files["master/b.md"] = "b"
	answer := false
	asked := 0
	s := newSession(t, w, file.Options{Confirm: func(context.Context) (bool, error) {
		asked++
		return answer, nil
	}})
	ctx := context.Background()
	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))

	// nothing open yet: no question asked
	replaced, err := s.Replace(ctx, "a.md")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Zero(t, asked)
	assert.Equal(t, "a", s.File().Content)

	replaced, err = s.Replace(ctx, "b.md")
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, 1, asked)
	assert.Equal(t, "a.md", s.File().Filepath)

	answer = true
	replaced, err = s.Replace(ctx, "b.md")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "b", s.File().Content)
}

func TestReplace_ConfirmerError(t *testing.T) {
	w := newWorld()
	w.files["master/a.md"] = "a"
	boom := errors.New("dialog closed")
	s := newSession(t, w, file.Options{Confirm: func(context.Context) (bool, error) { return false, boom }})
	openFile(t, s, testRepo(true, ""), "a.md")

	_, err := s.Replace(context.Background(), "b.md")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "a.md", s.File().Filepath)
}

func TestEvents(t *testing.T) {
	w := newWorld()
	w.files["master/a.md"] = "a"
	s := newSession(t, w, file.Options{})
	events := &eventLog{}
	unsubscribe := s.Subscribe(events.listen)
	ctx := context.Background()

	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))
	require.NoError(t, s.Open(ctx, "a.md"))
	s.MarkChanged(true)
	s.MarkChanged(true)
	assert.True(t, s.Dirty())

	_, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, s.Dirty())

	s.SetBranch("feature")
	assert.Equal(t, "feature", s.Branch())

	assert.Equal(t, []file.EventKind{
		file.BranchChanged,
		file.FilepathChanged,
		file.DirtyChanged,
		file.DirtyChanged,
		file.BranchChanged,
	}, events.kinds())

	unsubscribe()
	s.Close()
	assert.Len(t, events.kinds(), 5)
}

func TestSetRepositoryNilClosesFile(t *testing.T) {
	w := newWorld()
	w.files["master/a.md"] = "a"
	s := newSession(t, w, file.Options{})
	openFile(t, s, testRepo(true, ""), "a.md")

	require.NoError(t, s.SetRepository(context.Background(), nil))
	assert.Equal(t, file.StateEmpty, s.State())
	assert.Nil(t, s.Repository())
	assert.Empty(t, s.Filepath())
}

func TestCreateFile(t *testing.T) {
	w := newWorld()
	s := newSession(t, w, file.Options{})
	events := &eventLog{}
	ctx := context.Background()
	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))
	s.Subscribe(events.listen)

	require.NoError(t, s.CreateFile(ctx, "alice-tc-create-1", "tn_JUD.tsv", "new"))

	assert.Equal(t, "alice-tc-create-1", s.Branch())
	rec := s.File()
	require.NotNil(t, rec)
	assert.Equal(t, "new", rec.Content)
	assert.Equal(t, "alice-tc-create-1", rec.Branch)
	assert.Equal(t, []file.EventKind{file.BranchChanged, file.FilepathChanged}, events.kinds())
}

func TestLoad_SupersededByClose(t *testing.T) {
	w := newWorld()
	w.files["master/a.md"] = "a"
	s := newSession(t, w, file.Options{})
	ctx := context.Background()
	require.NoError(t, s.SetRepository(ctx, testRepo(true, "")))

	started := make(chan struct{})
	release := make(chan struct{})
	w.beforeEnsure = func() {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- s.Open(ctx, "a.md") }()

	<-started
	assert.Equal(t, file.StateLoading, s.State())
	s.Close()
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, file.ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
	}
	assert.Equal(t, file.StateEmpty, s.State())
	assert.Nil(t, s.File())
}
