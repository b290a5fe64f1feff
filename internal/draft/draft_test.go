package draft

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"giteakit/client"
	"giteakit/internal/file"
	"giteakit/internal/gitea"
	"giteakit/internal/gitea/giteatest"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_SaveLoadClear(t *testing.T) {
	store := NewStore(setupTestDB(t), zaptest.NewLogger(t))
	store.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	req := file.CacheRequest{
		Repository: &gitea.Repository{FullName: "unfoldingWord/en_tn"},
		Branch:     "master",
		HTMLURL:    "https://git.door43.org/unfoldingWord/en_tn/src/branch/master/tn_TIT.tsv",
		Filepath:   "tn_TIT.tsv",
	}

	got, err := store.Load(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, got)

	content := "draft"
	require.NoError(t, store.Save(ctx, req, &content))

	got, err = store.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "draft", got)

	d, err := store.Get(req.HTMLURL)
	require.NoError(t, err)
	assert.Equal(t, "unfoldingWord/en_tn", d.Repository)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), d.SavedAt)

	require.NoError(t, store.Save(ctx, req, nil))
	got, err = store.Load(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, got)

	// clearing twice is fine
	require.NoError(t, store.Save(ctx, req, nil))

	assert.Error(t, store.Save(ctx, file.CacheRequest{Filepath: "x"}, &content))
}

func TestStore_List(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)
	ctx := context.Background()
	a, b := "a", "b"
	require.NoError(t, store.Save(ctx, file.CacheRequest{HTMLURL: "https://x/a"}, &a))
	require.NoError(t, store.Save(ctx, file.CacheRequest{HTMLURL: "https://x/b"}, &b))

	drafts, err := store.List()
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "a", drafts[0].Content)
}

func TestWatcher_SavesWrittenVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tn_TIT.tsv")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	store := NewStore(setupTestDB(t), nil)
	target := file.CacheRequest{HTMLURL: "https://x/tn_TIT.tsv", Filepath: "tn_TIT.tsv"}
	w, err := NewWatcher(path, target, store, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	assert.Eventually(t, func() bool {
		got, err := store.Load(context.Background(), target)
		return err == nil && got == "v2"
	}, 5*time.Second, 20*time.Millisecond)
}

// Drafts survive in badger and win over the server until the file is
// saved, after which the server's copy is loaded again.
func TestSessionWithDrafts(t *testing.T) {
	srv := giteatest.New(t)
	srv.AddOrg("unfoldingWord")
	repo := srv.AddRepo(giteatest.RepoSeed{Owner: "unfoldingWord", Name: "en_tn", Push: true})
	srv.PutFile("unfoldingWord", "en_tn", "master", "tn_TIT.tsv", "remote")

	api := gitea.New(client.New(client.WithOnlineCheck(func() bool { return true })), srv.Config(), zaptest.NewLogger(t))
	store := NewStore(setupTestDB(t), nil)
	ctx := context.Background()

	s := file.New(api, file.Options{Autosave: store, Logger: zaptest.NewLogger(t)})
	require.NoError(t, s.SetRepository(ctx, &repo))
	require.NoError(t, s.Open(ctx, "tn_TIT.tsv"))
	assert.Equal(t, "remote", s.File().Content)

	require.NoError(t, s.SaveCache(ctx, "typing"))
	s.Close()
	require.NoError(t, s.Open(ctx, "tn_TIT.tsv"))
	assert.Equal(t, "typing", s.File().Content)

	rawPath := giteatest.RawPath("unfoldingWord", "en_tn", "tn_TIT.tsv")
	rawBefore := srv.Calls(http.MethodGet, rawPath)

	rec, err := s.Save(ctx, "saved")
	require.NoError(t, err)
	assert.Equal(t, "saved", rec.Content)

	onServer, _ := srv.File("unfoldingWord", "en_tn", "master", "tn_TIT.tsv")
	assert.Equal(t, "saved", onServer)
	assert.Equal(t, rawBefore, srv.Calls(http.MethodGet, rawPath))

	d, err := store.Load(ctx, file.CacheRequest{HTMLURL: rec.HTMLURL})
	require.NoError(t, err)
	assert.Empty(t, d)

	// delete goes out with the sha of the reloaded file
	deleted, err := s.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, ok := srv.File("unfoldingWord", "en_tn", "master", "tn_TIT.tsv")
	assert.False(t, ok)
}
