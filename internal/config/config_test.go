package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Gitea.Server, cfg.Gitea.Server)
	assert.Equal(t, time.Second, cfg.Cache.MaxAge)
	assert.Equal(t, 512, cfg.Cache.LRUSize)
	assert.Equal(t, "127.0.0.1:7480", cfg.Addr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{
		"server": {"host": "0.0.0.0", "port": 9000},
		"gitea": {"server": "https://git.example.com", "catalog_org": "unfoldingWord"},
		"cache": {"max_age": "5m", "lru_size": 16},
		"log_level": "debug"
	}`), 0644)
	require.NoError(t, err)

	t.Setenv("GITEAKIT_GITEA_TOKEN", "secret")
	t.Setenv("GITEAKIT_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://git.example.com", cfg.Gitea.Server)
	assert.Equal(t, "secret", cfg.Gitea.Token)
	assert.Equal(t, "unfoldingWord", cfg.Gitea.CatalogOrg)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, 16, cfg.Cache.LRUSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cache": {"lru_size": 0}}`), 0644))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	t.Setenv("GITEAKIT_CONFIG", "")
	t.Setenv("GITEAKIT_ENV", "production")
	assert.Equal(t, "config/config.production.json", Path())

	t.Setenv("GITEAKIT_CONFIG", "/etc/giteakit.yaml")
	assert.Equal(t, "/etc/giteakit.yaml", Path())
}
