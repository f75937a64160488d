package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  path: /tmp/x.db
cache:
  ttl: 30s
auth:
  secret: from-file
`), 0o644))
	t.Setenv("PROJECTAPI_AUTH_SECRET", "from-env")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadExplicitAddrBeatsPort(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROJECTAPI_SERVER_ADDR", "127.0.0.1:7000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	t.Setenv("PROJECTAPI_DATABASE_DRIVER", "mysql")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("PROJECTAPI_DATABASE_DRIVER", "sqlite")
	t.Setenv("PROJECTAPI_CACHE_BACKEND", "postgres")
	_, err = Load("")
	assert.Error(t, err)
}
