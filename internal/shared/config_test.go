package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BAREFOOT_CONFIG", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("BAREFOOT_ENDPOINT", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, 30*time.Second, c.Barefoot.ConnectTimeout)
	assert.Equal(t, 60*time.Second, c.Barefoot.CallTimeout)
	assert.Equal(t, 3, c.Barefoot.RetryAttempts)
	assert.True(t, c.Sync.Enrich)
	assert.Contains(t, c.Barefoot.Endpoint, "BarefootService.asmx")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BAREFOOT_CONFIG", "")
	t.Setenv("BAREFOOT_USERNAME", "agent")
	t.Setenv("BAREFOOT_PASSWORD", "secret")
	t.Setenv("BAREFOOT_ACCOUNT", "v3cabin")
	t.Setenv("BAREFOOT_RETRY_ATTEMPTS", "5")
	t.Setenv("SYNC_ENRICH", "false")
	t.Setenv("SYNC_INTERVAL", "1h")
	t.Setenv("CACHE_TTL_SECONDS", "not-a-number")

	c, err := Load()
	require.NoError(t, err)
	creds := c.Credentials()
	assert.Equal(t, "agent", creds.Username)
	assert.Equal(t, "v3cabin", creds.Account)
	assert.Equal(t, 5, c.Barefoot.RetryAttempts)
	assert.False(t, c.Sync.Enrich)
	assert.Equal(t, time.Hour, c.Sync.Interval)
	assert.Equal(t, 900*time.Second, c.CacheTTL, "invalid values keep the default")
}

func TestLoad_YAMLFileWithExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "barefoot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storeDriver: mysql
barefoot:
  username: file-user
  password: ${TEST_BAREFOOT_PASSWORD}
  account: file-account
  callTimeout: 90s
sync:
  enrichWorkers: 6
`), 0o600))

	t.Setenv("BAREFOOT_CONFIG", path)
	t.Setenv("TEST_BAREFOOT_PASSWORD", "from-env")
	t.Setenv("BAREFOOT_USERNAME", "")
	t.Setenv("BAREFOOT_ACCOUNT", "env-account")
	t.Setenv("STORE_DRIVER", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", c.StoreDriver)
	assert.Equal(t, "file-user", c.Barefoot.Username)
	assert.Equal(t, "from-env", c.Barefoot.Password)
	assert.Equal(t, "env-account", c.Barefoot.Account, "environment wins over the file")
	assert.Equal(t, 90*time.Second, c.Barefoot.CallTimeout)
	assert.Equal(t, 6, c.Sync.EnrichWorkers)
	assert.Equal(t, 30*time.Second, c.Barefoot.ConnectTimeout, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("BAREFOOT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
