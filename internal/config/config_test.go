package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDefaults(t *testing.T) {
	cfg, err := ServerFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultBrokerBackDial, cfg.Broker)
	assert.Equal(t, DefaultProxyXSubDial, cfg.ProxyXSub)
	assert.Equal(t, DefaultProxyXPubDial, cfg.ProxyXPub)
	assert.Equal(t, "tcp://localhost:6000", cfg.RefAddr)
	assert.Equal(t, 5, cfg.HeartbeatSeconds)
	assert.Equal(t, 10, cfg.SyncEvery)
	assert.NotEmpty(t, cfg.Name)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	body := `
server:
  name: from-file
  sync_every: 20
  persist_dir: /var/file
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_NAME", "from-env")

	cfg, err := ServerFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 20, cfg.SyncEvery)
	assert.Equal(t, "/var/file", cfg.PersistDir)
}

func TestLegacyRefHostPort(t *testing.T) {
	t.Setenv("REF_HOST", "ref.internal")
	t.Setenv("REF_PORT", "6100")

	cfg, err := ServerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "tcp://ref.internal:6100", cfg.RefAddr)
}

func TestMissingNamedConfigFileIsAnError(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := ServerFromEnv()
	assert.Error(t, err)
}

func TestBrokerAndProxyDefaults(t *testing.T) {
	b, err := BrokerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultBrokerFront, b.Front)
	assert.Equal(t, DefaultBrokerBack, b.Back)

	p, err := ProxyFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultProxyXSub, p.XSub)
	assert.Equal(t, DefaultProxyXPub, p.XPub)
}
