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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, ":8000", cfg.Server.IngestAddr)
	assert.Equal(t, "netsentry.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "iptables", cfg.Blocking.Firewall)
	assert.Equal(t, time.Hour, cfg.BlockTTL())
	assert.Equal(t, time.Hour, cfg.AlertTTL())
	assert.Equal(t, 30*time.Second, cfg.BlockSweepInterval())
	assert.Equal(t, time.Minute, cfg.CacheSweepInterval())
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: ":9090"
  jwt_secret: "s3cret"
storage:
  database_path: "/var/lib/netsentry/db.sqlite"
blocking:
  block_ttl_seconds: 600
  firewall: "ufw"
alerts:
  ttl_seconds: 120
  webhook_url: "https://discord.example/webhook"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
	assert.Equal(t, "/var/lib/netsentry/db.sqlite", cfg.Storage.DatabasePath)
	assert.Equal(t, 10*time.Minute, cfg.BlockTTL())
	assert.Equal(t, "ufw", cfg.Blocking.Firewall)
	assert.Equal(t, 2*time.Minute, cfg.AlertTTL())
	assert.Equal(t, "https://discord.example/webhook", cfg.Alerts.WebhookURL)

	// values the file does not mention keep their defaults
	assert.Equal(t, ":8000", cfg.Server.IngestAddr)
	assert.Equal(t, 30, cfg.Blocking.RetentionDays)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NETSENTRY_LISTEN_ADDR", ":7070")
	t.Setenv("NETSENTRY_JWT_SECRET", "from-env")
	t.Setenv("NETSENTRY_DB_PATH", "env.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
	assert.Equal(t, "env.db", cfg.Storage.DatabasePath)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: \":9090\"\n"), 0644))
	t.Setenv("NETSENTRY_LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
}

func TestLoadSanitizesBlockTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocking:\n  block_ttl_seconds: -5\n  firewall: \"\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.BlockTTL())
	assert.Equal(t, "none", cfg.Blocking.Firewall)
}
