package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hope.yaml")
	raw := `
server:
  addr: ":9090"
database:
  driver: sqlite
  communities: c.db
  users: u.db
  threads: t.db
  replies: r.db
auth:
  secret: s3cret
  token_ttl: 2h
reconcile:
  interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	t.Setenv("HOPE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("HOPE_REDIS_DB", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "u.db", cfg.Database.Users)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Redis.DB)
	// 未覆盖的字段保留默认值
	assert.Equal(t, "token", cfg.Auth.CookieName)
	assert.Equal(t, 200, cfg.Outbox.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Replies = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.Secret = ""
	assert.Error(t, cfg.Validate())
}
