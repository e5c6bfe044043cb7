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

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 4, cfg.Settlement.Workers)
	assert.Equal(t, 50*time.Millisecond, cfg.Settlement.RetryBackoff)
	assert.Equal(t, 1, cfg.Cache.Version)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  driver: postgres
  dsn: "host=localhost user=trade dbname=ledger"
queue:
  driver: kafka
  kafka:
    topic: settle
settlement:
  workers: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "kafka", cfg.Queue.Driver)
	assert.Equal(t, "settle", cfg.Queue.Kafka.Topic)
	assert.Equal(t, 8, cfg.Settlement.Workers)
	// Untouched keys keep their defaults.
	assert.Equal(t, "tradeledger-settlement", cfg.Queue.Kafka.GroupID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
