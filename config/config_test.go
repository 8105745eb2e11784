package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file::memory:"
messaging:
  store_timeout: 2s
  relay_workers: 3
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Messaging.StoreTimeout)
	assert.Equal(t, 3, cfg.Messaging.RelayWorkers)
	// untouched keys keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Messaging.Feed)
	assert.Equal(t, "marketplace", cfg.Storage.Bucket)
	assert.Equal(t, ":8080", cfg.Server.Addr())
}

func TestLoadFile_EnvWins(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("UNYX_SERVER_PORT", "9100")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "redis feed without redis", mutate: func(c *Config) { c.Messaging.Feed = "redis" }, wantErr: true},
		{name: "redis feed with redis", mutate: func(c *Config) { c.Messaging.Feed = "redis"; c.Redis.Enabled = true }},
		{name: "cloudinary without url", mutate: func(c *Config) { c.Storage.Driver = "cloudinary" }, wantErr: true},
		{name: "zero store timeout", mutate: func(c *Config) { c.Messaging.StoreTimeout = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Database:  DatabaseConfig{Driver: "postgres"},
				Messaging: MessagingConfig{Feed: "memory", StoreTimeout: time.Second},
				Storage:   StorageConfig{Driver: "local"},
			}
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
