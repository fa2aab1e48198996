package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("HISTORY_LIMIT", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 1000, cfg.HistoryLimit)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
}

func TestLoadClampsPoolSize(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("HISTORY_LIMIT", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("HISTORY_LIMIT", "50")
	t.Setenv("BOARD_QUEUE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 64, cfg.BoardQueueSize, "unparsable values fall back to the default")
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			env:     map[string]string{"STORE_BACKEND": "etcd"},
			wantErr: "unsupported STORE_BACKEND",
		},
		{
			name:    "negative history limit",
			env:     map[string]string{"STORE_BACKEND": "memory", "HISTORY_LIMIT": "-1"},
			wantErr: "HISTORY_LIMIT must be positive",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5433", DBUser: "u", DBPassword: "p", DBName: "boards", DBSSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=boards sslmode=disable", cfg.DatabaseURL())
}
