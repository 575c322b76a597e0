package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"server_addr":     "http://example:9000",
		"request_timeout": "10s",
		"max_retries":     7,
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "http://example:9000", cfg.ServerAddr)
		assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
		assert.Equal(t, 7, cfg.MaxRetries)
	})

	t.Run("no config flag leaves values untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			ServerAddr:     "http://defaults:1234",
			RequestTimeout: 42 * time.Second,
		}
		parseJson(cfg)

		assert.Equal(t, "http://defaults:1234", cfg.ServerAddr)
		assert.Equal(t, 42*time.Second, cfg.RequestTimeout)
	})

	t.Run("empty fields keep defaults", func(t *testing.T) {
		path := writeTempJSON(t, dir, "partial.json", map[string]any{
			"peer_id": "peer-7",
		})
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{ServerAddr: "http://defaults:1234", MaxRetries: 5}
		parseJson(cfg)

		assert.Equal(t, "peer-7", cfg.PeerID)
		assert.Equal(t, "http://defaults:1234", cfg.ServerAddr)
		assert.Equal(t, 5, cfg.MaxRetries)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
