package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name        string
		args        []string
		expectPanic bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "overrides addr, TTL and retention",
			args: []string{"cmd", "-a", ":9090", "-t", "12", "-k", "50"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ":9090", c.EndpointAddrHTTP)
				assert.Equal(t, 12*time.Hour, c.UploadTTL)
				assert.Equal(t, 50, c.VersionRetention)
			},
		},
		{
			name: "S3 settings",
			args: []string{"cmd", "-b", "drops", "-g", "eu-west-1", "-e", "http://minio:9000/"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "drops", c.S3Bucket)
				assert.Equal(t, "eu-west-1", c.S3Region)
				assert.Equal(t, "http://minio:9000/", c.S3BaseEndpoint)
			},
		},
		{
			name:        "non-numeric TTL panics",
			args:        []string{"cmd", "-t", "abc"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}
			config.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			tt.check(t, config)
		})
	}
}
