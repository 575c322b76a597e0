// Package config handles configuration for the client component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the roomdrop client.
//
// Fields:
//   - ServerAddr: base URL of the roomdrop server (http[s]://host:port).
//   - Token: bearer token carrying the actor identity (issued externally).
//   - DatabaseDSN: path of the local sqlite database (queue + cache).
//   - PeerID: stable peer identity announced on the room socket.
//   - DisplayName: optional human-readable name shown to other peers.
//   - RequestTimeout: bound on every server call from the drain worker.
//   - MaxRetries: transient-failure retries per queued operation before it
//     is parked as permanently failed.
//   - RetryBackoff: base delay for the exponential requeue backoff.
type Config struct {
	ServerAddr     string
	Token          string
	DatabaseDSN    string
	PeerID         string
	DisplayName    string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "http://127.0.0.1:8080"
	c.DatabaseDSN = "roomdrop.db"
	c.RequestTimeout = 15 * time.Second
	c.MaxRetries = 5
	c.RetryBackoff = 2 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
