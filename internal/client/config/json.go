package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akarpovs/roomdrop/internal/flagx"
	"github.com/akarpovs/roomdrop/internal/timex"
)

// JsonConfig is the intermediate DTO for reading JSON configuration files.
// Interval fields accept both strings ("15s") and integer nanoseconds.
type JsonConfig struct {
	ServerAddr     string         `json:"server_addr"`
	Token          string         `json:"token"`
	DatabaseDSN    string         `json:"database_dsn"`
	PeerID         string         `json:"peer_id"`
	DisplayName    string         `json:"display_name"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	MaxRetries     int            `json:"max_retries"`
	RetryBackoff   timex.Duration `json:"retry_backoff"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags, when present.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.ServerAddr != "" {
		config.ServerAddr = c.ServerAddr
	}
	if c.Token != "" {
		config.Token = c.Token
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.PeerID != "" {
		config.PeerID = c.PeerID
	}
	if c.DisplayName != "" {
		config.DisplayName = c.DisplayName
	}
	if c.RequestTimeout.Duration != 0 {
		config.RequestTimeout = time.Duration(c.RequestTimeout.Duration)
	}
	if c.MaxRetries != 0 {
		config.MaxRetries = c.MaxRetries
	}
	if c.RetryBackoff.Duration != 0 {
		config.RetryBackoff = time.Duration(c.RetryBackoff.Duration)
	}
}
