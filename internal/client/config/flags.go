package config

import (
	"flag"
	"os"
	"time"

	"github.com/akarpovs/roomdrop/internal/flagx"
)

// parseFlags populates selected client Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   server base URL (e.g., "http://127.0.0.1:8080")
//	-j string   bearer token (actor identity)
//	-d string   local sqlite database path
//	-p string   peer id announced on the room socket
//	-n string   display name
//	-w int      request timeout, seconds
//	-m int      max transient retries per queued operation
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-j", "-d", "-p", "-n", "-w", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerAddr, "a", config.ServerAddr, "server base URL")
	fs.StringVar(&config.Token, "j", config.Token, "bearer token")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "local database path")
	fs.StringVar(&config.PeerID, "p", config.PeerID, "peer id")
	fs.StringVar(&config.DisplayName, "n", config.DisplayName, "display name")

	requestTimeout := fs.Int("w", int(config.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.IntVar(&config.MaxRetries, "m", config.MaxRetries, "max retries")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
