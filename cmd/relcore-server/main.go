// Command relcore-server starts the admin HTTP surface over a fresh
// storage/hash/lock core: buffer pool occupancy, hash-table shape, and
// lock-wait state as JSON and Prometheus text, plus a live event feed.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relcore/relcore/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	dataDir := flag.String("data-dir", "./data", "Data directory for buffer pool page files (empty for in-memory only)")
	numInstances := flag.Int("instances", 4, "Number of sharded buffer pool instances")
	poolSize := flag.Int("pool-size", 1000, "Frames per buffer pool instance (1 frame = 4KB)")
	compress := flag.Bool("compress", false, "zstd-compress pages on disk")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	eventPoll := flag.Duration("event-poll-interval", 2*time.Second, "How often the event feed diffs subsystem counters")
	enableTLS := flag.Bool("tls", false, "Enable TLS/SSL")
	tlsCert := flag.String("tls-cert", "", "Path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "Path to TLS private key file")
	flag.Parse()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.DataDir = *dataDir
	config.NumInstances = *numInstances
	config.PoolSize = *poolSize
	config.EnableCompress = *compress
	config.AllowedOrigins = []string{*corsOrigin}
	config.EventPollInterval = *eventPoll
	config.EnableTLS = *enableTLS
	config.TLSCertFile = *tlsCert
	config.TLSKeyFile = *tlsKey

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Server error: %v\n", err)
		os.Exit(1)
	}
}
