package server

import "time"

// Config holds the admin HTTP surface's configuration: where it listens,
// how the storage core underneath it is sized, and the usual ambient HTTP
// knobs this codebase's own server.Config carries.
type Config struct {
	Host string // Server host address
	Port int    // Server port

	DataDir       string // Directory holding the buffer pool's data files
	NumInstances  int    // Number of sharded ParallelBufferPool instances
	PoolSize      int    // Frames per instance. Default: 1000 pages (~4MB per instance)
	EnableCompress bool  // zstd-compress pages on disk (see storage.NewCompressingFileDiskManager)

	EventPollInterval time.Duration // How often the admin server diffs subsystem counters for /_events

	ReadTimeout    time.Duration // HTTP read timeout
	WriteTimeout   time.Duration // HTTP write timeout
	IdleTimeout    time.Duration // HTTP idle timeout
	MaxRequestSize int64         // Maximum request body size in bytes; not read by the server
	EnableCORS     bool          // Enable CORS middleware
	AllowedOrigins []string      // CORS allowed origins; only the first entry is sent
	AllowedMethods []string      // Not read: CORS responses always allow "GET, OPTIONS"
	AllowedHeaders []string      // Not read: CORS responses always allow Content-Type, Authorization, X-Request-ID
	EnableLogging  bool          // Enable request logging
	LogFormat      string        // Log format (text or json); not read, the request logger's format is fixed

	// TLS/SSL configuration
	EnableTLS   bool   // Enable TLS/SSL
	TLSCertFile string // Path to TLS certificate file
	TLSKeyFile  string // Path to TLS private key file
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:              "localhost",
		Port:              8080,
		DataDir:           "./data",
		NumInstances:      4,
		PoolSize:          1000, // 1000 pages = ~4MB buffer pool per instance
		EnableCompress:    false,
		EventPollInterval: 2 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxRequestSize:    10 * 1024 * 1024, // 10MB
		EnableCORS:        true,
		AllowedOrigins:    []string{"*"},
		AllowedMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:    []string{"Content-Type", "Authorization", "X-Request-ID"},
		EnableLogging:     true,
		LogFormat:         "text",
		EnableTLS:         false,
		TLSCertFile:       "",
		TLSKeyFile:        "",
	}
}
