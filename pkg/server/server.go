// Package server exposes a read-only admin HTTP surface over the storage,
// hash-index, and lock-manager core: health, a combined stats snapshot, a
// Prometheus text endpoint, and a WebSocket event feed. It never mutates
// the subsystems it reports on — every route either calls a Stats()-shaped
// accessor or subscribes to the metrics event broadcaster.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relcore/relcore/pkg/hash"
	"github.com/relcore/relcore/pkg/lock"
	"github.com/relcore/relcore/pkg/metrics"
	"github.com/relcore/relcore/pkg/server/handlers"
	"github.com/relcore/relcore/pkg/storage"
)

// Server wires the storage/hash/lock core to the admin HTTP surface
// described in SPEC_FULL.md §10.4.
type Server struct {
	config *Config

	pool  *storage.ParallelBufferPool
	table *hash.ExtendibleHashTable
	locks *lock.LockManager

	collector       *metrics.Collector
	resourceTracker *metrics.ResourceTracker
	promExporter    *metrics.PrometheusExporter
	broadcaster     *metrics.EventBroadcaster

	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time

	stopPoll chan struct{}
}

// New builds the storage core (a ParallelBufferPool backed by file disk
// managers under config.DataDir, one ExtendibleHashTable over it, and a
// fresh LockManager) and wraps it with the admin HTTP surface.
func New(config *Config) (*Server, error) {
	if config.EnableTLS {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but certificate or key file not specified")
		}
		if _, err := os.Stat(config.TLSCertFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS certificate file not found: %s", config.TLSCertFile)
		}
		if _, err := os.Stat(config.TLSKeyFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS key file not found: %s", config.TLSKeyFile)
		}
	}

	if config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	pool := storage.NewParallelBufferPool(config.NumInstances, config.PoolSize, func(instance int) storage.DiskManager {
		if config.DataDir == "" {
			return storage.NewMemDiskManager()
		}
		path := filepath.Join(config.DataDir, fmt.Sprintf("shard-%d.db", instance))
		var dm storage.DiskManager
		var err error
		if config.EnableCompress {
			dm, err = storage.NewCompressingFileDiskManager(path)
		} else {
			dm, err = storage.NewFileDiskManager(path)
		}
		if err != nil {
			// NewParallelBufferPool has no error return; a disk open
			// failure here is the same fatal I/O condition SPEC_FULL.md
			// §7 calls out, so fall back to an in-memory manager rather
			// than panicking mid-construction. The printed warning is the
			// only report of the failure; that shard then keeps its pages
			// in memory only.
			fmt.Printf("⚠️  Warning: failed to open data file %s: %v\n", path, err)
			return storage.NewMemDiskManager()
		}
		return dm
	})

	table, err := hash.NewExtendibleHashTable(pool)
	if err != nil {
		return nil, fmt.Errorf("initialize hash table: %w", err)
	}

	locks := lock.NewLockManager()

	collector := metrics.NewCollector(pool, table, locks)
	resourceTracker := metrics.NewResourceTracker(nil)
	resourceTracker.Enable()
	promExporter := metrics.NewPrometheusExporter(collector, resourceTracker)
	broadcaster := metrics.NewEventBroadcaster()

	srv := &Server{
		config:          config,
		pool:            pool,
		table:           table,
		locks:           locks,
		collector:       collector,
		resourceTracker: resourceTracker,
		promExporter:    promExporter,
		broadcaster:     broadcaster,
		router:          chi.NewRouter(),
		startTime:       time.Now(),
		stopPoll:        make(chan struct{}),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	h := handlers.New(s.pool, s.table, s.locks, s.collector)

	s.router.Get("/_health", h.Health(s.startTime))
	s.router.Get("/_stats", h.Stats)
	s.router.Get("/_metrics", s.handlePrometheusMetrics)
	s.router.Get("/_events", h.HandleEvents(s.broadcaster))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.promExporter.WriteMetrics(w); err != nil {
		http.Error(w, fmt.Sprintf("Error writing metrics: %v", err), http.StatusInternalServerError)
	}
}

// Start starts the HTTP server and the event poller, blocking until a
// shutdown signal arrives or the listener fails.
func (s *Server) Start() error {
	protocol := "http"
	wsProtocol := "ws"
	if s.config.EnableTLS {
		protocol = "https"
		wsProtocol = "wss"
		fmt.Printf("🔒 TLS/SSL enabled\n")
		fmt.Printf("📜 Certificate: %s\n", s.config.TLSCertFile)
	}
	fmt.Printf("🚀 relcore admin surface starting on %s://%s:%d\n", protocol, s.config.Host, s.config.Port)
	fmt.Printf("📁 Data directory: %s\n", s.config.DataDir)
	fmt.Printf("💾 Buffer pool: %d instances × %d pages\n", s.config.NumInstances, s.config.PoolSize)
	fmt.Printf("🔌 Event feed: %s://%s:%d/_events\n", wsProtocol, s.config.Host, s.config.Port)

	go s.broadcaster.Run(s.pool, s.table, s.locks, s.config.EventPollInterval, s.stopPoll)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpSrv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\n⚠️  Received signal: %v\n", sig)
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP listener, the event poller, and
// flushes every resident page back to disk.
func (s *Server) Shutdown() error {
	fmt.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	close(s.stopPoll)

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		fmt.Printf("❌ Server shutdown error: %v\n", err)
	}

	if s.resourceTracker != nil {
		s.resourceTracker.Disable()
	}

	s.pool.FlushAllPages()

	fmt.Println("✅ Server shutdown complete")
	return nil
}

// Pool returns the underlying parallel buffer pool, for callers (tests,
// the demo command) that want to drive the core directly rather than
// through HTTP.
func (s *Server) Pool() *storage.ParallelBufferPool { return s.pool }

// Table returns the underlying hash table.
func (s *Server) Table() *hash.ExtendibleHashTable { return s.table }

// Locks returns the underlying lock manager.
func (s *Server) Locks() *lock.LockManager { return s.locks }
