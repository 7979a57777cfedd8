// Package handlers implements the admin surface's HTTP handlers: read-only
// views over the buffer pool, hash table, and lock manager, plus the
// WebSocket event feed. None of these handlers ever mutate the core.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/relcore/relcore/pkg/hash"
	"github.com/relcore/relcore/pkg/lock"
	"github.com/relcore/relcore/pkg/metrics"
	"github.com/relcore/relcore/pkg/storage"
)

// Handlers holds references to the three core subsystems and the metrics
// layer sitting alongside them, and provides HTTP handlers over all of it.
type Handlers struct {
	pool  *storage.ParallelBufferPool
	table *hash.ExtendibleHashTable
	locks *lock.LockManager

	collector *metrics.Collector
}

// New creates a new Handlers instance.
func New(pool *storage.ParallelBufferPool, table *hash.ExtendibleHashTable, locks *lock.LockManager, collector *metrics.Collector) *Handlers {
	return &Handlers{pool: pool, table: table, locks: locks, collector: collector}
}

// BadRequestError reports a malformed request, matching this codebase's
// habit of typed error values for writeError's switch.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorType := "InternalError"
	message := err.Error()

	if e, ok := err.(*BadRequestError); ok {
		statusCode = http.StatusBadRequest
		errorType = "BadRequest"
		message = e.Message
	}

	response := map[string]interface{}{
		"ok":      false,
		"error":   errorType,
		"message": message,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func writeSuccess(w http.ResponseWriter, result interface{}) {
	response := map[string]interface{}{
		"ok":     true,
		"result": result,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Health returns a health check handler.
func (h *Handlers) Health(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := time.Since(startTime)
		result := map[string]interface{}{
			"status": "healthy",
			"uptime": uptime.String(),
			"time":   time.Now().Format(time.RFC3339),
		}
		writeSuccess(w, result)
	}
}
