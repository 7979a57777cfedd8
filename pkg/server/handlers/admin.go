package handlers

import "net/http"

// Stats returns a combined buffer pool + hash table + lock manager
// snapshot, each subsystem's own Stats() method merged under its own key
// — the admin surface never takes a subsystem's internal lock itself.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"pool":         h.pool.Stats(),
		"hash_table":   h.table.Stats(),
		"lock_manager": h.locks.Stats(),
	}
	writeSuccess(w, result)
}
