package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relcore/relcore/pkg/rid"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config := DefaultConfig()
	config.DataDir = "" // in-memory disk managers, no filesystem writes in tests
	config.NumInstances = 2
	config.PoolSize = 8
	srv, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/_health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /_health status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("response ok = %v, want true", body["ok"])
	}
}

func TestServerStatsReflectsHashTableActivity(t *testing.T) {
	srv := newTestServer(t)

	if ok, err := srv.table.Insert(1, rid.RID{PageID: 0, SlotNum: 1}); err != nil || !ok {
		t.Fatalf("Insert() = %v, %v", ok, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/_stats", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /_stats status = %d, want 200", rec.Code)
	}
	var body struct {
		OK     bool `json:"ok"`
		Result struct {
			HashTable map[string]any `json:"hash_table"`
			Pool      map[string]any `json:"pool"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.OK {
		t.Fatal("response ok = false")
	}
	if body.Result.HashTable == nil || body.Result.Pool == nil {
		t.Fatalf("expected hash_table and pool keys in /_stats result, got %+v", body.Result)
	}
}

func TestServerPrometheusMetrics(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/_metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /_metrics status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q, want text/plain prefix", ct)
	}
	if !strings.Contains(rec.Body.String(), "relcore_") {
		t.Fatalf("expected relcore_ prefixed metric lines, got:\n%s", rec.Body.String())
	}
}

func TestServerShutdownWithPollLoopRunning(t *testing.T) {
	srv := newTestServer(t)
	go srv.broadcaster.Run(srv.pool, srv.table, srv.locks, srv.config.EventPollInterval, srv.stopPoll)

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
