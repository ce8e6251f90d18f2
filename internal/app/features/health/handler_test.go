package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dalemusser/bourses/internal/app/features/health"
	"github.com/dalemusser/bourses/internal/testutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type response struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func serve(t *testing.T, h *health.Handler) (*httptest.ResponseRecorder, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Serve(rec, httptest.NewRequest("GET", "/health", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return rec, resp
}

func TestServe_DatabaseConnected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := health.NewHandler(db.Client(), nil, zap.NewNop())

	rec, resp := serve(t, handler)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if resp.Status != "ok" || resp.Database != "connected" || resp.Cache != "disabled" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestServe_CacheDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	handler := health.NewHandler(db.Client(), rdb, zap.NewNop())

	_, resp := serve(t, handler)
	if resp.Cache != "connected" {
		t.Errorf("cache: got %q, want connected", resp.Cache)
	}

	mr.Close()
	rec, resp := serve(t, handler)
	if rec.Code != http.StatusOK {
		t.Errorf("a cache outage must not fail the check, got %d", rec.Code)
	}
	if resp.Status != "degraded" || resp.Cache != "disconnected" {
		t.Errorf("unexpected response %+v", resp)
	}
}
