package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ScriptForge/internal/run"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *run.Service, run.Store) {
	t.Helper()
	store := run.NewMemoryStore()
	queue := run.NewMemoryQueue(32)
	service := run.NewService(store, queue, 3)
	return NewServer(":0", service, opts...), service, store
}

func TestSubmitRun(t *testing.T) {
	server, _, _ := newTestServer(t)

	body := strings.NewReader(`{"request":"build a scraper"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var created run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != run.StatusPending {
		t.Fatalf("unexpected run: %+v", created)
	}
}

func TestSubmitRunRejectsBlankRequest(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"request":"  "}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRunDetail(t *testing.T) {
	server, _, store := newTestServer(t)

	sample := &run.Run{ID: "run-success", Request: "demo", Status: run.StatusPending, MaxRetries: 3}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample run: %v", err)
	}
	if err := store.MarkSucceeded(context.Background(), "run-success", run.Result{
		FinalScript: "print('ok')",
		Completed:   true,
		Cycles:      4,
		GenesisHash: "abc",
		ChainHead:   "def",
	}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-success", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	var got run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Result == nil || got.Result.FinalScript != "print('ok')" || got.Result.ChainHead != "def" {
		t.Fatalf("unexpected run result: %+v", got.Result)
	}
}

func TestRunDetailNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListRunsWithFilters(t *testing.T) {
	server, _, store := newTestServer(t)
	ctx := context.Background()

	for _, r := range []*run.Run{
		{ID: "a", Request: "first", Status: run.StatusPending, MaxRetries: 3},
		{ID: "b", Request: "second", Status: run.StatusPending, MaxRetries: 3},
	} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}
	if err := store.MarkFailed(ctx, "b", run.CodeRunProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=failed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d (%s)", rec.Code, rec.Body.String())
	}
	var runs []*run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "b" {
		t.Fatalf("unexpected list: %+v", runs)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status filter should be rejected: %d", rec.Code)
	}
}

func TestRunStatsEndpoint(t *testing.T) {
	server, _, store := newTestServer(t)
	ctx := context.Background()

	if err := store.Create(ctx, &run.Run{ID: "a", Request: "first", Status: run.StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var stats run.RunStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAPIKeyGuard(t *testing.T) {
	server, _, _ := newTestServer(t, WithAPIKey("secret"))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}

	// 健康检查不做鉴权。
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz should stay open, got %d", rec.Code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "scriptforge_") {
		t.Fatalf("metrics body missing exposition: %s", rec.Body.String())
	}
}
