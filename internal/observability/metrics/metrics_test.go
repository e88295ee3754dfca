package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerRendersHTTPMetrics(t *testing.T) {
	ObserveHTTPRequest("runs", "POST", 201, 120*time.Millisecond)
	ObserveHTTPRequest("runs", "POST", 500, 80*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `scriptforge_http_requests_total{handler="runs",method="POST",code="201"} 1`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
	if !strings.Contains(body, `scriptforge_http_request_errors_total{handler="runs",method="POST"} 1`) {
		t.Fatalf("error counter missing:\n%s", body)
	}
	if !strings.Contains(body, "scriptforge_http_request_duration_seconds_count{handler=\"runs\",method=\"POST\"} 2") {
		t.Fatalf("latency histogram missing:\n%s", body)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type: %s", got)
	}
}

func TestHandlerRendersEngineMetrics(t *testing.T) {
	SetEntropy(1.25)
	ObserveCycle("PLAN")
	ObserveCycle("PLAN")
	ObserveCycle("COMPOSE")
	ObserveRoleInvocation("decision-maker", "cube", 300*time.Millisecond, true)
	ObserveRoleInvocation("code-producer", "code", 2*time.Second, false)
	ObserveRun(true, 5)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, "scriptforge_entropy_score 1.25") {
		t.Fatalf("entropy gauge missing:\n%s", body)
	}
	if !strings.Contains(body, `scriptforge_cycles_total{action="PLAN"} 2`) {
		t.Fatalf("cycle counter missing:\n%s", body)
	}
	if !strings.Contains(body, `scriptforge_runs_total{completed="true"} 1`) {
		t.Fatalf("run counter missing:\n%s", body)
	}
	if !strings.Contains(body, `scriptforge_role_invocations_total{role="code-producer",model="code",outcome="error"} 1`) {
		t.Fatalf("role counter missing:\n%s", body)
	}
	if !strings.Contains(body, `scriptforge_role_invocation_duration_seconds_bucket{role="decision-maker",model="cube",outcome="ok",le="0.5"} 1`) {
		t.Fatalf("role latency bucket missing:\n%s", body)
	}
}
