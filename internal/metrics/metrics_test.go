package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	WorkerJobs.WithLabelValues("profile_sync", "ok").Inc()
	ObserveHTTP(http.MethodGet, "/api/match", http.StatusOK, 25*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "duet_worker_jobs_total") {
		t.Fatalf("worker metric missing from exposition")
	}
	if !strings.Contains(rec.Body.String(), `route="/api/match"`) {
		t.Fatalf("http metric missing from exposition")
	}
}
