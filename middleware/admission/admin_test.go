package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskqueue-gateway/middleware/admission/domain"
	"taskqueue-gateway/middleware/admission/infra"
)

func TestAdminHandler_StatsReturnsMetricsAndDepth(t *testing.T) {
	store, err := infra.NewStore(infra.Config{
		Algorithm:         domain.AlgorithmTokenBucket,
		RequestsPerMinute: 60,
		Burst:             1,
		EnableMetrics:     true,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	q, err := infra.NewQueue(infra.ThrottleConfig{
		MaxConcurrent: 2,
		QueueSize:     2,
		Timeout:       1 * time.Second,
	}, infra.WithSweepEvery(0))
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	// gera um allow e um deny, e ocupa um slot da fila
	store.Take("c1")
	store.Take("c1")
	ticket, err := q.Submit("c1", domain.PriorityNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer q.Complete(ticket.ID)

	h := AdminHandler(AdminOptions{
		Store:   store,
		Metrics: store.Metrics,
		Queue:   q,
	})

	r := httptest.NewRequest(http.MethodGet, "http://admin/admission/stats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body struct {
		Limiter *struct {
			TotalRequests   uint64 `json:"total_requests"`
			AllowedRequests uint64 `json:"allowed_requests"`
			BlockedRequests uint64 `json:"blocked_requests"`
		} `json:"limiter"`
		Inflight int `json:"inflight"`
		Queued   int `json:"queued"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Limiter == nil {
		t.Fatalf("expected limiter metrics in response")
	}
	if body.Limiter.TotalRequests != 2 || body.Limiter.AllowedRequests != 1 || body.Limiter.BlockedRequests != 1 {
		t.Fatalf("unexpected limiter metrics: %+v", *body.Limiter)
	}
	if body.Inflight != 1 || body.Queued != 0 {
		t.Fatalf("expected inflight=1 queued=0, got %d/%d", body.Inflight, body.Queued)
	}
}

func TestAdminHandler_BlockThenTakeDenied(t *testing.T) {
	store, err := infra.NewStore(infra.Config{
		Algorithm:         domain.AlgorithmTokenBucket,
		RequestsPerMinute: 600,
		Burst:             10,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	h := AdminHandler(AdminOptions{Store: store})

	r := httptest.NewRequest(http.MethodPost, "http://admin/admission/block?key=abuser&duration=5m", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	v := store.Take("abuser")
	if v.Allowed || !v.Blocked {
		t.Fatalf("expected blocked verdict after admin block, got %+v", v)
	}
	if v.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter on blocked verdict, got %v", v.RetryAfter)
	}
}

func TestAdminHandler_BlockValidation(t *testing.T) {
	store, err := infra.NewStore(infra.Config{
		Algorithm:         domain.AlgorithmTokenBucket,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	h := AdminHandler(AdminOptions{Store: store})

	cases := []struct {
		name string
		url  string
	}{
		{"missing key", "http://admin/admission/block?duration=5m"},
		{"missing duration", "http://admin/admission/block?key=x"},
		{"bad duration", "http://admin/admission/block?key=x&duration=banana"},
		{"negative duration", "http://admin/admission/block?key=x&duration=-1m"},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodPost, tc.url, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestAdminHandler_TokenAuth(t *testing.T) {
	h := AdminHandler(AdminOptions{Token: "s3cret"})

	r := httptest.NewRequest(http.MethodGet, "http://admin/admission/stats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "http://admin/admission/stats", nil)
	r.Header.Set("X-Admin-Token", "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "http://admin/admission/stats", nil)
	r.Header.Set("X-Admin-Token", "s3cret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}
}
