package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はラベルが一致するメトリクスを返す。見つからなければnil。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordAIRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAIRequest("chat", "success", 300*time.Millisecond)
	c.RecordAIRequest("chat", "success", time.Second)
	c.RecordAIRequest("chat", "blocked", time.Second)

	m := findMetric(t, reg, "skillnest_ai_requests_total", map[string]string{"operation": "chat", "outcome": "success"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("ai_requests_total{chat,success} = %v, want 2", m)
	}
	h := findMetric(t, reg, "skillnest_ai_latency_seconds", map[string]string{"operation": "chat"})
	if h == nil || h.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("ai_request_duration sample count = %v, want 3", h)
	}
}

func TestRecordAuthEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthEvent("signed_in")
	c.RecordAuthEvent("expired")

	m := findMetric(t, reg, "skillnest_auth_events_total", map[string]string{"type": "expired"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("auth_events_total{expired} = %v, want 1", m)
	}
}

func TestRecordNewsFetchAndItems(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNewsFetch("ok", 2*time.Second)
	c.RecordNewsFetch("backoff", time.Second)
	c.RecordNewsItems(3, 1)
	c.RecordNewsItems(2, 0)

	if m := findMetric(t, reg, "skillnest_news_fetch_total", map[string]string{"outcome": "backoff"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("news_fetch_total{backoff} = %v, want 1", m)
	}
	if m := findMetric(t, reg, "skillnest_news_items_upserted_total", map[string]string{"kind": "inserted"}); m == nil || m.GetCounter().GetValue() != 5 {
		t.Errorf("news_items_upserted_total{inserted} = %v, want 5", m)
	}
	if m := findMetric(t, reg, "skillnest_news_items_upserted_total", map[string]string{"kind": "updated"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("news_items_upserted_total{updated} = %v, want 1", m)
	}
}

func TestTrackWebSocket(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	done1 := c.TrackWebSocket("typewriter")
	done2 := c.TrackWebSocket("typewriter")
	done1()

	m := findMetric(t, reg, "skillnest_websocket_connections", map[string]string{"channel": "typewriter"})
	if m == nil || m.GetGauge().GetValue() != 1 {
		t.Errorf("websocket_connections{typewriter} = %v, want 1", m)
	}
	done2()
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := chi.NewRouter()
	r.Use(c.Middleware())
	r.Get("/api/challenges/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/challenges/"+id, nil))
	}

	m := findMetric(t, reg, "skillnest_http_requests_total", map[string]string{
		"method":      "GET",
		"route":       "/api/challenges/{id}",
		"status_code": "404",
	})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("http_requests_total = %v, want 2", m)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordNewsFetch("ok", time.Second)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "skillnest_news_fetch_total") {
		t.Error("response should contain skillnest_news_fetch_total metric")
	}
}
