package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	newServerMetrics(reg)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_TurnCounterIncremented(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg)

	m.turnsTotal.WithLabelValues("ok").Inc()

	if got := counterValue(t, reg, "vivoassist_chat_turns_total", "outcome", "ok"); got != 1 {
		t.Errorf("want counter=1, got %v", got)
	}
}

// Test_Metrics_InstrumentRecordsHandlerAndStatus verifies the instrument
// middleware partitions request counts by handler name and status code.
func Test_Metrics_InstrumentRecordsHandlerAndStatus(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{lines: []string{"ok"}}
	s, promReg := newTestServerWithEngine(eng)

	h := s.instrument("chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	mfs, err := promReg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() != "vivoassist_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == http.MethodPost && labels[labelHandler] == "chat" && labels["code"] == "400" {
				if m.GetCounter().GetValue() != 1 {
					t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
				}
				found = true
			}
		}
	}
	if !found {
		t.Error(`vivoassist_http_requests_total{handler="chat",code="400"} not found in gathered metrics`)
	}
}
