package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiHarness wires a small control API mux behind the middleware with
// in-memory metric and span sinks installed globally for the test.
type apiHarness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	seenCID string
}

func newAPIHarness(t *testing.T, opts ...MiddlewareOption) *apiHarness {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	h := &apiHarness{reader: reader, spans: exp}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/speak", func(w http.ResponseWriter, r *http.Request) {
		h.seenCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("DELETE /v1/queue/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/stop", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {})
	h.handler = Middleware(m, opts...)(mux)
	return h
}

func (h *apiHarness) serve(method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) durations(t *testing.T) metricdata.Histogram[float64] {
	t.Helper()
	met := findMetric(collect(t, h.reader), "sensekit.http.request.duration")
	if met == nil {
		t.Fatal("http duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("http duration is %T, want histogram", met.Data)
	}
	return hist
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.serve(http.MethodPost, "/v1/speak", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.seenCID) != 32 {
		t.Fatalf("handler saw correlation ID %q, want 32 hex chars", h.seenCID)
	}
	if got := rec.Header().Get(CorrelationHeader); got != h.seenCID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, h.seenCID)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into the response")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h := newAPIHarness(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	rec := h.serve(http.MethodPost, "/v1/speak", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})
	if h.seenCID != traceID {
		t.Errorf("handler trace ID = %q, want %q", h.seenCID, traceID)
	}
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestMiddleware_SpanAttributes(t *testing.T) {
	h := newAPIHarness(t)
	h.serve(http.MethodPost, "/v1/stop", nil)

	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "POST /v1/stop" {
		t.Errorf("span name = %q", s.Name)
	}
	attrs := attrMap(s.Attributes)
	if v := attrs["http.response.status_code"]; v.AsInt64() != http.StatusServiceUnavailable {
		t.Errorf("status_code = %v, want 503", v.Emit())
	}
	if v := attrs["http.route"]; v.AsString() != "POST /v1/stop" {
		t.Errorf("http.route = %q", v.AsString())
	}
}

func TestMiddleware_DurationByRoutePattern(t *testing.T) {
	h := newAPIHarness(t)
	for _, id := range []string{"a", "b", "c"} {
		if rec := h.serve(http.MethodDelete, "/v1/queue/"+id, nil); rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	hist := h.durations(t)
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want one per route", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 3 {
		t.Errorf("count = %d, want 3", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "DELETE /v1/queue/{id}" {
		t.Errorf("path = %q", v.AsString())
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != http.MethodDelete {
		t.Errorf("method = %q", v.AsString())
	}
}

func TestMiddleware_Untraced(t *testing.T) {
	h := newAPIHarness(t, Untraced("/healthz"))

	rec := h.serve(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(CorrelationHeader); got != "" {
		t.Errorf("untraced response carries %s %q", CorrelationHeader, got)
	}
	if n := len(h.spans.GetSpans()); n != 0 {
		t.Errorf("got %d spans for untraced path", n)
	}
	if hist := h.durations(t); len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Error("untraced request duration not recorded")
	}
}
