package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func middlewareSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return m, reader, exp
}

// muxed serves handler under pattern behind the middleware.
func muxed(m *Metrics, pattern string, h http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	return Middleware(m)(mux)
}

func durationAttrs(t *testing.T, reader *sdkmetric.ManualReader) []map[string]string {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "wordsplice.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	var out []map[string]string
	for _, dp := range hist.DataPoints {
		attrs := map[string]string{}
		for _, kv := range dp.Attributes.ToSlice() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		out = append(out, attrs)
	}
	return out
}

func TestMiddleware_TraceHeaderMatchesContext(t *testing.T) {
	m, _, _ := middlewareSetup(t)
	var seen string
	h := muxed(m, "GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if len(seen) != 32 {
		t.Fatalf("trace id %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get("X-Trace-ID"); got != seen {
		t.Errorf("X-Trace-ID = %q, want %q", got, seen)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, exp := middlewareSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var seen string
	h := muxed(m, "GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	})

	req := httptest.NewRequest("GET", "/readyz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != traceID {
		t.Errorf("trace id = %q, want %q", seen, traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "GET /readyz" {
		t.Fatalf("spans = %v, want one named GET /readyz", spans)
	}
	if spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s", spans[0].Parent.SpanID())
	}
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m, reader, exp := middlewareSetup(t)
	h := muxed(m, "GET /clips/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/clips/a1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/clips/b2", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	counts := map[string]int{}
	for _, a := range durationAttrs(t, reader) {
		counts[a["path"]+" "+a["status"]]++
	}
	want := map[string]int{"GET /clips/{id} 404": 1, "unmatched 404": 1}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("series %q count = %d, want %d (all: %v)", k, counts[k], n, counts)
		}
	}

	var status int64
	for _, a := range exp.GetSpans()[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != 404 {
		t.Errorf("span status code = %d, want 404", status)
	}
}

func TestMiddleware_LogLevelByStatus(t *testing.T) {
	m, _, _ := middlewareSetup(t)
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ok := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))
	if buf.Len() != 0 {
		t.Errorf("successful scrape logged at info: %s", buf.String())
	}

	failing := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/readyz", nil))
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "trace_id=") {
		t.Errorf("503 should log at warn with trace id, got: %s", buf.String())
	}
}
