package observe

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestWithAddsTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	l := With(ctx, slog.New(slog.NewTextHandler(&buf, nil)))
	l.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("log = %q, want trace_id", out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Errorf("log = %q, want span_id", out)
	}
}

func TestWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	l := With(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	l.Info("hello")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log = %q, want no trace_id", buf.String())
	}
}

func TestMiddleware(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "ok")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/points", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	if findMetric(collect(t, reader), "pitchscope.http.request.duration") == nil {
		t.Error("request duration not recorded")
	}
}

func TestMiddlewareHijack(t *testing.T) {
	h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Hijacker); !ok {
			t.Error("wrapped writer does not implement http.Hijacker")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
}
