package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func newTestHTTP(t *testing.T) *HTTP {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/models/crepe-tiny.onnx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("weights"))
	})
	mux.HandleFunc("/models/broken.onnx", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h, err := NewHTTP(srv.Client(), srv.URL+"/models")
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestHTTPRead(t *testing.T) {
	h := newTestHTTP(t)
	ctx := context.Background()

	got, err := ReadAll(ctx, h, "crepe-tiny.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "weights" {
		t.Fatalf("got %q", got)
	}

	if _, err := h.Read(ctx, "missing.onnx"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing err = %v, want os.ErrNotExist", err)
	}
	if _, err := h.Read(ctx, "broken.onnx"); err == nil {
		t.Error("expected error for 500")
	}
}

func TestHTTPExists(t *testing.T) {
	h := newTestHTTP(t)
	ctx := context.Background()

	ok, err := h.Exists(ctx, "crepe-tiny.onnx")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, err = h.Exists(ctx, "missing.onnx")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
}

func TestHTTPReadOnly(t *testing.T) {
	h := newTestHTTP(t)
	if _, err := h.Write(context.Background(), "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write err = %v", err)
	}
	if err := h.Delete(context.Background(), "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete err = %v", err)
	}
}

func TestNewHTTPBadScheme(t *testing.T) {
	if _, err := NewHTTP(nil, "ftp://example.com/"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
