package pointserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/pitchscope/pkg/stream"
)

type fakePipeline struct {
	sink *stream.Sink

	mu     sync.Mutex
	paused bool
	resets int
}

func newFake() *fakePipeline {
	return &fakePipeline{sink: stream.NewSink(10)}
}

func (f *fakePipeline) Sink() *stream.Sink  { return f.sink }
func (f *fakePipeline) State() stream.State { return stream.StateRunning }

func (f *fakePipeline) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakePipeline) Pause(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = on
}

func (f *fakePipeline) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	f.sink.Reset()
}

func (f *fakePipeline) Stats() (int64, int64) { return 7, 3 }

func (f *fakePipeline) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func newTestServer(t *testing.T, p Pipeline, cfg Config) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(p, cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestPoints(t *testing.T) {
	p := newFake()
	for i := range 15 {
		p.sink.Append(stream.Point{PitchHz: float64(100 + i)})
	}
	ts := newTestServer(t, p, Config{})

	var all PointsResponse
	if code := getJSON(t, ts.URL+"/points", &all); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(all.Points) != 10 || all.Points[0].Idx != 5 || all.Points[9].Idx != 14 {
		t.Fatalf("points = %d [%d..], want idx 5..14", len(all.Points), all.Points[0].Idx)
	}

	var since PointsResponse
	getJSON(t, ts.URL+"/points?since=11", &since)
	if len(since.Points) != 3 || since.Points[0].Idx != 12 {
		t.Fatalf("since=11 returned %+v", since.Points)
	}

	var none PointsResponse
	getJSON(t, ts.URL+"/points?since=99", &none)
	if none.Points == nil || len(none.Points) != 0 {
		t.Fatalf("since=99 returned %+v, want empty list", none.Points)
	}

	resp, err := http.Get(ts.URL + "/points?since=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("since=abc status = %d, want 400", resp.StatusCode)
	}
}

func TestStateAndPause(t *testing.T) {
	p := newFake()
	p.sink.Append(stream.Point{})
	ts := newTestServer(t, p, Config{Backend: "kernel", Model: "crepe-tiny"})

	var st StateResponse
	getJSON(t, ts.URL+"/state", &st)
	want := StateResponse{State: "running", Backend: "kernel", Model: "crepe-tiny", Admitted: 7, Dropped: 3, NextIdx: 1}
	if st != want {
		t.Fatalf("state = %+v, want %+v", st, want)
	}

	resp, err := http.Post(ts.URL+"/pause", "application/json", strings.NewReader(`{"paused":true}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Paused || !p.Paused() {
		t.Fatalf("paused = %v / %v, want true", st.Paused, p.Paused())
	}

	bad, err := http.Post(ts.URL+"/pause", "application/json", strings.NewReader(`{`))
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad pause status = %d", bad.StatusCode)
	}
}

func TestReset(t *testing.T) {
	p := newFake()
	p.sink.Append(stream.Point{})
	ts := newTestServer(t, p, Config{})

	resp, err := http.Post(ts.URL+"/reset", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if p.resetCount() != 1 || p.sink.Len() != 0 {
		t.Fatalf("resets = %d, len = %d", p.resetCount(), p.sink.Len())
	}

	// Reset is POST only.
	get, err := http.Get(ts.URL + "/reset")
	if err != nil {
		t.Fatal(err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /reset status = %d, want 405", get.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics\n"))
	})
	ts := newTestServer(t, newFake(), Config{MetricsHandler: metrics})

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}

	bare := newTestServer(t, newFake(), Config{})
	resp, err := http.Get(bare.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/metrics without handler status = %d, want 404", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, newFake(), Config{AllowedOrigins: []string{"http://display.local"}})

	for _, tt := range []struct {
		origin string
		want   string
	}{
		{"http://display.local", "http://display.local"},
		{"http://evil.local", ""},
	} {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/points", nil)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readPoint(t *testing.T, conn *websocket.Conn) stream.Point {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var p stream.Point
	if err := conn.ReadJSON(&p); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return p
}

func TestWebSocketStream(t *testing.T) {
	p := newFake()
	p.sink.Append(stream.Point{PitchNote: "A4"})
	p.sink.Append(stream.Point{PitchNote: "Bb4"})
	ts := newTestServer(t, p, Config{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if got := readPoint(t, conn); got.Idx != 0 || got.PitchNote != "A4" {
		t.Fatalf("first = %+v", got)
	}
	if got := readPoint(t, conn); got.Idx != 1 {
		t.Fatalf("second = %+v", got)
	}

	p.sink.Append(stream.Point{PitchNote: "B4"})
	if got := readPoint(t, conn); got.Idx != 2 || got.PitchNote != "B4" {
		t.Fatalf("live = %+v", got)
	}
}

func TestWebSocketAfterReset(t *testing.T) {
	p := newFake()
	for _, note := range []string{"A4", "Bb4", "B4"} {
		p.sink.Append(stream.Point{PitchNote: note})
	}
	ts := newTestServer(t, p, Config{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for i := range 3 {
		if got := readPoint(t, conn); got.Idx != int64(i) {
			t.Fatalf("snapshot point %d = %+v", i, got)
		}
	}

	p.Reset()
	p.sink.Append(stream.Point{PitchNote: "C5"})
	p.sink.Append(stream.Point{PitchNote: "D5"})
	if got := readPoint(t, conn); got.Idx != 0 || got.PitchNote != "C5" {
		t.Fatalf("first after reset = %+v, want idx 0 C5", got)
	}
	if got := readPoint(t, conn); got.Idx != 1 || got.PitchNote != "D5" {
		t.Fatalf("second after reset = %+v, want idx 1 D5", got)
	}
}

func TestWebSocketOriginRejected(t *testing.T) {
	ts := newTestServer(t, newFake(), Config{AllowedOrigins: []string{"http://display.local"}})
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), http.Header{"Origin": {"http://evil.local"}})
	if err == nil {
		t.Fatal("dial succeeded with a disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %v, want 403", resp)
	}
}

func TestServeShutdown(t *testing.T) {
	p := newFake()
	s := New(p, Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	defer conn.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read after shutdown: %v, want going-away close", err)
	}
}
