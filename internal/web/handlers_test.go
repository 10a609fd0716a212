package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/logic/robot"
	"github.com/cjeanneret/DriveGo/internal/telemetry"
)

// fakeRobot records what the handlers ask of the runner.
type fakeRobot struct {
	mu        sync.Mutex
	mode      robot.Mode
	started   []string
	cancelled int
	failMode  error
}

func (f *fakeRobot) Mode() robot.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeRobot) SetMode(m robot.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMode != nil {
		return f.failMode
	}
	f.mode = m
	return nil
}

func (f *fakeRobot) StartRoutine(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "square" {
		return errors.Wrap(robot.ErrUnknownRoutine, name)
	}
	f.started = append(f.started, name)
	f.mode = robot.Autonomous
	return nil
}

func (f *fakeRobot) CancelRoutine() {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
}

func (f *fakeRobot) counts() (started, cancelled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started), f.cancelled
}

func (f *fakeRobot) Routines() []string { return []string{"square"} }

func (f *fakeRobot) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{Cycle: 12, RobotMode: f.Mode().String()}
}

func newTestHandlers() (*Handlers, *fakeRobot) {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	r := &fakeRobot{}
	return NewHandlers(r, NewLogBroadcaster(nil), NewTelemetryHub(), staticFS), r
}

func newTestServer(t *testing.T) (*httptest.Server, *Handlers, *fakeRobot) {
	t.Helper()
	h, r := newTestHandlers()
	s := &Server{handlers: h}
	srv := httptest.NewServer(s.Mux())
	t.Cleanup(srv.Close)
	return srv, h, r
}

// ---------- status and routines ----------

func TestHandleStatus(t *testing.T) {
	h, _ := newTestHandlers()
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var s telemetry.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Cycle != 12 || s.RobotMode != "Disabled" {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestHandleRoutines(t *testing.T) {
	h, _ := newTestHandlers()
	w := httptest.NewRecorder()
	h.HandleRoutines(w, httptest.NewRequest(http.MethodGet, "/routines", nil))

	var resp map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp["routines"]) != 1 || resp["routines"][0] != "square" {
		t.Errorf("routines = %v", resp)
	}
}

// ---------- mode ----------

func TestHandleMode(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		mode   robot.Mode
	}{
		{"teleop", `{"mode":"teleop"}`, http.StatusOK, robot.Teleop},
		{"auto_alias", `{"mode":"auto"}`, http.StatusOK, robot.Autonomous},
		{"unknown", `{"mode":"test"}`, http.StatusBadRequest, robot.Disabled},
		{"invalid_json", `not json`, http.StatusBadRequest, robot.Disabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, r := newTestHandlers()
			w := httptest.NewRecorder()
			h.HandleMode(w, httptest.NewRequest(http.MethodPost, "/mode", strings.NewReader(tc.body)))

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			if r.Mode() != tc.mode {
				t.Errorf("mode = %v, want %v", r.Mode(), tc.mode)
			}
		})
	}
}

func TestHandleMode_Failure(t *testing.T) {
	h, r := newTestHandlers()
	r.failMode = errors.New("no routine")
	ch, unsub := h.Logs.Subscribe()
	defer unsub()

	w := httptest.NewRecorder()
	h.HandleMode(w, httptest.NewRequest(http.MethodPost, "/mode", strings.NewReader(`{"mode":"teleop"}`)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if evt := decodeEvent(t, receive(t, ch)); evt.Level != "error" {
		t.Errorf("broadcast level = %q, want error", evt.Level)
	}
}

func TestHandleMode_OversizedBody(t *testing.T) {
	h, _ := newTestHandlers()
	big := `{"mode":"` + strings.Repeat("x", 2<<20) + `"}`
	w := httptest.NewRecorder()
	h.HandleMode(w, httptest.NewRequest(http.MethodPost, "/mode", strings.NewReader(big)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

// ---------- routines ----------

func TestHandleStartRoutine(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"known", `{"routine":"square"}`, http.StatusAccepted},
		{"unknown", `{"routine":"circle"}`, http.StatusNotFound},
		{"empty", `{}`, http.StatusBadRequest},
		{"invalid_json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandlers()
			w := httptest.NewRecorder()
			h.HandleStartRoutine(w, httptest.NewRequest(http.MethodPost, "/auto", strings.NewReader(tc.body)))
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	srv, _, r := newTestServer(t)

	resp, err := http.Post(srv.URL+"/auto", "application/json", strings.NewReader(`{"routine":"square"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST /auto = %d", resp.StatusCode)
	}
	if started, _ := r.counts(); r.Mode() != robot.Autonomous || started != 1 {
		t.Errorf("robot mode %v, started %d", r.Mode(), started)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/auto", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if _, cancelled := r.counts(); resp.StatusCode != http.StatusOK || cancelled != 1 {
		t.Errorf("DELETE /auto = %d, cancelled %d", resp.StatusCode, cancelled)
	}

	resp, err = http.Get(srv.URL + "/mode")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /mode = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / = %d", resp.StatusCode)
	}
}

func TestServeIndex(t *testing.T) {
	h, _ := newTestHandlers()
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestEmbeddedIndex(t *testing.T) {
	s, err := NewServer(":0", &fakeRobot{}, NewLogBroadcaster(nil), NewTelemetryHub())
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	s.Mux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/telemetry/ws") {
		t.Errorf("embedded index missing: %d", w.Code)
	}
}

// ---------- streams ----------

func TestHandleLogStream(t *testing.T) {
	srv, h, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/log/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	rd := bufio.NewReader(resp.Body)
	if line, _ := rd.ReadString('\n'); line != ": connected\n" {
		t.Fatalf("first line = %q", line)
	}
	rd.ReadString('\n')

	h.Logs.Broadcast("warn", "motor #43 no ack")
	line, err := rd.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("line = %q", line)
	}
	evt := decodeEvent(t, []byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")))
	if evt.Level != "warn" || evt.Msg != "motor #43 no ack" {
		t.Errorf("event = %+v", evt)
	}
}

func TestHandleTelemetryWS(t *testing.T) {
	srv, h, _ := newTestServer(t)
	if err := h.Telemetry.Publish(telemetry.Snapshot{Cycle: 1}); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/telemetry/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() telemetry.Snapshot {
		t.Helper()
		var s telemetry.Snapshot
		if err := conn.ReadJSON(&s); err != nil {
			t.Fatal(err)
		}
		return s
	}

	if s := read(); s.Cycle != 1 {
		t.Errorf("first frame cycle = %d, want the latest (1)", s.Cycle)
	}

	// Wait for the handler to subscribe before publishing.
	deadline := time.Now().Add(time.Second)
	for h.Telemetry.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := h.Telemetry.Publish(telemetry.Snapshot{Cycle: 2, RobotMode: "Teleop"}); err != nil {
		t.Fatal(err)
	}
	if s := read(); s.Cycle != 2 || s.RobotMode != "Teleop" {
		t.Errorf("second frame = %+v", s)
	}
}
