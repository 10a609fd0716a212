package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/logic/robot"
	"github.com/cjeanneret/DriveGo/internal/telemetry"
)

// Robot is the part of the runner the HTTP handlers drive.
type Robot interface {
	Mode() robot.Mode
	SetMode(m robot.Mode) error
	StartRoutine(name string) error
	CancelRoutine()
	Routines() []string
	Snapshot() telemetry.Snapshot
}

// ModeRequest is the body of POST /mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// RoutineRequest is the body of POST /auto.
type RoutineRequest struct {
	Routine string `json:"routine"`
}

const (
	maxBodyBytes = 1 << 20
	wsWriteWait  = 2 * time.Second
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Robot     Robot
	Logs      *LogBroadcaster
	Telemetry *TelemetryHub
	staticFS  fs.FS
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(r Robot, logs *LogBroadcaster, hub *TelemetryHub, staticFS fs.FS) *Handlers {
	return &Handlers{
		Robot:     r,
		Logs:      logs,
		Telemetry: hub,
		staticFS:  staticFS,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		heartbeat: 30 * time.Second,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ServeIndex serves the dashboard (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus returns the snapshot of the last control cycle.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Robot.Snapshot())
}

// HandleRoutines lists the configured autonomous routines.
func (h *Handlers) HandleRoutines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"routines": h.Robot.Routines()})
}

// HandleMode handles POST /mode {"mode":"teleop"}.
func (h *Handlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := robot.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Robot.SetMode(mode); err != nil {
		h.Logs.Broadcast("error", "Mode change failed: "+err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": h.Robot.Mode().String()})
}

// HandleStartRoutine handles POST /auto {"routine":"square"}. The routine
// replaces any active one and switches the robot to Autonomous.
func (h *Handlers) HandleStartRoutine(w http.ResponseWriter, r *http.Request) {
	var req RoutineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Routine == "" {
		http.Error(w, "routine is required", http.StatusBadRequest)
		return
	}
	if err := h.Robot.StartRoutine(req.Routine); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, robot.ErrUnknownRoutine) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	h.Logs.Broadcast("info", "Routine "+req.Routine+" started")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "routine": req.Routine})
}

// HandleCancelRoutine handles DELETE /auto.
func (h *Handlers) HandleCancelRoutine(w http.ResponseWriter, r *http.Request) {
	h.Robot.CancelRoutine()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// HandleLogStream handles GET /log/stream for SSE.
func (h *Handlers) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Logs.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: "))
			w.Write(msg)
			w.Write([]byte("\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleTelemetryWS streams every published snapshot as a JSON text frame,
// starting with the latest one. Incoming frames are ignored.
func (h *Handlers) HandleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Warn("websocket upgrade: %v", err)
		return
	}
	defer ws.Close()

	ch, unsub := h.Telemetry.Subscribe()
	defer unsub()

	// The read loop only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(data []byte) bool {
		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			debug.Verbose("websocket write: %v", err)
			return false
		}
		return true
	}

	if latest := h.Telemetry.Latest(); latest != nil && !send(latest) {
		return
	}
	for {
		select {
		case data, ok := <-ch:
			if !ok || !send(data) {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
