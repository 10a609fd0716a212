package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/DriveGo/internal/telemetry"
)

// LogEvent is one log line sent to SSE clients.
type LogEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// fanout delivers payloads to buffered subscriber channels. Slow
// subscribers miss messages instead of blocking the sender.
type fanout struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	size    int
}

func newFanout(size int) *fanout {
	return &fanout{clients: make(map[chan []byte]struct{}), size: size}
}

func (f *fanout) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, f.size)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.clients, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fanout) send(payload []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// LogBroadcaster distributes log lines to SSE clients.
type LogBroadcaster struct {
	out   *fanout
	clock clock.Clock
}

// NewLogBroadcaster creates a broadcaster. A nil clock uses the system clock.
func NewLogBroadcaster(clk clock.Clock) *LogBroadcaster {
	if clk == nil {
		clk = clock.New()
	}
	return &LogBroadcaster{out: newFanout(64), clock: clk}
}

// Subscribe returns a channel of JSON-encoded LogEvents and its cleanup.
func (b *LogBroadcaster) Subscribe() (<-chan []byte, func()) {
	return b.out.subscribe()
}

// Broadcast sends {"t":"...","l":"info","msg":"..."} to every client.
func (b *LogBroadcaster) Broadcast(level, msg string) {
	data, err := json.Marshal(LogEvent{
		Time:  b.clock.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
	if err != nil {
		return
	}
	b.out.send(data)
}

// Write implements io.Writer so the broadcaster can be a debug output.
// Each non-empty line becomes one event.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			b.Broadcast(levelOf(line), line)
		}
	}
	return len(p), nil
}

func levelOf(line string) string {
	switch {
	case strings.Contains(line, "ERROR"):
		return "error"
	case strings.Contains(line, "WARN"):
		return "warn"
	}
	return "info"
}

// TelemetryHub is a telemetry.Sink that streams snapshots to websocket
// clients and keeps the latest one for new connections.
type TelemetryHub struct {
	out *fanout

	mu     sync.RWMutex
	latest []byte
}

func NewTelemetryHub() *TelemetryHub {
	return &TelemetryHub{out: newFanout(8)}
}

var _ telemetry.Sink = (*TelemetryHub)(nil)

func (h *TelemetryHub) Publish(s telemetry.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.latest = data
	h.mu.Unlock()
	h.out.send(data)
	return nil
}

// Latest returns the last published snapshot as JSON, or nil.
func (h *TelemetryHub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

func (h *TelemetryHub) Subscribe() (<-chan []byte, func()) {
	return h.out.subscribe()
}

// Clients returns the number of connected subscribers.
func (h *TelemetryHub) Clients() int { return h.out.count() }
