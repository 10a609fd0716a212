package web

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server for the given address and runner.
func NewServer(addr string, r Robot, logs *LogBroadcaster, hub *TelemetryHub) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, errors.Wrap(err, "web: static fs")
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(r, logs, hub, subFS),
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /routines", s.handlers.HandleRoutines)
	mux.HandleFunc("POST /mode", s.handlers.HandleMode)
	mux.HandleFunc("POST /auto", s.handlers.HandleStartRoutine)
	mux.HandleFunc("DELETE /auto", s.handlers.HandleCancelRoutine)
	mux.HandleFunc("GET /log/stream", s.handlers.HandleLogStream)
	mux.HandleFunc("GET /telemetry/ws", s.handlers.HandleTelemetryWS)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
