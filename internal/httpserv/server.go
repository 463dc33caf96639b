// Package httpserv is the read-only monitor server: health, prometheus
// metrics, and run artifacts served straight off the artifacts root. It
// exposes no mutating endpoint.
package httpserv

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// DefaultAddr binds loopback only; the monitor is an operator tool, not
// a public surface.
const DefaultAddr = "127.0.0.1:8057"

// Server serves health, metrics, and run artifacts.
type Server struct {
	addr          string
	artifactsRoot string
	version       string
	started       time.Time
	http          *http.Server
}

// New builds a server over the artifacts root.
func New(addr, artifactsRoot, version string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{addr: addr, artifactsRoot: artifactsRoot, version: version, started: time.Now()}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{run_id}/result", s.handleRunFile("run_result.json")).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{run_id}/manifest", s.handleRunFile("run_manifest.json")).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{run_id}/steps", s.handleRunSteps).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the routed handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Listen verifies the port is free and starts serving until the context
// is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", s.addr).Msg("monitor server listening")

	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

// runIDPattern rejects path traversal in run ids.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func (s *Server) runPath(r *http.Request, file string) (string, bool) {
	runID := mux.Vars(r)["run_id"]
	if !runIDPattern.MatchString(runID) {
		return "", false
	}
	return filepath.Join(s.artifactsRoot, "backtests", runID, file), true
}

func (s *Server) handleRunFile(file string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := s.runPath(r, file)
		if !ok {
			http.Error(w, "invalid run id", http.StatusBadRequest)
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	path, ok := s.runPath(r, "run_steps.jsonl")
	if !ok {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
