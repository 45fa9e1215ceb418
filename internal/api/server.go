// Package api serves the corridor's operational HTTP surface: live state,
// decision history and streaming, incident intake, and the monitor charts.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/nnikhil6/greenwave/internal/config"
	"github.com/nnikhil6/greenwave/internal/corridor"
	"github.com/nnikhil6/greenwave/internal/journal"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes one coordinated corridor over HTTP. Reads come from the
// corridor snapshot and the journal; writes go through the inbox so they
// apply between ticks like every other intake path.
type Server struct {
	coord   *corridor.Coordinator
	inbox   *corridor.Inbox
	journal *journal.Journal
	cfg     *config.CorridorConfig
	units   string
	stream  *DecisionStream
	started time.Time
}

// NewServer wires the API against a running corridor. The journal may be
// nil when the daemon runs without persistence; history endpoints then
// report 503.
func NewServer(coord *corridor.Coordinator, inbox *corridor.Inbox, j *journal.Journal, cfg *config.CorridorConfig, units string) *Server {
	return &Server{
		coord:   coord,
		inbox:   inbox,
		journal: j,
		cfg:     cfg,
		units:   units,
		stream:  NewDecisionStream(),
		started: time.Now(),
	}
}

// Stream returns the decision sink that feeds /api/decisions/stream.
// Register it with the control loop.
func (s *Server) Stream() *DecisionStream {
	return s.stream
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE endpoints keep streaming behind the
// middleware.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux registers all corridor routes on a fresh mux. Debug routes are
// attached by the caller so they can be gated separately.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/corridor", s.showCorridor)
	mux.HandleFunc("/api/decisions", s.listDecisions)
	mux.HandleFunc("/api/decisions/stream", s.streamDecisions)
	mux.HandleFunc("/api/incidents", s.handleIncidents)
	mux.HandleFunc("/api/incidents/", s.handleIncidentClear)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/summaries", s.listSummaries)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/export", s.exportDecisions)
	mux.HandleFunc("/monitor/timing", s.monitorTiming)
	mux.HandleFunc("/monitor/density", s.monitorDensity)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: response encode failed: %v", err)
	}
}
