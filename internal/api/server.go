// Package api exposes the engine and session store over HTTP for the
// renderer and for debugging.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/alexanderzliu/guitarzero/internal/chart"
	"github.com/alexanderzliu/guitarzero/internal/engine"
	"github.com/alexanderzliu/guitarzero/internal/session"
	"github.com/alexanderzliu/guitarzero/internal/transport"
	"github.com/alexanderzliu/guitarzero/internal/version"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine *engine.Engine
	db     *session.DB
	chart  *chart.Chart
}

// NewServer wires the HTTP surface. db may be nil when running without
// persistence; the session endpoints then report 503.
func NewServer(eng *engine.Engine, db *session.DB, ch *chart.Chart) *Server {
	return &Server{
		engine: eng,
		db:     db,
		chart:  ch,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

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

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/frame", s.showFrame)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/transport/start", s.transportCommand((*engine.Engine).Start))
	mux.HandleFunc("/api/transport/pause", s.transportCommand((*engine.Engine).Pause))
	mux.HandleFunc("/api/transport/resume", s.transportCommand((*engine.Engine).Resume))
	mux.HandleFunc("/api/transport/stop", s.transportCommand((*engine.Engine).Stop))
	mux.HandleFunc("/api/transport/speed", s.setSpeed)
	mux.HandleFunc("/api/transport/loop", s.setLoop)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/best", s.showBestScore)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.chart)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

// transportCommand adapts the no-argument engine controls into handlers.
func (s *Server) transportCommand(cmd func(*engine.Engine)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		cmd(s.engine)
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (s *Server) setSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	speed, err := strconv.ParseFloat(r.FormValue("speed"), 64)
	if err != nil || speed <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "invalid 'speed' parameter")
		return
	}
	s.engine.SetSpeed(speed)
	s.writeJSON(w, http.StatusAccepted, map[string]float64{"speed": speed})
}

type loopRequest struct {
	SectionID string  `json:"section_id"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
	Clear     bool    `json:"clear"`
}

func (s *Server) setLoop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid loop request: %v", err))
		return
	}
	if req.Clear {
		s.engine.SetLoop(nil)
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "loop cleared"})
		return
	}
	if req.EndSec <= req.StartSec || req.StartSec < 0 {
		s.writeJSONError(w, http.StatusBadRequest, "loop section must have 0 <= start < end")
		return
	}
	s.engine.SetLoop(&transport.LoopConfig{
		SectionID: req.SectionID,
		StartSec:  req.StartSec,
		EndSec:    req.EndSec,
	})
	s.writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	recs, err := s.db.ListSessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'id' parameter")
		return
	}

	rec, err := s.db.GetSession(id)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to load session: %v", err))
		return
	}
	verdicts, err := s.db.SessionVerdicts(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to load verdicts: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":  rec,
		"verdicts": verdicts,
	})
}

func (s *Server) showBestScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	title := r.URL.Query().Get("chart")
	if title == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'chart' parameter")
		return
	}

	rec, err := s.db.BestScore(title)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeJSONError(w, http.StatusNotFound, "no completed sessions for chart")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to load best score: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}
