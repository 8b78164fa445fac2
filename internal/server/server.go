// Package server exposes the tutoring pipeline over HTTP.
//
// Routes:
//
//	POST   /interact       — multipart audio upload, returns one turn as JSON
//	GET    /history        — full conversation log
//	DELETE /history        — clears the conversation log
//	GET    /static/audio/  — synthesized clips
//	GET    /healthz,/readyz — probes (see internal/health)
//	GET    /metrics        — Prometheus scrape endpoint
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wenjiez/shuoba/internal/health"
	"github.com/wenjiez/shuoba/internal/history"
	"github.com/wenjiez/shuoba/internal/observe"
	"github.com/wenjiez/shuoba/internal/pipeline"
)

// TurnRunner runs one voice turn. Implemented by [pipeline.Pipeline].
type TurnRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server wires the pipeline, history store, and static clip directory into
// an [http.Handler].
type Server struct {
	runner         TurnRunner
	turns          history.Store
	staticDir      string
	maxUploadBytes int64
	metrics        *observe.Metrics
	log            *slog.Logger
	probes         *health.Handler
}

// Option is a functional option for [New].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the probe handler. Defaults to an empty one, so /healthz
// and /readyz always answer even without registered checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.probes = h }
}

// WithMaxUploadBytes caps the size of one audio upload. Defaults to 10 MiB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// New creates a Server. staticDir is the directory synthesized clips are
// served from under /static/audio/.
func New(runner TurnRunner, turns history.Store, staticDir string, opts ...Option) (*Server, error) {
	if runner == nil || turns == nil {
		return nil, errors.New("server: runner and history store must be non-nil")
	}
	s := &Server{
		runner:         runner,
		turns:          turns,
		staticDir:      staticDir,
		maxUploadBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.probes == nil {
		s.probes = health.New()
	}
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /interact", s.handleInteract)
	mux.HandleFunc("GET /history", s.handleGetHistory)
	mux.HandleFunc("DELETE /history", s.handleClearHistory)
	mux.Handle("GET /static/audio/",
		http.StripPrefix("/static/audio/", http.FileServer(http.Dir(s.staticDir))))
	mux.Handle("GET /metrics", promhttp.Handler())
	s.probes.Register(mux)
	return s.instrument(mux)
}

// instrument records request latency per method and route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		s.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", path),
			))
	})
}

// handleInteract accepts a multipart upload with the recorded utterance in
// the "audio" form field ("file" also accepted) and an optional
// "chat_history" field holding a JSON array of turns that overrides stored
// history as generation context.
func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing "audio" form file`)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded audio is empty")
		return
	}

	var override []history.Turn
	if raw := r.FormValue("chat_history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			writeError(w, http.StatusBadRequest, "chat_history must be a JSON array of turns")
			return
		}
	}

	res, err := s.runner.Run(r.Context(), pipeline.Request{
		Audio:           audio,
		Filename:        header.Filename,
		ContextOverride: override,
	})
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		s.log.Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleGetHistory returns every stored turn, oldest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.turns.ReadAll(r.Context())
	if err != nil {
		s.log.Error("history read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reading history failed")
		return
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

// handleClearHistory wipes the conversation log.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.turns.Clear(r.Context()); err != nil {
		s.log.Error("history clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "clearing history failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
