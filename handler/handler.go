// Package handler serves the export API: start, watch, cancel and download
// exports, and preview single slides
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
)

const Version = "0.1.0"

// maxBody bounds dashboard uploads
const maxBody = 8 << 20

// Server holds the handler dependencies
type Server struct {
	jobs     *export.Manager
	renderer *processor.Renderer
	log      *slog.Logger
	runtime  string
	backends []pipeline.Backend
}

// Options wires a Server
type Options struct {
	Jobs     *export.Manager
	Renderer *processor.Renderer
	Logger   *slog.Logger
	// Runtime names the host platform in /health and /api
	Runtime  string
	Backends []pipeline.Backend
}

// New creates a Server
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		jobs:     opts.Jobs,
		renderer: opts.Renderer,
		log:      log.With("component", "http"),
		runtime:  opts.Runtime,
		backends: opts.Backends,
	}
}

var endpoints = []string{
	"GET /health",
	"GET /api",
	"GET /metrics",
	"POST /exports",
	"GET /exports",
	"GET /exports/{id}",
	"POST /exports/{id}/cancel",
	"GET /exports/{id}/events",
	"GET /exports/{id}/document",
	"POST /slides/preview?index=N&format=svg|png",
}

// Router sets up and returns the main router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Get("/api", s.handleRoot)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/exports", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleStatus)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/document", s.handleDocument)
	})
	r.Post("/slides/preview", s.handlePreview)
	return r
}

// cors wraps a handler with CORS headers
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version, Runtime: s.runtime})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	backends := make([]string, len(s.backends))
	for i, b := range s.backends {
		backends[i] = string(b)
	}
	writeJSON(w, http.StatusOK, RootResponse{
		Service:   "dashdeck",
		Version:   Version,
		Runtime:   s.runtime,
		Endpoints: endpoints,
		Backends:  backends,
	})
}

// decodeDashboard reads and validates a dashboard body
func decodeDashboard(w http.ResponseWriter, r *http.Request) (slides.Dashboard, bool) {
	var d slides.Dashboard
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Failed to read body")
		return d, false
	}
	if err := json.Unmarshal(body, &d); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid dashboard JSON: %v", err))
		return d, false
	}

	v := NewValidator()
	v.RequireNonEmpty("name", d.Name)
	for i, g := range d.Graphs {
		v.Check(fmt.Sprintf("graphs[%d]", i), g.Validate())
	}
	if !v.IsValid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: v.Error(), Details: v.Errors()})
		return d, false
	}
	return d, true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeDashboard(w, r)
	if !ok {
		return
	}
	id, err := s.jobs.Start(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	w.Header().Set("Location", "/exports/"+id)
	writeJSON(w, http.StatusAccepted, StartResponse{ID: id, Status: st})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(id); err != nil {
		s.writeJobError(w, err)
		return
	}
	st, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	rc, st, err := s.jobs.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(st.Document)))
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("document download interrupted", "id", st.ID, "err", err)
	}
}

// handlePreview renders one slide of the posted dashboard without exporting it
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeDashboard(w, r)
	if !ok {
		return
	}
	list := slides.Enumerate(d)

	v := NewValidator()
	index := v.RequireIndex("index", r.URL.Query().Get("index"), len(list))
	format := r.URL.Query().Get("format")
	v.RequireOneOf("format", format, []string{"svg", "png"})
	if !v.IsValid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: v.Error(), Details: v.Errors()})
		return
	}

	h, err := s.renderer.Mount(r.Context(), list[index])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Render failed: %v", err))
		return
	}

	if format == "png" {
		img, err := h.Raster(1)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Raster failed: %v", err))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, img)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := h.SVG(w); err != nil {
		s.log.Warn("preview write failed", "err", err)
	}
}

// writeJobError maps export errors to status codes
func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, export.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, export.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, export.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
