// Package server exposes problem submission and history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/metrics"
	"github.com/johnayoung/math-consensus/internal/ocr"
	"github.com/johnayoung/math-consensus/internal/solver"
)

// Solver is the application service behind /api/submit.
type Solver interface {
	Solve(ctx context.Context, req solver.Request) (*history.Record, error)
	Backends() []string
}

// Settings configures the listener and upload handling.
type Settings struct {
	Addr           string
	UploadDir      string
	MaxUploadBytes int64
	// MaxMemoryBytes is how much of a multipart form is held in memory;
	// larger file parts spill to temporary files.
	MaxMemoryBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

const (
	defaultMaxUpload = 16 << 20
	defaultMaxMemory = 1 << 20
)

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server serves the HTTP API.
type Server struct {
	settings Settings
	solver   Solver
	store    history.Store
	log      logger.Logger
	mux      *http.ServeMux
}

// New wires the routes. store may be nil, in which case the history
// endpoints report 503.
func New(settings Settings, svc Solver, store history.Store, opts ...Option) *Server {
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = defaultMaxUpload
	}
	if settings.MaxMemoryBytes <= 0 {
		settings.MaxMemoryBytes = min(settings.MaxUploadBytes, defaultMaxMemory)
	}
	if settings.UploadDir == "" {
		settings.UploadDir = "uploads"
	}
	s := &Server{
		settings: settings,
		solver:   svc,
		store:    store,
		log:      logger.NewNoOpLogger(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /api/submit", s.handleSubmit)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history/{id}", s.handleHistoryItem)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.log.Debug("http request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"latency_ms": time.Since(start).Milliseconds(),
		})
	})
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.settings.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", map[string]interface{}{"addr": s.settings.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("http server draining", nil)
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)

	req, status, err := s.readSubmission(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	rec, err := s.solver.Solve(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, solver.ErrEmptyProblem), errors.Is(err, solver.ErrNoBackends), errors.Is(err, ocr.ErrNoEngine):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.WithError(err).Error("submission failed", nil)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// readSubmission extracts the problem from a multipart or urlencoded form.
// An uploaded image is saved under the upload directory.
func (s *Server) readSubmission(r *http.Request) (solver.Request, int, error) {
	err := r.ParseMultipartForm(s.settings.MaxMemoryBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return solver.Request{}, http.StatusRequestEntityTooLarge, errors.New("upload exceeds limit")
		}
		return solver.Request{}, http.StatusBadRequest, fmt.Errorf("invalid form: %w", err)
	}

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["problem_image"]; len(files) > 0 {
			if files[0].Filename == "" {
				return solver.Request{}, http.StatusBadRequest, errors.New("No selected file")
			}
			path, err := s.saveUpload(files[0])
			if err != nil {
				s.log.WithError(err).Error("failed to store upload", nil)
				return solver.Request{}, http.StatusInternalServerError, errors.New("failed to store upload")
			}
			return solver.Request{ImagePath: path}, 0, nil
		}
		// A file part without a filename arrives as a plain value.
		if _, ok := r.MultipartForm.Value["problem_image"]; ok {
			return solver.Request{}, http.StatusBadRequest, errors.New("No selected file")
		}
	}

	if _, ok := r.Form["problem_text"]; !ok {
		return solver.Request{}, http.StatusBadRequest, solver.ErrEmptyProblem
	}
	return solver.Request{Text: r.FormValue("problem_text")}, 0, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// secureFilename reduces name to a safe base name.
func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.settings.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(s.settings.UploadDir, uuid.NewString()+"_"+secureFilename(fh.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	list, err := s.store.List(r.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to list history", nil)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if list == nil {
		list = []history.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, "History item not found")
	case errors.Is(err, history.ErrInvalidRecord):
		writeError(w, http.StatusInternalServerError, "Invalid history file")
	case err != nil:
		s.log.WithError(err).Error("failed to load history item", nil)
		writeError(w, http.StatusInternalServerError, "failed to load history item")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

type healthResponse struct {
	Status   string   `json:"status"`
	Backends []string `json:"backends"`
	History  string   `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Backends: s.solver.Backends(), History: "disabled"}
	if resp.Backends == nil {
		resp.Backends = []string{}
	}
	if s.store != nil {
		resp.History = s.store.Driver()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
