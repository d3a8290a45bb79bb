// Package server exposes the chat pipeline over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/born-ml/tinychat/internal/chat"
	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/inference"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// RequestIDHeader carries the id assigned to every request.
	RequestIDHeader = "X-Request-ID"

	// Greeting is served at "/" when the static directory has no index.html.
	Greeting = "Tiny LLM Chatbot Demo is up!"

	maxBodyBytes = 1 << 20
)

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the reply of POST /generate.
type GenerateResponse struct {
	Response string `json:"response"`
}

// HealthResponse is the reply of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server owns the HTTP handlers. The inference context it serves is loaded
// once at startup and only read afterwards.
type Server struct {
	pipeline  *chat.Pipeline
	info      inference.ModelInfo
	staticDir string
}

// New creates a server answering prompts with ctx, using config for every
// generation. staticDir may be empty.
func New(ctx *inference.Context, config generate.Config, staticDir string) *Server {
	return &Server{
		pipeline:  chat.NewPipeline(ctx, config),
		info:      ctx.Model.Info(),
		staticDir: staticDir,
	}
}

// Handler returns the routes wrapped with request ids and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleStatic)
	return withRequestID(mux)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var (
		reply  string
		genErr error
	)
	if err := exceptions.TryCatch[error](func() {
		reply, genErr = s.pipeline.Respond(req.Prompt)
	}); err != nil {
		genErr = errors.WithMessage(err, "model failure")
	}
	if genErr != nil {
		status := http.StatusInternalServerError
		var gerr *chat.GenerationError
		if errors.As(genErr, &gerr) {
			status = http.StatusUnprocessableEntity
		}
		klog.Warningf("request %s: %v", w.Header().Get(RequestIDHeader), genErr)
		writeJSON(w, status, ErrorResponse{Error: genErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Response: reply})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Model: s.info.Name, Version: s.info.Version})
}

// handleStatic serves files under the static directory. Directories are never
// listed.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		name = "/index.html"
		if !s.isFile(name) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, Greeting)
			return
		}
	}
	if !s.isFile(name) {
		http.NotFound(w, r)
		return
	}
	full := filepath.Join(s.staticDir, filepath.FromSlash(name))
	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) isFile(name string) bool {
	if s.staticDir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(s.staticDir, filepath.FromSlash(name)))
	return err == nil && info.Mode().IsRegular()
}

// writeJSON sends payload with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeOptionalJSON decodes the request body into dst. An empty body leaves
// dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrap(err, "malformed JSON body")
	}
	return nil
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestID tags each request with an id, reusing the caller's when given,
// and logs it once the handler returns.
func withRequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h.ServeHTTP(rec, r)
		klog.V(1).Infof("%s %s %s -> %d (%s)", id, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
