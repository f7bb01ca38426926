// Package server exposes the upload, status, and download HTTP API on top
// of the upload service.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"sentiq/internal/metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 5 * time.Minute
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second

	defaultMaxUploadBytes     int64 = 16 * 1024 * 1024
	defaultMultipartMaxMemory int64 = 8 * 1024 * 1024
)

// Server wraps the HTTP handlers for the sentiq API.
type Server struct {
	addr    string
	uploads *UploadService
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxUploadBytes     int64
	multipartMaxMemory int64
}

// Options tunes the HTTP surface.
type Options struct {
	MaxUploadBytes     int64
	MultipartMaxMemory int64
}

// New creates a server instance.
func New(addr string, uploads *UploadService, logger *slog.Logger, m *metrics.Metrics, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	maxMemory := opts.MultipartMaxMemory
	if maxMemory <= 0 {
		maxMemory = defaultMultipartMaxMemory
	}

	return &Server{
		addr:               addr,
		uploads:            uploads,
		logger:             logger,
		metrics:            m,
		maxUploadBytes:     maxUpload,
		multipartMaxMemory: maxMemory,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return server.ListenAndServe()
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		return u.Host, nil
	}
	if _, _, err := net.SplitHostPort(apiURL); err == nil {
		return apiURL, nil
	}
	return apiURL, nil
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(recorder, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, recorder.status, time.Since(start))
		}
	})
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
