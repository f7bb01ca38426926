package server

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /api/upload", s.instrument("upload", s.handleUpload))
	mux.Handle("GET /api/task/{id}", s.instrument("task_status", s.handleTaskStatus))
	mux.Handle("GET /api/download/{id}", s.instrument("download", s.handleDownload))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}
