package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"sentiq/internal/models"
	"sentiq/internal/store"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// apiError carries an HTTP status alongside the underlying error.
type apiError struct {
	status int
	err    error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func badRequest(err error) error {
	return apiError{status: http.StatusBadRequest, err: err}
}

func notFound(err error) error {
	return apiError{status: http.StatusNotFound, err: err}
}

func internalError(err error) error {
	return apiError{status: http.StatusInternalServerError, err: err}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.status != 0 {
		return apiErr.status
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, store.ErrInvalidTransition) {
		return http.StatusConflict
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromError(err)
	message := err.Error()

	fields := []any{"status", status, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path)
	}
	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		// Internal causes stay in the logs.
		message = "internal server error"
	default:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, errorResponse{Error: message})
}

type uploadResponse struct {
	TaskID string `json:"task_id"`
}

// handleUpload accepts one multipart CSV upload and queues processing.
// A duplicate of live content is accepted without re-queueing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.multipartMaxMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.writeError(w, r, apiError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes)})
			return
		}
		s.writeError(w, r, badRequest(fmt.Errorf("no file part")))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, badRequest(fmt.Errorf("no file part")))
		return
	}
	defer file.Close()

	filename := strings.TrimSpace(header.Filename)
	if filename == "" {
		s.writeError(w, r, badRequest(fmt.Errorf("no selected file")))
		return
	}
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		s.writeError(w, r, badRequest(fmt.Errorf("file must be a CSV")))
		return
	}

	// An explicit task id resubmits under that id, replacing the
	// previous record.
	logicalID := strings.TrimSpace(r.FormValue("task_id"))

	result, err := s.uploads.Submit(r.Context(), file, filename, logicalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, uploadResponse{TaskID: result.LogicalID})
}

type statusResponse struct {
	Status      string `json:"status"`
	Current     *int   `json:"current,omitempty"`
	Total       *int   `json:"total,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// handleTaskStatus reports the externally observed state of one record.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := s.uploads.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, statusResponse{Status: "Invalid"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	resp := statusResponse{Status: displayState(status.State)}
	httpStatus := http.StatusAccepted
	switch status.State {
	case models.StateSuccess:
		httpStatus = http.StatusOK
		resp.DownloadURL = "/api/download/" + id
	case models.StateFailed:
		// Terminal failure, no internal cause in the body.
		httpStatus = http.StatusOK
	case models.StateProcessing:
		if status.HasProgress {
			current, total := status.Current, status.Total
			resp.Current = &current
			resp.Total = &total
		}
	}

	s.writeJSON(w, httpStatus, resp)
}

// handleDownload streams the processed CSV for a record.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rc, downloadName, size, err := s.uploads.FetchOutput(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, notFound(fmt.Errorf("file not found")))
			return
		}
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if _, err := io.Copy(w, rc); err != nil {
		s.log().Warn("download interrupted", "logical_id", id, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func displayState(state models.RecordState) string {
	switch state {
	case models.StatePending:
		return "Pending"
	case models.StateProcessing:
		return "Processing"
	case models.StatePostProcessing:
		return "PostProcessing"
	case models.StateSuccess:
		return "Success"
	case models.StateFailed:
		return "Failed"
	default:
		return string(state)
	}
}
