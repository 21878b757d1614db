package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"chorusd/internal/deps"
	"chorusd/internal/extraction"
	"chorusd/internal/faults"
	"chorusd/internal/jobs"
	"chorusd/internal/logging"
	"chorusd/internal/media"
	"chorusd/internal/storage"
)

type extractResponse struct {
	Identifier     string        `json:"identifier"`
	ChorusStartSec float64       `json:"chorus_start_sec"`
	Metrics        media.Metrics `json:"metrics"`
	DownloadURL    string        `json:"download_url"`
}

type cleanupResponse struct {
	Identifier string `json:"identifier"`
	Removed    int    `json:"removed"`
}

type statusResponse struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	LockFilePath string                 `json:"lock_file_path"`
	Jobs         map[jobs.Status]int    `json:"jobs,omitempty"`
	Dependencies []deps.Status          `json:"dependencies"`
	Directories  []deps.DirectoryResult `json:"directories"`
}

type formatsResponse struct {
	AllowedExtensions  []string `json:"allowed_extensions"`
	MaxUploadBytes     int64    `json:"max_upload_bytes"`
	MinDurationSec     int      `json:"min_duration_sec"`
	MaxDurationSec     int      `json:"max_duration_sec"`
	DefaultDurationSec int      `json:"default_duration_sec"`
	Qualities          []string `json:"qualities"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Leave headroom above the cap so the over-limit rejection comes from
	// ingest with a classified fault instead of a blunt body error.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes()*2+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" required")
		return
	}
	defer file.Close()

	req, err := parseExtractRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.intake.Admit(header.Filename, header.Size, file)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.recordJob(r.Context(), receipt.Identifier, receipt.Filename)

	s.setJobStatus(r.Context(), receipt.Identifier, jobs.StatusExtracting, "", "")
	result, err := s.extractor.Extract(r.Context(), receipt.Identifier, req)
	if err != nil {
		status := jobs.StatusFailed
		if fault, ok := faults.As(err); ok && faults.HTTPStatus(fault.Kind) < http.StatusInternalServerError {
			status = jobs.StatusRejected
		}
		s.setJobStatus(r.Context(), receipt.Identifier, status, string(faults.KindOf(err)), err.Error())
		s.writeFault(w, err)
		return
	}

	if s.jobs != nil {
		if err := s.jobs.SetResult(r.Context(), receipt.Identifier, result.ChorusStartSec); err != nil {
			s.logger.Warn("failed to record result", logging.Error(err))
		}
	}
	s.writeJSON(w, http.StatusOK, extractResponse{
		Identifier:     result.Identifier,
		ChorusStartSec: result.ChorusStartSec,
		Metrics:        result.Metrics,
		DownloadURL:    "/api/download/" + result.Identifier,
	})
}

func parseExtractRequest(r *http.Request) (extraction.Request, error) {
	req := extraction.Request{}
	if value := strings.TrimSpace(r.FormValue("duration")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return req, errors.New("duration must be an integer number of seconds")
		}
		req.TargetDurationSec = parsed
	}
	quality := strings.ToLower(strings.TrimSpace(r.FormValue("quality")))
	switch quality {
	case "", "low", "medium", "high":
		req.Quality = quality
	default:
		return req, errors.New(`quality must be one of "low", "medium", or "high"`)
	}
	req.LongMode = parseBool(r.FormValue("long_mode"))
	req.AllowDownmix = parseBool(r.FormValue("allow_downmix"))
	req.AllowResample = parseBool(r.FormValue("allow_resample"))
	return req, nil
}

func parseBool(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identifier, ok := pathIdentifier(r.URL.Path, "/api/download/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	path, err := s.store.Resolve(storage.ScopeOutput, identifier)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeFault(w, faults.FileNotFound(identifier))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="`+identifier+`.wav"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identifier, ok := pathIdentifier(r.URL.Path, "/api/cleanup/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	removed, err := s.store.Cleanup(identifier)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.setJobStatus(r.Context(), identifier, jobs.StatusCleaned, "", "")
	s.writeJSON(w, http.StatusOK, cleanupResponse{Identifier: identifier, Removed: removed})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.jobs == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": []any{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	listed, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": listed})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identifier, ok := pathIdentifier(r.URL.Path, "/api/jobs/")
	if !ok || s.jobs == nil {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	job, err := s.jobs.Get(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload := statusResponse{
		Running:      true,
		PID:          os.Getpid(),
		LockFilePath: s.lockPath,
		Dependencies: deps.CheckBinaries(deps.Requirements(s.cfg)),
		Directories:  deps.CheckDirectories(s.cfg),
	}
	if s.jobs != nil {
		if counts, err := s.jobs.CountByStatus(r.Context()); err == nil {
			payload.Jobs = counts
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, formatsResponse{
		AllowedExtensions:  s.intake.AllowedExtensions(),
		MaxUploadBytes:     s.cfg.MaxUploadBytes(),
		MinDurationSec:     s.cfg.Extraction.MinDurationSec,
		MaxDurationSec:     s.cfg.Extraction.MaxDurationSec,
		DefaultDurationSec: s.cfg.Extraction.DefaultDurationSec,
		Qualities:          []string{"low", "medium", "high"},
	})
}

func pathIdentifier(path, prefix string) (string, bool) {
	identifier := strings.TrimPrefix(path, prefix)
	if identifier == "" || strings.Contains(identifier, "/") {
		return "", false
	}
	return identifier, true
}

func (s *Server) recordJob(ctx context.Context, identifier, filename string) {
	if s.jobs == nil {
		return
	}
	if _, err := s.jobs.Create(ctx, identifier, filename); err != nil {
		s.logger.Warn("failed to record job", logging.Error(err))
	}
}

func (s *Server) setJobStatus(ctx context.Context, identifier string, status jobs.Status, faultKind, detail string) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.SetStatus(ctx, identifier, status, faultKind, detail); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		s.logger.Warn("failed to update job status", logging.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeFault maps a classified fault to its transport status and serializes
// the full payload, kind and context included.
func (s *Server) writeFault(w http.ResponseWriter, err error) {
	if fault, ok := faults.As(err); ok {
		s.writeJSON(w, faults.HTTPStatus(fault.Kind), fault)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}
