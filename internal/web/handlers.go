package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/web/templates"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// multipartMemory is how much of an upload form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// healthTimeout bounds each dependency check.
const healthTimeout = 2 * time.Second

// dashboardJobs is how many recent jobs the dashboard lists.
const dashboardJobs = 20

// handleUpload saves a spreadsheet and stages it as a new job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, r, errFileTooBig, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("invalid upload form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	allowDuplicate, _ := strconv.ParseBool(r.FormValue("allowDuplicate"))

	res, err := s.service.AcceptUpload(r.Context(), core.UploadRequest{
		FileName:       header.Filename,
		Body:           file,
		AllowDuplicate: allowDuplicate,
	})
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, resultStatus(res.Status, res.Err), res)
}

type checkDuplicateRequest struct {
	Hash string `json:"hash"`
}

type checkDuplicateResponse struct {
	IsDuplicate bool       `json:"isDuplicate"`
	JobID       *uuid.UUID `json:"jobId,omitempty"`
	Status      string     `json:"status,omitempty"`
	UploadedAt  *time.Time `json:"uploadedAt,omitempty"`
}

// handleCheckDuplicate reports whether a file with the given sha256 was
// already uploaded.
func (s *Server) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req checkDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	hash := strings.TrimSpace(req.Hash)
	if hash == "" {
		respondError(w, r, errors.New("hash is required"), http.StatusBadRequest)
		return
	}

	job, found, err := s.service.CheckDuplicateFile(r.Context(), hash)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := checkDuplicateResponse{IsDuplicate: found}
	if found {
		resp.JobID = &job.ID
		resp.Status = string(job.Status)
		resp.UploadedAt = &job.UploadedAt
	}
	writeJSON(w, resp)
}

type startProcessingRequest struct {
	JobID string `json:"jobId"`
}

// handleStartProcessing commits the job named in the request body.
func (s *Server) handleStartProcessing(w http.ResponseWriter, r *http.Request) {
	var req startProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	s.processJob(w, r, req.JobID)
}

// handleProcessJob commits the job named in the path.
func (s *Server) handleProcessJob(w http.ResponseWriter, r *http.Request) {
	s.processJob(w, r, chi.URLParam(r, "jobID"))
}

func (s *Server) processJob(w http.ResponseWriter, r *http.Request, rawID string) {
	jobID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		respondError(w, r, fmt.Errorf("invalid job id %q", rawID), http.StatusBadRequest)
		return
	}

	// A client that disconnects mid-commit must not roll the commit back;
	// the service applies its own timeout.
	res, err := s.service.ProcessJob(context.WithoutCancel(r.Context()), jobID)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if res.Retryable {
		w.Header().Set("Retry-After", "30")
		writeJSONStatus(w, http.StatusServiceUnavailable, res)
		return
	}
	writeJSONStatus(w, resultStatus(res.Status, res.Err), res)
}

// handleStatus returns the latest status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Status(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, snap)
}

// handleListJobs returns every job, newest first. ?status= filters by state.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.ListJobs(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if string(job.Status) == status {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}
	if jobs == nil {
		jobs = []core.Job{}
	}
	writeJSON(w, jobs)
}

// handleGetJob returns one job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "jobID")
	jobID, err := uuid.Parse(rawID)
	if err != nil {
		respondError(w, r, fmt.Errorf("invalid job id %q", rawID), http.StatusBadRequest)
		return
	}

	job, err := s.service.GetJob(r.Context(), jobID)
	if err != nil {
		if ie, ok := core.AsImportError(err); ok {
			respondError(w, r, err, statusForKind(ie.Kind))
			return
		}
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, job)
}

// handleJobAudit returns the event trail of one job, oldest first.
func (s *Server) handleJobAudit(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "jobID")
	jobID, err := uuid.Parse(rawID)
	if err != nil {
		respondError(w, r, fmt.Errorf("invalid job id %q", rawID), http.StatusBadRequest)
		return
	}

	entries, err := s.service.AuditLog(r.Context(), jobID)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, entries)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every dependency check. Any failure makes it 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.health))}
	code := http.StatusOK

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := s.health[name](ctx)
		cancel()

		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSONStatus(w, code, resp)
}

// handleDashboard renders the status page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Status(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	jobs, err := s.service.ListJobs(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if len(jobs) > dashboardJobs {
		jobs = jobs[:dashboardJobs]
	}

	data := templates.DashboardData{
		Status:  snap,
		Jobs:    jobs,
		Limiter: s.service.LimiterStatus(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(r.Context(), w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}
