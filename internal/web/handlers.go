package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/easyvol/csvimport/internal/core"
	"github.com/easyvol/csvimport/internal/logging"
)

const (
	// formMemory is the in-memory part of multipart parsing; larger files spill to disk.
	formMemory = 32 << 20

	// formOverhead is allowed on top of the file size limit for the other form fields.
	formOverhead = 1 << 20

	defaultPageSize = 50
	maxPageSize     = 1000
)

// codeBadRequest marks malformed requests, which never reach the service.
const codeBadRequest = "REQ001"

func badRequest(w http.ResponseWriter, r *http.Request, message, action string) {
	logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method).
		Warn("bad request", "error", message)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Message: message,
		Action:  action,
		Code:    codeBadRequest,
	})
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = parseIntParam(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, parseIntParam(r, "offset", 0)
}

// parseBool accepts the spellings HTML forms and scripts send.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes", "si", "sì":
		return true
	}
	return false
}

// upload is the parsed multipart body of preview and run requests.
type upload struct {
	file      multipart.File
	fileName  string
	overrides map[string]string
}

// readUpload parses the form. On failure it writes the response and returns nil.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) *upload {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize), http.StatusRequestEntityTooLarge)
			return nil
		}
		badRequest(w, r, "invalid upload form", "Send the file as multipart/form-data in the field \"file\"")
		return nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "no file provided", "Attach the CSV file in the field \"file\"")
		return nil
	}

	var overrides map[string]string
	if raw := r.FormValue("overrides"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			file.Close()
			badRequest(w, r, "invalid overrides format", `Send overrides as a JSON object: {"column header": "field"}`)
			return nil
		}
	}

	return &upload{file: file, fileName: header.Filename, overrides: overrides}
}

func importTypeParam(r *http.Request) core.ImportType {
	return core.ImportType(chi.URLParam(r, "importType"))
}

// ---------------------------------------------------------------------------
// Import types
// ---------------------------------------------------------------------------

func (s *Server) handleImportTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ImportTypes())
}

// ---------------------------------------------------------------------------
// Preview and run
// ---------------------------------------------------------------------------

// previewResponse adds the run readiness flag to the preview.
type previewResponse struct {
	*core.PreviewResult
	CanRun bool `json:"canRun"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	importType := importTypeParam(r)
	if _, err := core.Lookup(importType); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	up := s.readUpload(w, r)
	if up == nil {
		return
	}
	defer up.file.Close()

	result, err := s.service.Preview(r.Context(), core.PreviewRequest{
		FileName:   up.fileName,
		Data:       up.file,
		ImportType: importType,
		Overrides:  up.overrides,
	})
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{PreviewResult: result, CanRun: result.CanRun()})
}

// runResponse is returned once the job reaches a terminal status.
type runResponse struct {
	Job     *core.ImportJob `json:"job"`
	Summary core.Summary    `json:"summary"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	importType := importTypeParam(r)
	if _, err := core.Lookup(importType); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	up := s.readUpload(w, r)
	if up == nil {
		return
	}
	defer up.file.Close()

	job, err := s.service.RunImport(r.Context(), core.RunRequest{
		FileName:          up.fileName,
		Data:              up.file,
		ImportType:        importType,
		Overrides:         up.overrides,
		UpdateOnDuplicate: parseBool(r.FormValue("update_on_duplicate")),
		CreatedBy:         r.FormValue("created_by"),
	})
	if err != nil {
		jobID := ""
		if job != nil {
			jobID = job.ID
		}
		s.respondJobError(w, r, err, statusFor(err), jobID)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Job: job, Summary: job.Summary()})
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.JobFilter{
		ImportType: core.ImportType(q.Get("type")),
		Status:     core.JobStatus(q.Get("status")),
	}
	if filter.ImportType != "" && !filter.ImportType.Valid() {
		badRequest(w, r, "unknown import type "+strconv.Quote(string(filter.ImportType)), "Use one of the types listed by /api/import-types")
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(w, r, "unknown job status "+strconv.Quote(string(filter.Status)), "Use pending, previewed, running, completed, partial or failed")
		return
	}
	filter.Limit, filter.Offset = pageParams(r)

	jobs, err := s.service.ListJobs(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if jobs == nil {
		jobs = []*core.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// jobStatusResponse adds live progress to a job.
type jobStatusResponse struct {
	*core.ImportJob
	Percent int `json:"percent"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{ImportJob: job, Percent: job.Percent()})
}

func (s *Server) handleRowResults(w http.ResponseWriter, r *http.Request) {
	filter := core.RowResultFilter{Outcome: core.Outcome(r.URL.Query().Get("outcome"))}
	switch filter.Outcome {
	case "", core.OutcomeImported, core.OutcomeSkipped, core.OutcomeFailed:
	default:
		badRequest(w, r, "unknown outcome "+strconv.Quote(string(filter.Outcome)), "Use imported, skipped or failed")
		return
	}
	filter.Limit, filter.Offset = pageParams(r)

	rows, err := s.service.RowResults(r.Context(), chi.URLParam(r, "jobID"), filter)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if rows == nil {
		rows = []core.ImportRowResult{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleFailedRows(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var buf bytes.Buffer
	if err := s.service.ExportFailedRows(r.Context(), jobID, &buf); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="righe_errate_%s.csv"`, jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.Cancel(r.Context(), jobID); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"})
}
