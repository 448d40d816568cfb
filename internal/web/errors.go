package web

// errors.go provides unified error responses for the API.
//
// Every error is logged with its technical detail and the request id, then
// returned to the client as the user-facing message from core.MapError.

import (
	"errors"
	"net/http"

	"github.com/easyvol/csvimport/internal/core"
	"github.com/easyvol/csvimport/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// JobID is set when the failure belongs to a recorded job.
	JobID string `json:"job_id,omitempty"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	s.respondJobError(w, r, err, statusCode, "")
}

func (s *Server) respondJobError(w http.ResponseWriter, r *http.Request, err error, statusCode int, jobID string) {
	msg := core.MapError(err)

	logger := logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method)
	if jobID != "" {
		logger = logger.With("job_id", jobID)
	}
	args := []any{
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		JobID:   jobID,
	})
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var (
		unknownType *core.UnknownImportTypeError
		transition  *core.InvalidTransitionError
	)
	switch {
	case errors.As(err, &unknownType), errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrReadTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, core.ErrImportBusy), errors.Is(err, core.ErrJobTerminal),
		errors.Is(err, core.ErrCancelled), errors.As(err, &transition):
		return http.StatusConflict
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case core.IsFileLevel(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
