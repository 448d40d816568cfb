package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrStorageUnavailable marks storage failures that are not scoped to a
	// row (lost connection, out of disk). They abort the running job.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrImportBusy is returned when another job of the same import type
	// holds the lock past the wait timeout.
	ErrImportBusy = errors.New("another import of this type is running")

	ErrJobNotFound  = errors.New("import job not found")
	ErrJobTerminal  = errors.New("import job is terminal")
	ErrFileTooLarge = errors.New("file too large")
	ErrReadTimeout  = errors.New("file read timeout")
	ErrCancelled    = errors.New("import cancelled")
)

// UnreadableFileError means the bytes match no candidate encoding or no
// delimiter could be detected. It is file-level fatal.
type UnreadableFileError struct {
	Reason string
}

func (e *UnreadableFileError) Error() string {
	return "unreadable file: " + e.Reason
}

// RowLimitExceededError is returned when a file holds more data rows than allowed.
type RowLimitExceededError struct {
	Limit int
}

func (e *RowLimitExceededError) Error() string {
	return fmt.Sprintf("row limit exceeded: file has more than %d data rows", e.Limit)
}

// MissingRequiredFieldError names required fields left unmapped.
type MissingRequiredFieldError struct {
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return "missing required field mapping: " + strings.Join(e.Fields, ", ")
}

// UnknownFieldError is returned for an override naming a field the import type lacks.
type UnknownFieldError struct {
	ImportType ImportType
	Field      string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q for import type %s", e.Field, e.ImportType)
}

// UnknownColumnError is returned for an override naming a header absent from the file.
type UnknownColumnError struct {
	Header string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("column not found in file: %q", e.Header)
}

// UnknownImportTypeError is returned when no definition is registered for a type.
type UnknownImportTypeError struct {
	ImportType ImportType
}

func (e *UnknownImportTypeError) Error() string {
	return fmt.Sprintf("unknown import type: %q", string(e.ImportType))
}

// InvalidTransitionError is returned for a state move the job lifecycle forbids.
type InvalidTransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s (job %s)", e.From, e.To, e.JobID)
}

// RowParseError is a malformed record. It is reported on the row's result
// and never aborts the file.
type RowParseError struct {
	Line int
	Err  error
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("invalid csv at line %d: %v", e.Line, e.Err)
}

func (e *RowParseError) Unwrap() error { return e.Err }

// FieldError is one cell-level validation failure.
type FieldError struct {
	Column  string `json:"column"` // Source header
	Field   string `json:"field"`  // Canonical field
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: %s", e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransformError collects every field failure of one row.
type TransformError struct {
	RowNumber int
	Fields    []FieldError
}

func (e *TransformError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("row %d: %s", e.RowNumber, strings.Join(parts, "; "))
}

// Columns returns the offending source columns in report order.
func (e *TransformError) Columns() []string {
	out := make([]string, 0, len(e.Fields))
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		name := f.Column
		if name == "" {
			name = f.Field
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// IsFatal reports whether err must abort the whole job.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsFileLevel reports whether err is a file-level problem found before any row runs.
func IsFileLevel(err error) bool {
	var (
		unreadable *UnreadableFileError
		limit      *RowLimitExceededError
		missing    *MissingRequiredFieldError
		field      *UnknownFieldError
		column     *UnknownColumnError
	)
	return errors.As(err, &unreadable) ||
		errors.As(err, &limit) ||
		errors.As(err, &missing) ||
		errors.As(err, &field) ||
		errors.As(err, &column) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrReadTimeout)
}
