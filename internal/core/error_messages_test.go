package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "duplicate key maps correctly",
			err:         errors.New("ERROR: duplicate key value violates unique constraint"),
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
		{
			name:        "foreign key maps correctly",
			err:         errors.New("insert violates foreign key constraint"),
			wantCode:    "DB002",
			wantMessage: "A referenced record does not exist",
		},
		{
			name:        "storage unavailable maps correctly",
			err:         fmt.Errorf("insert members: %w", ErrStorageUnavailable),
			wantCode:    "DB003",
			wantMessage: "The database is not reachable",
		},
		{
			name:        "timeout maps correctly",
			err:         errors.New("context deadline exceeded"),
			wantCode:    "DB004",
			wantMessage: "The operation timed out",
		},
		{
			name:        "unreadable file",
			err:         &UnreadableFileError{Reason: "no candidate encoding matched"},
			wantCode:    "FILE001",
			wantMessage: "The file could not be read as text",
		},
		{
			name:        "undetectable delimiter",
			err:         &UnreadableFileError{Reason: "delimiter undetectable: header has no comma or semicolon"},
			wantCode:    "FILE002",
			wantMessage: "Columns could not be detected",
		},
		{
			name:        "file too large",
			err:         fmt.Errorf("upload: %w", ErrFileTooLarge),
			wantCode:    "FILE003",
			wantMessage: "File exceeds the maximum size",
		},
		{
			name:        "row limit",
			err:         &RowLimitExceededError{Limit: 10},
			wantCode:    "FILE004",
			wantMessage: "File has too many rows",
		},
		{
			name:        "empty file",
			err:         &UnreadableFileError{Reason: "empty file"},
			wantCode:    "FILE005",
			wantMessage: "The file is empty",
		},
		{
			name:        "read timeout",
			err:         ErrReadTimeout,
			wantCode:    "FILE006",
			wantMessage: "Reading the file took too long",
		},
		{
			name:        "missing required field lists fields",
			err:         &MissingRequiredFieldError{Fields: []string{"last_name", "first_name"}},
			wantCode:    "MAP001",
			wantMessage: "A required column is not mapped: last_name, first_name",
		},
		{
			name:        "unknown field",
			err:         &UnknownFieldError{ImportType: TypeVehicle, Field: "colour"},
			wantCode:    "MAP002",
			wantMessage: "The column mapping names an unknown field",
		},
		{
			name:        "unknown column",
			err:         &UnknownColumnError{Header: "Targa"},
			wantCode:    "MAP003",
			wantMessage: "The column mapping names a column not in the file",
		},
		{
			name: "transform error takes first field category",
			err: &TransformError{RowNumber: 3, Fields: []FieldError{
				{Column: "Nato il", Field: "birth_date", Message: `invalid date "31/02/1990" (use DD/MM/YYYY or YYYY-MM-DD)`},
				{Column: "Stato", Field: "status", Message: "invalid enum value"},
			}},
			wantCode:    "VAL001",
			wantMessage: "Invalid date",
		},
		{
			name: "transform error with tax code",
			err: &TransformError{RowNumber: 2, Fields: []FieldError{
				{Field: "tax_code", Message: "invalid tax code: checksum mismatch"},
			}},
			wantCode:    "VAL005",
			wantMessage: "Invalid tax code",
		},
		{
			name: "transform error without known pattern",
			err: &TransformError{RowNumber: 2, Fields: []FieldError{
				{Field: "email", Message: "looks odd"},
			}},
			wantCode:    "VAL006",
			wantMessage: "Some values are not valid",
		},
		{
			name:        "busy",
			err:         fmt.Errorf("lock vehicle: %w", ErrImportBusy),
			wantCode:    "JOB001",
			wantMessage: "Another import of this type is running",
		},
		{
			name:        "job not found",
			err:         ErrJobNotFound,
			wantCode:    "JOB002",
			wantMessage: "Import job not found",
		},
		{
			name:        "invalid transition",
			err:         &InvalidTransitionError{JobID: "j1", From: StatusCompleted, To: StatusRunning},
			wantCode:    "JOB003",
			wantMessage: "The import job cannot change to that state",
		},
		{
			name:        "unknown import type",
			err:         &UnknownImportTypeError{ImportType: "boats"},
			wantCode:    "JOB004",
			wantMessage: "Unknown import type",
		},
		{
			name:        "cancelled",
			err:         ErrCancelled,
			wantCode:    "JOB005",
			wantMessage: "The import was cancelled",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := fmt.Errorf("lock: %w", ErrImportBusy)
	result := FormatUserError(err)

	expected := "Another import of this type is running (Code: JOB001). Wait for it to finish and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  errors.New("duplicate key"),
			want: true,
		},
		{
			name: "typed error is user facing",
			err:  &RowLimitExceededError{Limit: 5},
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFileLevel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unreadable", err: &UnreadableFileError{Reason: "x"}, want: true},
		{name: "row limit", err: &RowLimitExceededError{Limit: 1}, want: true},
		{name: "missing field", err: &MissingRequiredFieldError{Fields: []string{"a"}}, want: true},
		{name: "wrapped too large", err: fmt.Errorf("read: %w", ErrFileTooLarge), want: true},
		{name: "read timeout", err: ErrReadTimeout, want: true},
		{name: "transform error", err: &TransformError{RowNumber: 2}, want: false},
		{name: "storage", err: ErrStorageUnavailable, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFileLevel(tt.err); got != tt.want {
				t.Errorf("IsFileLevel() = %v, want %v", got, tt.want)
			}
		})
	}

	if !IsFatal(fmt.Errorf("commit: %w", ErrStorageUnavailable)) {
		t.Error("IsFatal(wrapped ErrStorageUnavailable) = false, want true")
	}
	if IsFatal(errors.New("duplicate key")) {
		t.Error("IsFatal(duplicate key) = true, want false")
	}
}

func TestTransformErrorColumns(t *testing.T) {
	err := &TransformError{RowNumber: 4, Fields: []FieldError{
		{Column: "Email", Field: "email", Message: "a"},
		{Field: "tax_code", Message: "b"},
		{Column: "Email", Field: "email", Message: "c"},
	}}

	got := strings.Join(err.Columns(), ",")
	if got != "Email,tax_code" {
		t.Errorf("Columns() = %q, want %q", got, "Email,tax_code")
	}
	if !strings.HasPrefix(err.Error(), "row 4: Email: a; tax_code: b") {
		t.Errorf("Error() = %q", err.Error())
	}
}
