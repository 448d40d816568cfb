package core

// error_messages.go maps technical errors to operator-facing messages with a
// code that can be quoted to support.
//
// # File errors (FILE001-FILE006)
//
//	FILE001 - Unreadable file (no candidate encoding matched)
//	FILE002 - Delimiter undetectable
//	FILE003 - File too large
//	FILE004 - Row limit exceeded
//	FILE005 - Empty file
//	FILE006 - File read timed out
//
// # Mapping errors (MAP001-MAP003)
//
//	MAP001 - Required field not mapped
//	MAP002 - Override names an unknown field
//	MAP003 - Override names a column absent from the file
//
// # Validation errors (VAL001-VAL006)
//
//	VAL001 - Invalid date
//	VAL002 - Invalid or overflowing number
//	VAL003 - Required value empty
//	VAL004 - Value not in the allowed list
//	VAL005 - Invalid tax code
//	VAL006 - Other validation failure
//
// # Job errors (JOB001-JOB005)
//
//	JOB001 - Another import of the same type is running
//	JOB002 - Job not found
//	JOB003 - Invalid job state change
//	JOB004 - Unknown import type
//	JOB005 - Import cancelled
//
// # Database errors (DB001-DB004)
//
//	DB001 - Duplicate key
//	DB002 - Foreign key violation
//	DB003 - Storage unavailable
//	DB004 - Timeout
//
// Typed errors are matched first via errors.As / errors.Is. Anything else is
// matched by case-insensitive substring against errorPatterns; the first
// pattern wins. ERR000 is the fallback, check the logs for the original error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides operator-facing error information with guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Code for support reference
}

var (
	msgUnreadable = UserMessage{"The file could not be read as text", "Save the file as CSV (UTF-8) and upload it again", "FILE001"}
	msgDelimiter  = UserMessage{"Columns could not be detected", "Use comma or semicolon as the column separator", "FILE002"}
	msgTooLarge   = UserMessage{"File exceeds the maximum size", "Split the file into smaller files", "FILE003"}
	msgRowLimit   = UserMessage{"File has too many rows", "Split the file into smaller files", "FILE004"}
	msgEmpty      = UserMessage{"The file is empty", "Upload a file with a header row and data rows", "FILE005"}
	msgReadTime   = UserMessage{"Reading the file took too long", "Try again or upload a smaller file", "FILE006"}

	msgMissingField  = UserMessage{"A required column is not mapped", "Map the listed fields to a column of the file", "MAP001"}
	msgUnknownField  = UserMessage{"The column mapping names an unknown field", "Choose one of the fields offered for this import type", "MAP002"}
	msgUnknownColumn = UserMessage{"The column mapping names a column not in the file", "Check the column headers of the file", "MAP003"}

	msgValidation = UserMessage{"Some values are not valid", "Download the failed rows, correct them and import again", "VAL006"}

	msgBusy          = UserMessage{"Another import of this type is running", "Wait for it to finish and try again", "JOB001"}
	msgJobNotFound   = UserMessage{"Import job not found", "Check the job identifier", "JOB002"}
	msgTransition    = UserMessage{"The import job cannot change to that state", "Start a new import", "JOB003"}
	msgUnknownType   = UserMessage{"Unknown import type", "Choose one of: adult_member, junior_member, vehicle, warehouse_item", "JOB004"}
	msgCancelled     = UserMessage{"The import was cancelled", "Rows already imported are kept; import the remaining rows again", "JOB005"}
	msgStorageFailed = UserMessage{"The database is not reachable", "Rows already imported are kept; try the remaining rows later", "DB003"}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Enable update on duplicate or remove the row", "DB001"}},
	{"violates unique", UserMessage{"A value that must be unique already exists", "Check the file for duplicate entries", "DB001"}},
	{"violates foreign key", UserMessage{"A referenced record does not exist", "Import the referenced records first", "DB002"}},
	{"connection refused", msgStorageFailed},
	{"connection reset", msgStorageFailed},
	{"context deadline exceeded", UserMessage{"The operation timed out", "Try again later", "DB004"}},
	{"timeout", UserMessage{"The operation timed out", "Try again later", "DB004"}},

	{"invalid date", UserMessage{"Invalid date", "Use DD/MM/YYYY or YYYY-MM-DD", "VAL001"}},
	{"numeric overflow", UserMessage{"Number out of range", "Check the size of the number", "VAL002"}},
	{"invalid number", UserMessage{"Invalid number", "Use digits with comma or dot as decimal separator", "VAL002"}},
	{"required field is empty", UserMessage{"A required value is empty", "Fill in the required values", "VAL003"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for the field", "VAL004"}},
	{"tax code", UserMessage{"Invalid tax code", "Check the 16-character codice fiscale", "VAL005"}},

	{"invalid csv", UserMessage{"The row is not valid CSV", "Check quotes in the row", "FILE001"}},
	{"empty file", msgEmpty},
	{"file too large", msgTooLarge},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		unreadable *UnreadableFileError
		limit      *RowLimitExceededError
		missing    *MissingRequiredFieldError
		field      *UnknownFieldError
		column     *UnknownColumnError
		typ        *UnknownImportTypeError
		transition *InvalidTransitionError
		transform  *TransformError
	)

	switch {
	case errors.As(err, &unreadable):
		if strings.Contains(unreadable.Reason, "delimiter") {
			return msgDelimiter, true
		}
		if strings.Contains(unreadable.Reason, "empty") {
			return msgEmpty, true
		}
		return msgUnreadable, true
	case errors.As(err, &limit):
		return msgRowLimit, true
	case errors.As(err, &missing):
		msg := msgMissingField
		msg.Message = fmt.Sprintf("%s: %s", msg.Message, strings.Join(missing.Fields, ", "))
		return msg, true
	case errors.As(err, &field):
		return msgUnknownField, true
	case errors.As(err, &column):
		return msgUnknownColumn, true
	case errors.As(err, &typ):
		return msgUnknownType, true
	case errors.As(err, &transition):
		return msgTransition, true
	case errors.Is(err, ErrFileTooLarge):
		return msgTooLarge, true
	case errors.Is(err, ErrReadTimeout):
		return msgReadTime, true
	case errors.Is(err, ErrImportBusy):
		return msgBusy, true
	case errors.Is(err, ErrJobNotFound):
		return msgJobNotFound, true
	case errors.Is(err, ErrCancelled):
		return msgCancelled, true
	case errors.Is(err, ErrStorageUnavailable):
		return msgStorageFailed, true
	case errors.As(err, &transform):
		// First field decides the category when it matches a pattern.
		if len(transform.Fields) > 0 {
			first := strings.ToLower(transform.Fields[0].Message)
			for _, ep := range errorPatterns {
				if strings.HasPrefix(ep.msg.Code, "VAL") && strings.Contains(first, ep.pattern) {
					return ep.msg, true
				}
			}
		}
		return msgValidation, true
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
