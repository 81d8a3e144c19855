package core

// error_messages.go maps technical errors to user-facing messages with a
// short code that users can quote to support.
//
// Codes by family:
//
//	IMP001-IMP004  import operation and run state
//	VAL001-VAL004  field and configuration validation
//	FILE001-FILE004 uploaded files
//	RUN001         capacity
//	DB001-DB004    database and cache backends
//	RATE001        rate limiting
//	ERR000         anything else; check the server log
//
// Sentinel errors are matched first with errors.Is, then the error text is
// matched case-insensitively against errorPatterns. The first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrUnknownOperation, UserMessage{"Unknown import operation", "Check the page and operation names", "IMP001"}},
	{ErrRunNotStarted, UserMessage{"No import is running for this operation", "Start the import before sending batches", "IMP002"}},
	{ErrRunFinished, UserMessage{"This import has already finished", "Start a new import to process the file again", "IMP003"}},
	{ErrBeforeImport, UserMessage{"The import was rejected before it started", "Review the reported reason and try again", "IMP004"}},
	{ErrNoProcessor, UserMessage{"This operation cannot import rows", "Contact the site administrator", "VAL004"}},
	{ErrConfig, UserMessage{"This import is misconfigured", "Contact the site administrator", "VAL003"}},
	{ErrFileNotFound, UserMessage{"Uploaded file not found", "Upload the file again", "FILE001"}},
	{ErrTooManyBatches, UserMessage{"The server is busy with other imports", "Please wait a few seconds and retry", "RUN001"}},
	{ErrInvalidOffset, UserMessage{"Invalid batch position", "Restart the import", "VAL002"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched against the lowercased error text, in order.
var errorPatterns = []errorPattern{
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller files", "FILE002"}},
	{"request body too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller files", "FILE002"}},
	{"wrong number of fields", UserMessage{"File is not a valid CSV", "Ensure every row has the same number of columns", "FILE003"}},
	{"bare \" in non-quoted-field", UserMessage{"File is not a valid CSV", "Check for unbalanced quotes in the file", "FILE003"}},
	{"empty file", UserMessage{"File contains no data", "Upload a file with a header row and at least one data row", "FILE004"}},

	{"field map", UserMessage{"Column mapping is invalid", "Map each field to a column from the file", "VAL001"}},

	{"connection refused", UserMessage{"Unable to reach the data store", "Please try again in a few moments", "DB001"}},
	{"connection reset", UserMessage{"Connection to the data store was interrupted", "Please try again", "DB001"}},
	{"deadline exceeded", UserMessage{"Operation timed out", "Try a smaller batch or try again later", "DB002"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller batch or try again later", "DB002"}},
	{"deadlock", UserMessage{"The data store was busy with conflicting operations", "Please try again", "DB003"}},
	{"redis", UserMessage{"Progress tracking is unavailable", "Please try again in a few moments", "DB004"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. A nil error maps to
// the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
