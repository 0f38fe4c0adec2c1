// Package errors carries the service error taxonomy. Retryable marks errors
// the job layer may hand back to the broker for redelivery; everything else
// is terminal for the attempt.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a standardized internal error code.
type Code string

const (
	CodeTemplateNotFound     Code = "TEMPLATE_NOT_FOUND"
	CodeNotificationNotFound Code = "NOTIFICATION_NOT_FOUND"
	CodeMissingVariables     Code = "MISSING_VARIABLES"
	CodeBaseTemplateMissing  Code = "BASE_TEMPLATE_MISSING"
	CodeInvalidContent       Code = "INVALID_CONTENT"
	CodeInvalidSlug          Code = "INVALID_SLUG"
	CodeInvalidRecurrence    Code = "INVALID_RECURRENCE"
	CodeUnrecognizedChannel  Code = "UNRECOGNIZED_CHANNEL"
	CodeConnectionFailure    Code = "CONNECTION_FAILURE"
	CodeRecipientRefused     Code = "RECIPIENT_REFUSED"
	CodeEnrichmentFailed     Code = "ENRICHMENT_FAILED"
	CodeTemplateInUse        Code = "TEMPLATE_IN_USE"
	CodeBaseTemplateExists   Code = "BASE_TEMPLATE_EXISTS"
	CodeBaseTemplateDelete   Code = "BASE_TEMPLATE_DELETE"
	CodeInvalidContacts      Code = "INVALID_CONTACTS"
	CodeInvalidSearchParams  Code = "INVALID_SEARCH_PARAMS"
)

// Error is a structured application error.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	cause     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf returns the taxonomy code of err, or "" for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the job layer should request broker redelivery
// for err. Untyped errors are treated as retryable: a failure we cannot
// classify is assumed transient and left to the bounded queue retry budget.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// NewTemplateNotFound reports a template absent by slug.
func NewTemplateNotFound(slug string) *Error {
	return &Error{
		Code:    CodeTemplateNotFound,
		Message: "template not found",
		Details: fmt.Sprintf("slug: %s", slug),
	}
}

// NewNotificationNotFound reports a notification absent by id.
func NewNotificationNotFound(id string) *Error {
	return &Error{
		Code:    CodeNotificationNotFound,
		Message: "notification not found",
		Details: fmt.Sprintf("id: %s", id),
	}
}

// NewMissingVariables reports required template variables left unbound. The
// names are sorted so the message is stable for callers and tests.
func NewMissingVariables(names []string) *Error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return &Error{
		Code:    CodeMissingVariables,
		Message: "required template variables not specified",
		Details: strings.Join(sorted, ", "),
	}
}

// MissingVariableNames recovers the unbound names from a MISSING_VARIABLES
// error, or nil for anything else.
func MissingVariableNames(err error) []string {
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeMissingVariables {
		return nil
	}
	return strings.Split(e.Details, ", ")
}

// NewBaseTemplateMissing reports that no base template is installed. Kept
// distinct from TEMPLATE_NOT_FOUND so operators can tell a missing template
// from a misconfigured system.
func NewBaseTemplateMissing() *Error {
	return &Error{
		Code:    CodeBaseTemplateMissing,
		Message: "base template is not installed",
	}
}

// NewInvalidContent reports base-template content without the content-block
// placeholder.
func NewInvalidContent(details string) *Error {
	return &Error{
		Code:    CodeInvalidContent,
		Message: "base template content must contain the content block placeholder",
		Details: details,
	}
}

// NewInvalidSlug reports a slug that does not match the required notation.
func NewInvalidSlug(slug string) *Error {
	return &Error{
		Code:    CodeInvalidSlug,
		Message: "incorrect slug",
		Details: slug,
	}
}

// NewInvalidRecurrence reports a recurrence rule rejected at creation.
func NewInvalidRecurrence(details string) *Error {
	return &Error{
		Code:    CodeInvalidRecurrence,
		Message: "invalid recurrence rule",
		Details: details,
	}
}

// NewUnrecognizedChannel reports a contacts key the system cannot deliver to.
// Isolated per channel; sibling channels proceed.
func NewUnrecognizedChannel(channel string) *Error {
	return &Error{
		Code:    CodeUnrecognizedChannel,
		Message: "no delivery handler for channel",
		Details: channel,
	}
}

// NewConnectionFailure reports a transport send that exhausted its retry
// budget. cause names the final underlying failure.
func NewConnectionFailure(cause error) *Error {
	return &Error{
		Code:      CodeConnectionFailure,
		Message:   "unable to deliver message over transport",
		Details:   cause.Error(),
		Retryable: true,
		cause:     cause,
	}
}

// NewRecipientRefused reports a server-side 5xx rejection of a recipient.
// Not retryable: the mailbox will not appear on redelivery.
func NewRecipientRefused(to string, cause error) *Error {
	return &Error{
		Code:    CodeRecipientRefused,
		Message: "recipient refused by server",
		Details: fmt.Sprintf("to: %s, error: %v", to, cause),
		cause:   cause,
	}
}

// NewEnrichmentFailed reports a failed recipient lookup against the
// user-info service.
func NewEnrichmentFailed(userID int64, cause error) *Error {
	return &Error{
		Code:      CodeEnrichmentFailed,
		Message:   "recipient enrichment lookup failed",
		Details:   fmt.Sprintf("user_id: %d, error: %v", userID, cause),
		Retryable: true,
		cause:     cause,
	}
}

// NewBaseTemplateExists reports an attempt to create a second base template.
func NewBaseTemplateExists() *Error {
	return &Error{
		Code:    CodeBaseTemplateExists,
		Message: "a base template is already installed",
	}
}

// NewBaseTemplateDelete reports an attempt to delete the base template.
func NewBaseTemplateDelete() *Error {
	return &Error{
		Code:    CodeBaseTemplateDelete,
		Message: "the base template cannot be deleted",
	}
}

// NewInvalidContacts reports a directive send without explicit recipients.
func NewInvalidContacts() *Error {
	return &Error{
		Code:    CodeInvalidContacts,
		Message: "contacts are required when user_id is specified",
	}
}

// NewInvalidSearchParams reports a search parameter of an unsupported type.
func NewInvalidSearchParams(name string) *Error {
	return &Error{
		Code:    CodeInvalidSearchParams,
		Message: "search parameter values must be primitive",
		Details: name,
	}
}

// NewTemplateInUse reports a delete rejected because notifications still
// reference the template.
func NewTemplateInUse(slug string) *Error {
	return &Error{
		Code:    CodeTemplateInUse,
		Message: "template is referenced by notifications, deletion rejected",
		Details: fmt.Sprintf("slug: %s", slug),
	}
}
