package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for transport mapping.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindValidation          ErrorKind = "validation"
	KindAuthorization       ErrorKind = "authorization"
	KindCyclicNetwork       ErrorKind = "cyclic_network"
	KindSyncDisabled        ErrorKind = "sync_disabled"
	KindIntegrationNotFound ErrorKind = "integration_not_found"
	KindJiraTransport       ErrorKind = "jira_transport"
	KindTransient           ErrorKind = "transient"
	KindConflict            ErrorKind = "conflict"
)

// Error is the single error type crossing package boundaries. The HTTP
// layer maps Kind to a status code; Code is a stable machine-readable
// identifier for clients.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from an error chain. Unclassified errors
// report as Transient so the transport layer fails safe with a 5xx.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    entity + "_not_found",
		Message: fmt.Sprintf("%s %v not found", entity, id),
	}
}

func Validation(code, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// CyclicNetwork reports a dependency cycle. The offending activity codes
// are embedded in the message so the 400 body can name them.
func CyclicNetwork(remaining []string) *Error {
	return &Error{
		Kind:    KindCyclicNetwork,
		Code:    "cyclic_network",
		Message: fmt.Sprintf("dependency network contains a cycle involving %v", remaining),
	}
}

func JiraTransport(op string, err error) *Error {
	return &Error{
		Kind:    KindJiraTransport,
		Code:    "jira_transport",
		Message: "Jira request failed during " + op,
		Err:     err,
	}
}

func Transient(op string, err error) *Error {
	return &Error{
		Kind:    KindTransient,
		Code:    "transient",
		Message: op + " timed out or failed transiently",
		Err:     err,
	}
}
