// Package fault defines the error taxonomy shared by the store, the forge
// adapters, the reconciliation engine, and the HTTP surface. Every error that
// crosses a component boundary carries a Kind and a machine-readable code so
// callers never see an unclassified failure.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	// NotFound: repository/issue/user absent upstream.
	NotFound Kind = iota + 1
	// Forbidden: the forge denied the operation.
	Forbidden
	// Conflict: duplicate resource (repository exists, name collision).
	Conflict
	// InvalidInput: malformed URL, handle, or missing mandatory fields.
	InvalidInput
	// Unreachable: peer Interface or forge network failure.
	Unreachable
	// UnknownUpstream: unexpected forge response.
	UnknownUpstream
	// Fatal: retry budget exhausted.
	Fatal
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case InvalidInput:
		return "invalid input"
	case Unreachable:
		return "unreachable"
	case UnknownUpstream:
		return "unknown upstream error"
	case Fatal:
		return "fatal"
	}
	return "unclassified"
}

// HTTPStatus maps the kind to the status code rendered by the HTTP surface.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case InvalidInput:
		return http.StatusBadRequest
	case Unreachable:
		return http.StatusServiceUnavailable
	case UnknownUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error is a classified failure with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Stable error codes, mirrored in peer-facing JSON bodies.
const (
	CodeRepositoryNotFound   = "F_D_REPOSITORY_NOT_FOUND"
	CodeForbiddenOperation   = "F_D_FORGE_FORBIDDEN_OPERATION"
	CodeRepositoryExists     = "F_D_REPOSITORY_EXISTS"
	CodeInvalidIssueURL      = "F_D_INVALID_ISSUE_URL"
	CodeForgeUnknownError    = "F_D_FORGE_UNKNOWN_ERROR"
	CodeInvalidPayload       = "F_D_INVALID_PAYLOAD"
	CodeUnsupportedForge     = "F_D_UNSUPPORTED_FORGE"
	CodeInterfaceUnreachable = "F_D_INTERFACE_UNREACHABLE"
	CodeRetryBudgetExhausted = "F_D_RETRY_BUDGET_EXHAUSTED"
)

// RepositoryNotFound reports a repository absent upstream.
func RepositoryNotFound(name string) *Error {
	return New(NotFound, CodeRepositoryNotFound, fmt.Sprintf("repository %s not found", name))
}

// ForbiddenOperation reports a forge-denied operation.
func ForbiddenOperation(op string) *Error {
	return New(Forbidden, CodeForbiddenOperation, fmt.Sprintf("forge denied %s", op))
}

// RepositoryExists reports a duplicate repository.
func RepositoryExists(name string) *Error {
	return New(Conflict, CodeRepositoryExists, fmt.Sprintf("repository %s already exists", name))
}

// InvalidIssueURL reports a malformed issue URL.
func InvalidIssueURL(url string) *Error {
	return New(InvalidInput, CodeInvalidIssueURL, fmt.Sprintf("invalid issue url %q", url))
}

// ForgeUnknown wraps an unexpected forge response.
func ForgeUnknown(status int, err error) *Error {
	return Wrap(UnknownUpstream, CodeForgeUnknownError, fmt.Sprintf("unexpected forge status %d", status), err)
}

// UnsupportedForge reports a URL whose host is not the configured forge.
func UnsupportedForge(url string) *Error {
	return New(InvalidInput, CodeUnsupportedForge, fmt.Sprintf("%q does not belong to the configured forge", url))
}

// InvalidPayload reports missing or malformed request fields.
func InvalidPayload(detail string) *Error {
	return New(InvalidInput, CodeInvalidPayload, detail)
}

// KindOf extracts the Kind of err, or 0 when err carries no classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsNotFound reports whether err is classified NotFound.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsConflict reports whether err is classified Conflict.
func IsConflict(err error) bool { return KindOf(err) == Conflict }
