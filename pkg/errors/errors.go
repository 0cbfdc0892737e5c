package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the symbolic error code exposed on the API surface.
type Kind string

const (
	KindUnauthenticated       Kind = "UNAUTHENTICATED"
	KindForbiddenPatient      Kind = "FORBIDDEN_PATIENT_ACCESS"
	KindDatabaseNotAvailable  Kind = "DATABASE_NOT_AVAILABLE"
	KindNoTextExtracted       Kind = "NO_TEXT_EXTRACTED"
	KindExtractionJSONMissing Kind = "EXTRACTION_JSON_NOT_FOUND"
	KindExtractionInvalid     Kind = "EXTRACTION_SCHEMA_INVALID"
	KindInviteNotFound        Kind = "INVITE_NOT_FOUND"
	KindInviteRevoked         Kind = "INVITE_REVOKED"
	KindInviteAccepted        Kind = "INVITE_ALREADY_ACCEPTED"
	KindInviteExpired         Kind = "INVITE_EXPIRED"
	KindInviteSelf            Kind = "INVITE_SELF_NOT_ALLOWED"
	KindInviteForbidden       Kind = "INVITE_FORBIDDEN"
	KindModelNoResponse       Kind = "MODEL_NO_RESPONSE"
	KindMemoryNotFound        Kind = "MEMORY_NOT_FOUND"
	KindSuggestionNotFound    Kind = "SUGGESTION_NOT_FOUND"
	KindDocumentNotFound      Kind = "DOCUMENT_NOT_FOUND"
	KindThreadNotFound        Kind = "THREAD_NOT_FOUND"
	KindBadRequest            Kind = "BAD_REQUEST"
	KindInternal              Kind = "INTERNAL"
)

// AppError represents an application error with a stable symbolic kind.
type AppError struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError whose message defaults to the kind itself.
func New(kind Kind) *AppError {
	return &AppError{Kind: kind, Message: string(kind)}
}

func Newf(kind Kind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the symbolic kind from err, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the HTTP status used at the boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbiddenPatient:
		return http.StatusForbidden
	case KindDatabaseNotAvailable:
		return http.StatusServiceUnavailable
	case KindNoTextExtracted, KindExtractionJSONMissing, KindExtractionInvalid:
		return http.StatusUnprocessableEntity
	case KindInviteNotFound, KindInviteRevoked, KindInviteAccepted,
		KindInviteExpired, KindInviteSelf, KindInviteForbidden:
		return http.StatusBadRequest
	case KindModelNoResponse:
		return http.StatusBadGateway
	case KindMemoryNotFound, KindSuggestionNotFound, KindDocumentNotFound, KindThreadNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
