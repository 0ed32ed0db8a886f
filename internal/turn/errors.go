package turn

import (
	"errors"
	"net/http"
)

// Kind classifies a failed turn. Every failure surfaced to the widget
// carries exactly one kind so the handler can pick an HTTP status and the
// client can show a localized message.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindValidation     Kind = "validation"
	KindUpload         Kind = "upload"
	KindUpstream       Kind = "upstream"
	KindEmptyReply     Kind = "empty_reply"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal"
)

// Error is a classified turn failure. Message is user-readable; Err keeps
// the underlying cause for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func failf(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind onto the status code the single POST route uses.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest, KindValidation:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUpload, KindUpstream, KindEmptyReply:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
