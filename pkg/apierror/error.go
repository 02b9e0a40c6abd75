// Package apierror defines the shared error taxonomy. Verification
// failures are values, not faults; unexpected errors from crypto
// primitives are re-surfaced as InternalError at the component boundary,
// and codec failures as CodecDecodeError or CodecCompressionError.
package apierror

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"
)

// Kind names one failure class of the taxonomy.
type Kind string

const (
	// Verification errors.
	AssertionNotFound           Kind = "AssertionNotFound"
	AssertionExpired            Kind = "AssertionExpired"
	AssertionRevoked            Kind = "AssertionRevoked"
	SignatureMissing            Kind = "SignatureMissing"
	SignatureInvalid            Kind = "SignatureInvalid"
	SignatureVerificationFailed Kind = "SignatureVerificationFailed"
	KeyNotFound                 Kind = "KeyNotFound"
	KeyTypeMismatch             Kind = "KeyTypeMismatch"
	ProofMissing                Kind = "ProofMissing"
	ProofInvalid                Kind = "ProofInvalid"
	ProofTypeUnsupported        Kind = "ProofTypeUnsupported"
	CryptosuiteUnsupported      Kind = "CryptosuiteUnsupported"
	InternalError               Kind = "InternalError"

	// Status-list errors.
	ListFull             Kind = "ListFull"
	StatusUpdateConflict Kind = "StatusUpdateConflict"
	IndexOutOfBounds     Kind = "IndexOutOfBounds"
	ListNotFound         Kind = "ListNotFound"
	EntryNotFound        Kind = "EntryNotFound"

	// Codec errors.
	CodecDecodeError      Kind = "CodecDecodeError"
	CodecCompressionError Kind = "CodecCompressionError"

	// Schema errors.
	SchemaFetchError                Kind = "SchemaFetchError"
	InvalidSchemaError              Kind = "InvalidSchemaError"
	CredentialSchemaValidationError Kind = "CredentialSchemaValidationError"
	UnsupportedSchemaTypeError      Kind = "UnsupportedSchemaTypeError"
	SchemaValidationTimeoutError    Kind = "SchemaValidationTimeoutError"

	// RequestValidation covers malformed request bodies at the HTTP edge.
	RequestValidation Kind = "RequestValidation"
)

// Error is the structured error value every component returns at its
// boundary.
type Error struct {
	Kind    Kind `json:"kind"`
	Details any  `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Details != nil {
		return fmt.Sprintf("%s: %+v", e.Kind, e.Details)
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs a bare Error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// NewWithDetails constructs an Error carrying a human-readable detail.
func NewWithDetails(kind Kind, details any) *Error {
	return &Error{Kind: kind, Details: details}
}

// Wrap records cause under kind, preserving it for errors.As/Is while
// presenting the fixed taxonomy to callers.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return New(kind)
	}
	return &Error{Kind: kind, Details: cause.Error(), cause: cause}
}

// FromError translates an arbitrary error into the taxonomy, falling back
// to InternalError. Already-typed *Error values pass through unchanged.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}

	if valErr, ok := err.(validator.ValidationErrors); ok {
		return NewWithDetails(RequestValidation, formatValidationErrors(valErr))
	}

	if jsonErr, ok := err.(*json.UnmarshalTypeError); ok {
		return NewWithDetails(RequestValidation, map[string]any{
			"field":    jsonErr.Field,
			"expected": jsonErr.Type.Kind().String(),
			"actual":   jsonErr.Value,
		})
	}

	return Wrap(InternalError, err)
}

func formatValidationErrors(errs validator.ValidationErrors) []map[string]any {
	out := make([]map[string]any, 0, len(errs))
	for _, e := range errs {
		out = append(out, map[string]any{
			"field":      e.Field(),
			"validation": e.Tag(),
			"param":      e.Param(),
		})
	}
	return out
}

func httpStatus(kind Kind) int {
	switch kind {
	case AssertionNotFound, KeyNotFound, ListNotFound, EntryNotFound:
		return 404
	case StatusUpdateConflict:
		return 409
	case CodecDecodeError, CodecCompressionError, IndexOutOfBounds,
		InvalidSchemaError, UnsupportedSchemaTypeError, RequestValidation:
		return 400
	case SchemaValidationTimeoutError:
		return 504
	default:
		return 500
	}
}

// Problem converts e into an RFC 7807 problem-details document for the
// HTTP layer.
func (e *Error) Problem() *problems.Problem {
	status := httpStatus(e.Kind)
	p := problems.NewDetailedProblem(status, e.Error())
	p.Title = string(e.Kind)
	return p
}
