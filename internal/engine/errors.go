package engine

import (
	"errors"
	"fmt"
)

// RegistrationError represents a rejected or failed registration step.
//
// Registration errors never stop the loop. They are logged with structured
// fields and the event is dropped.
type RegistrationError struct {
	// Code identifies the error category.
	Code RegistrationErrorCode

	// Message is a human-readable description.
	Message string

	// Session is the transport-authenticated session, if known.
	Session string

	// Err is the underlying error (optional).
	Err error
}

// RegistrationErrorCode categorizes registration errors.
type RegistrationErrorCode string

const (
	// ErrCodeDecode indicates a side-channel payload could not be decoded.
	ErrCodeDecode RegistrationErrorCode = "DECODE_FAILED"

	// ErrCodeIdentityMismatch indicates an assertion claimed a session
	// other than the one that sent it.
	ErrCodeIdentityMismatch RegistrationErrorCode = "IDENTITY_MISMATCH"

	// ErrCodeStoreUnavailable indicates the identity store did not answer.
	ErrCodeStoreUnavailable RegistrationErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeLinkRejected indicates the store refused the link.
	ErrCodeLinkRejected RegistrationErrorCode = "LINK_REJECTED"
)

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Session != "" {
		msg = fmt.Sprintf("%s (session=%s)", msg, e.Session)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// IsIdentityMismatch returns true if err is an identity mismatch.
// Uses errors.As to handle wrapped errors.
func IsIdentityMismatch(err error) bool {
	return hasCode(err, ErrCodeIdentityMismatch)
}

// IsStoreUnavailable returns true if err is a store failure.
func IsStoreUnavailable(err error) bool {
	return hasCode(err, ErrCodeStoreUnavailable)
}

// IsDecodeError returns true if err is a payload decode failure.
func IsDecodeError(err error) bool {
	return hasCode(err, ErrCodeDecode)
}

func hasCode(err error, code RegistrationErrorCode) bool {
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
