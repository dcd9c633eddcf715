package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v82"
)

// ErrorKind classifies remote payment service failures so callers can
// branch on the failure mode instead of matching message strings.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindInvalidRequest   ErrorKind = "invalid_request"
	KindRateLimited      ErrorKind = "rate_limited"
	KindAuth             ErrorKind = "auth"
	KindNetwork          ErrorKind = "network"
	KindSignatureInvalid ErrorKind = "signature_invalid"
	KindMalformedPayload ErrorKind = "malformed_payload"
	KindInternal         ErrorKind = "internal"
)

// Error is the error type returned by every gateway and service
// operation in this package. Message carries the remote error message
// when the failure came from the payment service.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stripe error [%s]: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("stripe error [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is (or wraps) a package Error of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// wrapRemoteError converts an error returned by the stripe-go SDK into
// the package taxonomy. Anything that is not a structured remote error
// is treated as a transient network failure.
func wrapRemoteError(op string, err error) *Error {
	var stripeErr *stripeapi.Error
	if !errors.As(err, &stripeErr) {
		return newError(KindNetwork, op+" failed", err)
	}
	kind := KindNetwork
	switch {
	case stripeErr.Code == stripeapi.ErrorCodeResourceMissing:
		kind = KindNotFound
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized,
		stripeErr.HTTPStatusCode == http.StatusForbidden:
		kind = KindAuth
	case stripeErr.Type == stripeapi.ErrorTypeInvalidRequest:
		kind = KindInvalidRequest
	}
	return &Error{Kind: kind, Message: stripeErr.Msg, Err: err}
}

// PurgeOutcome is the verdict on whether a failed remote deletion
// blocks a local purge.
type PurgeOutcome int

const (
	// PurgeRecoverable means the remote object is proven gone and the
	// local purge can proceed.
	PurgeRecoverable PurgeOutcome = iota
	// PurgeFatal means the remote state is unknown and the local
	// record must not be mutated.
	PurgeFatal
)

// ClassifyPurgeError decides whether a failed remote deletion is
// recoverable. A not-found answer, or an invalid-request answer whose
// remote message starts with "No such", proves the object no longer
// exists remotely. Every other failure leaves the remote state
// unknown.
func ClassifyPurgeError(err error) PurgeOutcome {
	var e *Error
	if !errors.As(err, &e) {
		return PurgeFatal
	}
	switch e.Kind {
	case KindNotFound:
		return PurgeRecoverable
	case KindInvalidRequest:
		if strings.HasPrefix(e.Message, "No such") {
			return PurgeRecoverable
		}
	}
	return PurgeFatal
}
