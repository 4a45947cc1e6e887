// Package lifecycle holds the shared vocabulary for sharing lifecycle
// failures. Every service in the Request -> Contract -> Transfer chain
// reports problems through these constructors so handlers and the
// orchestrator can branch on the kind without string matching.
package lifecycle

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

const (
	KindInvalidTransition      = "invalid_transition"
	KindNotFound               = "not_found"
	KindUnauthorized           = "unauthorized"
	KindDuplicateContract      = "duplicate_contract"
	KindConstraintViolation    = "constraint_violation"
	KindUpstreamUnavailable    = "upstream_unavailable"
	KindContractNotActive      = "contract_not_active"
	KindContractCreationFailed = "contract_creation_failed"
)

// Kind returns the lifecycle failure kind carried by err, or "" when
// err is nil or carries none.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if !httperror.IsHTTPError(err) {
		return ""
	}
	httperr := httperror.ToHTTPError(err)
	if kind, ok := httperr.Meta["kind"].(string); ok {
		return kind
	}
	return ""
}

// IsKind reports whether err carries the given lifecycle failure kind
func IsKind(err error, kind string) bool {
	return Kind(err) == kind
}

func newKindError(status int, kind, format string, args ...any) error {
	return httperror.NewHTTPError(status, fmt.Sprintf(format, args...)).AddMetaValue("kind", kind)
}

// NewInvalidTransitionError reports a status change the lifecycle does not allow
func NewInvalidTransitionError(entity string, from, to any) error {
	return newKindError(http.StatusConflict, KindInvalidTransition, "%s cannot move from %v to %v", entity, from, to)
}

// NewInvalidStateError reports an operation attempted from a state that
// forbids it, where the operation is not itself a status change.
func NewInvalidStateError(format string, args ...any) error {
	return newKindError(http.StatusConflict, KindInvalidTransition, format, args...)
}

// NewNotFoundError reports a missing entity
func NewNotFoundError(format string, args ...any) error {
	return newKindError(http.StatusNotFound, KindNotFound, format, args...)
}

// NewUnauthorizedError reports a caller acting outside its role
func NewUnauthorizedError(format string, args ...any) error {
	return newKindError(http.StatusForbidden, KindUnauthorized, format, args...)
}

// NewDuplicateContractError reports a second contract for the same request
func NewDuplicateContractError(requestID any) error {
	return newKindError(http.StatusConflict, KindDuplicateContract, "request %v already has a contract", requestID)
}

// NewConstraintViolationError reports input the storage layer rejected
func NewConstraintViolationError(format string, args ...any) error {
	return newKindError(http.StatusUnprocessableEntity, KindConstraintViolation, format, args...)
}

// NewUpstreamUnavailableError reports a dependency we could not reach
func NewUpstreamUnavailableError(format string, args ...any) error {
	return newKindError(http.StatusBadGateway, KindUpstreamUnavailable, format, args...)
}

// NewContractNotActiveError reports an operation that needs an active contract
func NewContractNotActiveError(contractID any, status any) error {
	return newKindError(http.StatusConflict, KindContractNotActive, "contract %v is %v, not Active", contractID, status)
}

// NewContractCreationFailedError reports an approval whose follow-on
// contract could not be created. The request stays Approved and the
// contract can be retried.
func NewContractCreationFailedError(requestID any, cause error) error {
	err := newKindError(http.StatusBadGateway, KindContractCreationFailed, "request %v approved but contract creation failed", requestID)
	if cause != nil {
		return httperror.ToHTTPError(err).AddMetaValue("cause", cause.Error())
	}
	return err
}
