package lifecycle_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestKind(t *testing.T) {
	err := lifecycle.NewInvalidTransitionError("request", models.RequestStatusApproved, models.RequestStatusRejected)
	assert.Equal(t, lifecycle.KindInvalidTransition, lifecycle.Kind(err))
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
	assert.False(t, lifecycle.IsKind(err, lifecycle.KindNotFound))

	assert.Equal(t, "", lifecycle.Kind(nil))
	assert.Equal(t, "", lifecycle.Kind(errors.New("plain error")))
}

func TestErrorStatusCodes(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid transition", lifecycle.NewInvalidTransitionError("contract", models.ContractStatusTerminated, models.ContractStatusActive), http.StatusConflict, lifecycle.KindInvalidTransition},
		{"invalid state", lifecycle.NewInvalidStateError("transfer %s is Pending; progress can only be reported while In Progress", id), http.StatusConflict, lifecycle.KindInvalidTransition},
		{"not found", lifecycle.NewNotFoundError("request %s not found", id), http.StatusNotFound, lifecycle.KindNotFound},
		{"unauthorized", lifecycle.NewUnauthorizedError("acting role is required"), http.StatusForbidden, lifecycle.KindUnauthorized},
		{"duplicate contract", lifecycle.NewDuplicateContractError(id), http.StatusConflict, lifecycle.KindDuplicateContract},
		{"constraint violation", lifecycle.NewConstraintViolationError("cannot request own publication"), http.StatusUnprocessableEntity, lifecycle.KindConstraintViolation},
		{"upstream unavailable", lifecycle.NewUpstreamUnavailableError("event broker unreachable"), http.StatusBadGateway, lifecycle.KindUpstreamUnavailable},
		{"contract not active", lifecycle.NewContractNotActiveError(id, models.ContractStatusSuspended), http.StatusConflict, lifecycle.KindContractNotActive},
		{"contract creation failed", lifecycle.NewContractCreationFailedError(id, errors.New("db down")), http.StatusBadGateway, lifecycle.KindContractCreationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, httperror.IsHTTPError(tt.err))
			assert.Equal(t, tt.code, httperror.GetStatusCode(tt.err))
			assert.Equal(t, tt.kind, lifecycle.Kind(tt.err))
		})
	}
}
