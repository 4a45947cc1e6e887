package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, RequestStatusPending.CanTransitionTo(RequestStatusApproved))
	assert.True(t, RequestStatusPending.CanTransitionTo(RequestStatusRejected))
	assert.True(t, RequestStatusPending.CanTransitionTo(RequestStatusExpired))

	// Decided requests are immutable
	for _, from := range []RequestStatus{RequestStatusApproved, RequestStatusRejected, RequestStatusExpired} {
		for _, to := range []RequestStatus{RequestStatusApproved, RequestStatusRejected, RequestStatusExpired, RequestStatusPending} {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s should be blocked", from, to)
		}
	}
}

func TestRequestStatus_IsTerminal(t *testing.T) {
	assert.False(t, RequestStatusPending.IsTerminal())
	assert.True(t, RequestStatusApproved.IsTerminal())
	assert.True(t, RequestStatusRejected.IsTerminal())
	assert.True(t, RequestStatusExpired.IsTerminal())
}

func TestRequestType_IsValid(t *testing.T) {
	for _, requestType := range ValidRequestTypes {
		assert.True(t, requestType.IsValid(), "%s should be valid", requestType)
	}
	assert.False(t, RequestType("Bulk Export").IsValid())
	assert.False(t, RequestType("").IsValid())
}

func TestContractStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, ContractStatusActive.CanTransitionTo(ContractStatusSuspended))
	assert.True(t, ContractStatusActive.CanTransitionTo(ContractStatusCompleted))
	assert.True(t, ContractStatusActive.CanTransitionTo(ContractStatusTerminated))
	assert.True(t, ContractStatusSuspended.CanTransitionTo(ContractStatusActive))
	assert.True(t, ContractStatusSuspended.CanTransitionTo(ContractStatusTerminated))

	assert.False(t, ContractStatusSuspended.CanTransitionTo(ContractStatusCompleted))
	assert.False(t, ContractStatusTerminated.CanTransitionTo(ContractStatusActive))
	assert.False(t, ContractStatusCompleted.CanTransitionTo(ContractStatusActive))
}

func TestContractStatus_IsTerminal(t *testing.T) {
	assert.False(t, ContractStatusActive.IsTerminal())
	assert.False(t, ContractStatusSuspended.IsTerminal())
	assert.True(t, ContractStatusCompleted.IsTerminal())
	assert.True(t, ContractStatusTerminated.IsTerminal())
}

func TestTransferStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, TransferStatusPending.CanTransitionTo(TransferStatusInProgress))
	assert.True(t, TransferStatusPending.CanTransitionTo(TransferStatusCancelled))
	assert.True(t, TransferStatusInProgress.CanTransitionTo(TransferStatusCompleted))
	assert.True(t, TransferStatusInProgress.CanTransitionTo(TransferStatusFailed))
	assert.True(t, TransferStatusInProgress.CanTransitionTo(TransferStatusCancelled))

	// No skipping straight to Completed, no reviving terminal transfers
	assert.False(t, TransferStatusPending.CanTransitionTo(TransferStatusCompleted))
	assert.False(t, TransferStatusCompleted.CanTransitionTo(TransferStatusInProgress))
	assert.False(t, TransferStatusFailed.CanTransitionTo(TransferStatusInProgress))
	assert.False(t, TransferStatusCancelled.CanTransitionTo(TransferStatusPending))
}

func TestTransferStatus_Progress(t *testing.T) {
	assert.Equal(t, 0, TransferStatusPending.Progress())
	assert.Equal(t, 50, TransferStatusInProgress.Progress())
	assert.Equal(t, 100, TransferStatusCompleted.Progress())
	assert.Equal(t, 0, TransferStatusFailed.Progress())
	assert.Equal(t, 0, TransferStatusCancelled.Progress())
}

func TestDataTransfer_ProgressPercent(t *testing.T) {
	size := int64(1000)
	transfer := &DataTransfer{Status: TransferStatusInProgress, BytesTransferred: 990}

	// Real byte counts take precedence over the status estimate
	assert.Equal(t, 99, transfer.ProgressPercent(&size))
	assert.Equal(t, 50, transfer.ProgressPercent(nil))

	transfer.BytesTransferred = 2000
	assert.Equal(t, 100, transfer.ProgressPercent(&size))

	transfer.Status = TransferStatusPending
	transfer.BytesTransferred = 0
	assert.Equal(t, 0, transfer.ProgressPercent(&size))

	transfer.Status = TransferStatusCompleted
	assert.Equal(t, 100, transfer.ProgressPercent(&size))
}
