package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/google/uuid"
)

// TransferStatus represents the status of a data transfer
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "Pending"
	TransferStatusInProgress TransferStatus = "In Progress"
	TransferStatusCompleted  TransferStatus = "Completed"
	TransferStatusFailed     TransferStatus = "Failed"
	TransferStatusCancelled  TransferStatus = "Cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed || s == TransferStatusCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving to target
func (s TransferStatus) CanTransitionTo(target TransferStatus) bool {
	switch s {
	case TransferStatusPending:
		return target == TransferStatusInProgress || target == TransferStatusCancelled
	case TransferStatusInProgress:
		return target == TransferStatusCompleted || target == TransferStatusFailed || target == TransferStatusCancelled
	}
	return false
}

// Progress returns a coarse completion percentage derived from status
func (s TransferStatus) Progress() int {
	switch s {
	case TransferStatusPending:
		return 0
	case TransferStatusInProgress:
		return 50
	case TransferStatusCompleted:
		return 100
	}
	return 0
}

// ProgressPercent derives a presentation percentage for the transfer.
// Real byte counts take precedence over the coarse status estimate
// when the publication declares a size.
func (t *DataTransfer) ProgressPercent(fileSize *int64) int {
	if t.Status == TransferStatusInProgress && fileSize != nil && *fileSize > 0 {
		pct := int(t.BytesTransferred * 100 / *fileSize)
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	return t.Status.Progress()
}

// TransferLogEntry is one line in a transfer's activity log
type TransferLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// DataTransfer tracks movement of a publication's payload under a contract
type DataTransfer struct {
	ID               uuid.UUID                          `db:"id" json:"id"`
	ContractID       uuid.UUID                          `db:"contract_id" json:"contract_id"`
	PublicationID    uuid.UUID                          `db:"publication_id" json:"publication_id"`
	InitiatorRole    string                             `db:"initiator_role" json:"initiator_role"`
	Status           TransferStatus                     `db:"status" json:"status"`
	TransferMethod   string                             `db:"transfer_method" json:"transfer_method"`
	BytesTransferred int64                              `db:"bytes_transferred" json:"bytes_transferred"`
	Logs             database.JSONB[[]TransferLogEntry] `db:"logs" json:"logs"`
	FailureReason    *string                            `db:"failure_reason" json:"failure_reason,omitempty"`
	StartedAt        *time.Time                         `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time                         `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt      *time.Time                         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt        time.Time                          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                          `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (DataTransfer) TableName() string {
	return "data_transfers"
}
