package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/google/uuid"
)

// ContractStatus represents the status of a data contract
type ContractStatus string

const (
	ContractStatusActive     ContractStatus = "Active"
	ContractStatusSuspended  ContractStatus = "Suspended"
	ContractStatusCompleted  ContractStatus = "Completed"
	ContractStatusTerminated ContractStatus = "Terminated"
)

// IsTerminal reports whether no further transitions are possible
func (s ContractStatus) IsTerminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusTerminated
}

// CanTransitionTo reports whether the lifecycle allows moving to target
func (s ContractStatus) CanTransitionTo(target ContractStatus) bool {
	switch s {
	case ContractStatusActive:
		return target == ContractStatusSuspended || target == ContractStatusCompleted || target == ContractStatusTerminated
	case ContractStatusSuspended:
		return target == ContractStatusActive || target == ContractStatusTerminated
	}
	return false
}

// ContractTerms is the negotiated usage policy captured at contract creation
type ContractTerms struct {
	UsagePolicy string `json:"usagePolicy"`
	Duration    string `json:"duration"`
	AutoCreated bool   `json:"autoCreated"`
}

// DataContract binds a provider and consumer after request approval
type DataContract struct {
	ID            uuid.UUID                    `db:"id" json:"id"`
	RequestID     uuid.UUID                    `db:"request_id" json:"request_id"`
	PublicationID uuid.UUID                    `db:"publication_id" json:"publication_id"`
	ProviderRole  string                       `db:"provider_role" json:"provider_role"`
	ConsumerRole  string                       `db:"consumer_role" json:"consumer_role"`
	Status        ContractStatus               `db:"status" json:"status"`
	Terms         database.JSONB[ContractTerms] `db:"terms" json:"terms"`
	ValidUntil    time.Time                    `db:"valid_until" json:"valid_until"`
	TerminatedAt  *time.Time                   `db:"terminated_at" json:"terminated_at,omitempty"`
	CreatedAt     time.Time                    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                    `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (DataContract) TableName() string {
	return "data_contracts"
}
