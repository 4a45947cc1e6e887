package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the status of a data request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "Pending"
	RequestStatusApproved RequestStatus = "Approved"
	RequestStatusRejected RequestStatus = "Rejected"
	RequestStatusExpired  RequestStatus = "Expired"
)

// IsTerminal reports whether no further transitions are possible
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusExpired
}

// CanTransitionTo reports whether the lifecycle allows moving to target
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	if s != RequestStatusPending {
		return false
	}
	switch target {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusExpired:
		return true
	}
	return false
}

// RequestType classifies what the consumer is asking for
type RequestType string

const (
	RequestTypeDataAccess RequestType = "Data Access Request"
	RequestTypeDataUsage  RequestType = "Data Usage Request"
	RequestTypeService    RequestType = "Service Request"
	RequestTypeAPIAccess  RequestType = "API Access Request"
)

// ValidRequestTypes lists the accepted request type values
var ValidRequestTypes = []RequestType{
	RequestTypeDataAccess,
	RequestTypeDataUsage,
	RequestTypeService,
	RequestTypeAPIAccess,
}

// IsValid reports whether t is one of the accepted request types
func (t RequestType) IsValid() bool {
	for _, v := range ValidRequestTypes {
		if t == v {
			return true
		}
	}
	return false
}

// DataRequest is a consumer's ask for access to a publication
type DataRequest struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	PublicationID uuid.UUID     `db:"publication_id" json:"publication_id"`
	RequesterRole string        `db:"requester_role" json:"requester_role"`
	RequestType   RequestType   `db:"request_type" json:"request_type"`
	Status        RequestStatus `db:"status" json:"status"`
	Message       *string       `db:"message" json:"message,omitempty"`
	DecisionNote  *string       `db:"decision_note" json:"decision_note,omitempty"`
	DecidedAt     *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (DataRequest) TableName() string {
	return "data_requests"
}
