package events

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ApprovalHandler reacts to a request moving to Approved. The request
// row is already committed when the handler runs; a handler error does
// not roll the approval back.
type ApprovalHandler interface {
	HandleApproval(ctx context.Context, request *models.DataRequest) (*models.DataContract, error)
}

// TerminationHandler reacts to a contract reaching Terminated
type TerminationHandler interface {
	HandleTermination(ctx context.Context, contract *models.DataContract) error
}
