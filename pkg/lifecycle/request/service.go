// Package request implements the data request half of the sharing
// lifecycle: consumers ask, providers decide, approval hands off to
// the orchestrator for contract creation.
package request

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service coordinates request lifecycle operations
type Service struct {
	requests     repositories.RequestRepo
	publications repositories.PublicationRepo
	emitter      *events.Emitter
	onApproval   events.ApprovalHandler
	clock        clock.Clock
	logger       ectologger.Logger
}

// NewService creates a new request service
func NewService(
	requests repositories.RequestRepo,
	publications repositories.PublicationRepo,
	emitter *events.Emitter,
	clk clock.Clock,
	logger ectologger.Logger,
) *Service {
	return &Service{
		requests:     requests,
		publications: publications,
		emitter:      emitter,
		clock:        clk,
		logger:       logger,
	}
}

// SetApprovalHandler wires the handler invoked after a request is
// approved. Set once during startup, before the service takes traffic.
func (s *Service) SetApprovalHandler(h events.ApprovalHandler) {
	s.onApproval = h
}

// CreateInput carries the fields needed to open a request
type CreateInput struct {
	PublicationID uuid.UUID
	RequestType   models.RequestType
	Message       *string
}

// Create opens a new pending request against a publication
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.Create")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	if !input.RequestType.IsValid() {
		return nil, lifecycle.NewConstraintViolationError("unknown request type %q", input.RequestType)
	}

	publication, err := s.publications.GetByID(ctx, input.PublicationID)
	if err != nil {
		return nil, err
	}
	if publication.PublisherRole == role {
		return nil, lifecycle.NewConstraintViolationError("cannot request access to your own publication")
	}

	request := &models.DataRequest{
		PublicationID: input.PublicationID,
		RequesterRole: role,
		RequestType:   input.RequestType,
		Message:       input.Message,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	metrics.RequestsCreatedTotal.WithLabelValues(string(request.RequestType)).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":     request.ID,
		"publication_id": request.PublicationID,
		"requester_role": role,
	}).Info("Data request created")
	return request, nil
}

// Get retrieves a request visible to the caller. Only the requester
// and the publication's provider may see it.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.Get")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequesterRole != role {
		publication, err := s.publications.GetByID(ctx, request.PublicationID)
		if err != nil {
			return nil, err
		}
		if publication.PublisherRole != role {
			return nil, lifecycle.NewUnauthorizedError("role %q is not a party to request %s", role, id)
		}
	}
	return request, nil
}

// ListSent retrieves requests the caller has made
func (s *Service) ListSent(ctx context.Context) ([]models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.ListSent")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.requests.ListSent(ctx, role)
}

// ListReceived retrieves requests against the caller's publications
func (s *Service) ListReceived(ctx context.Context) ([]models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.ListReceived")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.requests.ListReceived(ctx, role)
}

// ApproveResult carries the decided request and, when creation
// succeeded, its contract.
type ApproveResult struct {
	Request  *models.DataRequest  `json:"request"`
	Contract *models.DataContract `json:"contract,omitempty"`
}

// Approve moves a pending request to Approved and asks the
// orchestrator for a contract. The approval is committed before
// contract creation starts; if creation fails the request stays
// Approved and the error tells the caller the contract can be retried.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, note *string) (*ApproveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.Approve")
	defer span.End()

	if err := s.authorizeProvider(ctx, id); err != nil {
		return nil, err
	}

	request, err := s.requests.Decide(ctx, id, models.RequestStatusApproved, note, s.clock.Now())
	if err != nil {
		return nil, err
	}
	metrics.RequestsDecidedTotal.WithLabelValues(string(models.RequestStatusApproved)).Inc()

	s.emitDecided(ctx, events.EventTypeRequestApproved, request)

	contract, err := s.onApproval.HandleApproval(ctx, request)
	if err != nil {
		metrics.ContractCreationFailuresTotal.Inc()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
		}).Error("Request approved but contract creation failed")
		return nil, lifecycle.NewContractCreationFailedError(id, err)
	}

	return &ApproveResult{Request: request, Contract: contract}, nil
}

// Reject moves a pending request to Rejected
func (s *Service) Reject(ctx context.Context, id uuid.UUID, note *string) (*models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.Reject")
	defer span.End()

	if err := s.authorizeProvider(ctx, id); err != nil {
		return nil, err
	}

	request, err := s.requests.Decide(ctx, id, models.RequestStatusRejected, note, s.clock.Now())
	if err != nil {
		return nil, err
	}
	metrics.RequestsDecidedTotal.WithLabelValues(string(models.RequestStatusRejected)).Inc()

	s.emitDecided(ctx, events.EventTypeRequestRejected, request)
	return request, nil
}

// Cancel removes a pending request. Only the requester may cancel,
// and only while the request is still undecided.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "request.Service.Cancel")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return err
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if request.RequesterRole != role {
		return lifecycle.NewUnauthorizedError("only the requester may cancel request %s", id)
	}

	return s.requests.DeletePending(ctx, id)
}

// Expire moves a pending request to Expired. Called by the sweeper.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "request.Service.Expire")
	defer span.End()

	request, err := s.requests.Decide(ctx, id, models.RequestStatusExpired, nil, s.clock.Now())
	if err != nil {
		return nil, err
	}
	metrics.RequestsDecidedTotal.WithLabelValues(string(models.RequestStatusExpired)).Inc()

	s.emitDecided(ctx, events.EventTypeRequestExpired, request)
	return request, nil
}

// authorizeProvider verifies the caller publishes the requested publication
func (s *Service) authorizeProvider(ctx context.Context, id uuid.UUID) error {
	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return err
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}

	publication, err := s.publications.GetByID(ctx, request.PublicationID)
	if err != nil {
		return err
	}
	if publication.PublisherRole != role {
		return lifecycle.NewUnauthorizedError("only the provider may decide request %s", id)
	}
	return nil
}

// emitDecided publishes the decision event. The decision is already
// committed, so emit failures are logged and counted, not returned.
func (s *Service) emitDecided(ctx context.Context, eventType events.EventType, request *models.DataRequest) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitRequestDecided(ctx, eventType, request); err != nil {
		metrics.EventEmitFailuresTotal.WithLabelValues(string(eventType)).Inc()
	}
}
