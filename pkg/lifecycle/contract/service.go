// Package contract implements the contract half of the sharing
// lifecycle: the binding agreement created on approval, its
// suspend/resume/terminate transitions, and the download affordance
// an active contract grants the consumer.
package contract

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/blob"
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service coordinates contract lifecycle operations
type Service struct {
	contracts     repositories.ContractRepo
	publications  repositories.PublicationRepo
	emitter       *events.Emitter
	onTermination events.TerminationHandler
	resolver      *blob.Resolver
	clock         clock.Clock
	logger        ectologger.Logger
}

// NewService creates a new contract service
func NewService(
	contracts repositories.ContractRepo,
	publications repositories.PublicationRepo,
	emitter *events.Emitter,
	resolver *blob.Resolver,
	clk clock.Clock,
	logger ectologger.Logger,
) *Service {
	return &Service{
		contracts:    contracts,
		publications: publications,
		emitter:      emitter,
		resolver:     resolver,
		clock:        clk,
		logger:       logger,
	}
}

// SetTerminationHandler wires the handler invoked after a contract is
// terminated. Set once during startup, before the service takes traffic.
func (s *Service) SetTerminationHandler(h events.TerminationHandler) {
	s.onTermination = h
}

// Get retrieves a contract the caller is a party to
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.Get")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireParty(contract, role); err != nil {
		return nil, err
	}
	return contract, nil
}

// GetByRequest retrieves the contract created for an approved request
func (s *Service) GetByRequest(ctx context.Context, requestID uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.GetByRequest")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	contract, err := s.contracts.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := requireParty(contract, role); err != nil {
		return nil, err
	}
	return contract, nil
}

// List retrieves contracts where the caller is provider or consumer
func (s *Service) List(ctx context.Context) ([]models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.List")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.contracts.ListByRole(ctx, role)
}

// Suspend moves an active contract to Suspended. Provider only.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.Suspend")
	defer span.End()

	if err := s.authorizeProvider(ctx, id); err != nil {
		return nil, err
	}

	contract, err := s.contracts.UpdateStatus(ctx, id,
		[]models.ContractStatus{models.ContractStatusActive},
		models.ContractStatusSuspended, nil)
	if err != nil {
		return nil, err
	}
	metrics.ContractStatusChangesTotal.WithLabelValues(string(models.ContractStatusSuspended)).Inc()

	s.emitStatusChanged(ctx, events.EventTypeContractSuspended, contract)
	return contract, nil
}

// Resume moves a suspended contract back to Active. Provider only.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.Resume")
	defer span.End()

	if err := s.authorizeProvider(ctx, id); err != nil {
		return nil, err
	}

	contract, err := s.contracts.UpdateStatus(ctx, id,
		[]models.ContractStatus{models.ContractStatusSuspended},
		models.ContractStatusActive, nil)
	if err != nil {
		return nil, err
	}
	metrics.ContractStatusChangesTotal.WithLabelValues(string(models.ContractStatusActive)).Inc()

	s.emitStatusChanged(ctx, events.EventTypeContractResumed, contract)
	return contract, nil
}

// Terminate ends a contract from Active or Suspended. Either party
// may terminate. Non-terminal transfers under the contract are
// cancelled by the termination handler after the status is committed.
func (s *Service) Terminate(ctx context.Context, id uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.Terminate")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireParty(existing, role); err != nil {
		return nil, err
	}

	terminatedAt := s.clock.Now()
	contract, err := s.contracts.UpdateStatus(ctx, id,
		[]models.ContractStatus{models.ContractStatusActive, models.ContractStatusSuspended},
		models.ContractStatusTerminated, &terminatedAt)
	if err != nil {
		return nil, err
	}
	metrics.ContractStatusChangesTotal.WithLabelValues(string(models.ContractStatusTerminated)).Inc()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"contract_id": id,
		"role":        role,
	}).Info("Contract terminated")

	if s.onTermination != nil {
		if err := s.onTermination.HandleTermination(ctx, contract); err != nil {
			// The contract is already terminated; the cascade is best
			// effort and the sweep can be retried by terminating again.
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"contract_id": id,
			}).Error("Failed to cancel transfers for terminated contract")
		}
	}

	s.emitStatusChanged(ctx, events.EventTypeContractTerminated, contract)
	return contract, nil
}

// DownloadURL resolves the publication file behind an active contract
// to a downloadable URL. Either party may download.
func (s *Service) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "contract.Service.DownloadURL")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return "", err
	}

	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if err := requireParty(contract, role); err != nil {
		return "", err
	}
	if contract.Status != models.ContractStatusActive {
		return "", lifecycle.NewContractNotActiveError(id, contract.Status)
	}
	if s.clock.Now().After(contract.ValidUntil) {
		return "", lifecycle.NewContractNotActiveError(id, "past valid_until")
	}

	publication, err := s.publications.GetByID(ctx, contract.PublicationID)
	if err != nil {
		return "", err
	}
	if publication.FilePath == nil || *publication.FilePath == "" {
		return "", lifecycle.NewNotFoundError("publication %s has no stored file", publication.ID)
	}

	return s.resolver.Resolve(ctx, *publication.FilePath)
}

func (s *Service) authorizeProvider(ctx context.Context, id uuid.UUID) error {
	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return err
	}

	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if contract.ProviderRole != role {
		return lifecycle.NewUnauthorizedError("only the provider may change contract %s", id)
	}
	return nil
}

func requireParty(contract *models.DataContract, role string) error {
	if contract.ProviderRole != role && contract.ConsumerRole != role {
		return lifecycle.NewUnauthorizedError("role %q is not a party to contract %s", role, contract.ID)
	}
	return nil
}

// emitStatusChanged publishes the status event. The change is already
// committed, so emit failures are logged and counted, not returned.
func (s *Service) emitStatusChanged(ctx context.Context, eventType events.EventType, contract *models.DataContract) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitContractStatusChanged(ctx, eventType, contract); err != nil {
		metrics.EventEmitFailuresTotal.WithLabelValues(string(eventType)).Inc()
	}
}
