// Package orchestrator drives the cross-entity steps of the sharing
// lifecycle: turning an approved request into a contract and unwinding
// a terminated contract's transfers.
package orchestrator

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds the contract defaults the orchestrator stamps onto
// auto-created contracts.
type Config struct {
	// ContractValidity is how long a new contract stays valid
	ContractValidity time.Duration
	// TermsDuration is the human-readable duration recorded in terms
	TermsDuration string
}

// Orchestrator reacts to lifecycle events from the request and
// contract services. It implements events.ApprovalHandler and
// events.TerminationHandler.
type Orchestrator struct {
	requests     repositories.RequestRepo
	contracts    repositories.ContractRepo
	transfers    repositories.TransferRepo
	publications repositories.PublicationRepo
	emitter      *events.Emitter
	locker       *redis.Locker
	config       Config
	clock        clock.Clock
	logger       ectologger.Logger
}

// New creates a new orchestrator
func New(
	requests repositories.RequestRepo,
	contracts repositories.ContractRepo,
	transfers repositories.TransferRepo,
	publications repositories.PublicationRepo,
	emitter *events.Emitter,
	locker *redis.Locker,
	config Config,
	clk clock.Clock,
	logger ectologger.Logger,
) *Orchestrator {
	return &Orchestrator{
		requests:     requests,
		contracts:    contracts,
		transfers:    transfers,
		publications: publications,
		emitter:      emitter,
		locker:       locker,
		config:       config,
		clock:        clk,
		logger:       logger,
	}
}

// HandleApproval creates the contract for an approved request. The
// unique index on request_id makes this idempotent: a concurrent or
// repeated approval returns the winning contract instead of a second
// one.
func (o *Orchestrator) HandleApproval(ctx context.Context, request *models.DataRequest) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.HandleApproval")
	defer span.End()

	if o.locker != nil {
		lock, err := o.locker.TryAcquire(ctx, "contract:"+request.ID.String(), 10*time.Second, 2*time.Second)
		if err == nil {
			defer lock.Release(ctx)
		}
		// Lock failure is not fatal; the unique index still decides.
	}

	publication, err := o.publications.GetByID(ctx, request.PublicationID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "loading publication for contract")
	}

	contract := &models.DataContract{
		RequestID:     request.ID,
		PublicationID: request.PublicationID,
		ProviderRole:  publication.PublisherRole,
		ConsumerRole:  request.RequesterRole,
		ValidUntil:    o.clock.Now().Add(o.config.ContractValidity),
		Terms: database.JSONB[models.ContractTerms]{Data: models.ContractTerms{
			UsagePolicy: publication.UsagePolicy,
			Duration:    o.config.TermsDuration,
			AutoCreated: true,
		}},
	}

	err = o.contracts.Create(ctx, contract)
	if lifecycle.IsKind(err, lifecycle.KindDuplicateContract) {
		existing, getErr := o.contracts.GetByRequestID(ctx, request.ID)
		if getErr != nil {
			return nil, getErr
		}
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"request_id":  request.ID,
			"contract_id": existing.ID,
		}).Info("Contract already exists for approved request")
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.ContractsCreatedTotal.Inc()
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":  request.ID,
		"contract_id": contract.ID,
	}).Info("Contract created for approved request")

	if o.emitter != nil {
		if emitErr := o.emitter.EmitContractCreated(ctx, contract); emitErr != nil {
			metrics.EventEmitFailuresTotal.WithLabelValues(string(events.EventTypeContractCreated)).Inc()
		}
	}

	return contract, nil
}

// HandleTermination cancels every non-terminal transfer under a
// terminated contract. Completed and Failed transfers keep their
// outcome.
func (o *Orchestrator) HandleTermination(ctx context.Context, contract *models.DataContract) error {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.HandleTermination")
	defer span.End()

	cancelled, err := o.transfers.CancelForContract(ctx, contract.ID, models.TransferLogEntry{
		Timestamp: o.clock.Now(),
		Message:   "Transfer cancelled: contract terminated",
	})
	if err != nil {
		return err
	}

	if cancelled > 0 {
		metrics.TransfersCascadeCancelledTotal.Add(float64(cancelled))
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"contract_id": contract.ID,
			"cancelled":   cancelled,
		}).Info("Cancelled transfers for terminated contract")
	}
	return nil
}

// EnsureContract retries contract creation for a request that is
// Approved but contractless, the repair path when the creation step
// failed after approval. Provider only.
func (o *Orchestrator) EnsureContract(ctx context.Context, requestID uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.EnsureContract")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	request, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusApproved {
		return nil, lifecycle.NewInvalidTransitionError("request", request.Status, "contract creation")
	}

	publication, err := o.publications.GetByID(ctx, request.PublicationID)
	if err != nil {
		return nil, err
	}
	if publication.PublisherRole != role {
		return nil, lifecycle.NewUnauthorizedError("only the provider may create the contract for request %s", requestID)
	}

	return o.HandleApproval(ctx, request)
}
