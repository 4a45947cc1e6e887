// Package transfer implements the transfer leg of the sharing
// lifecycle: moving a publication's payload under an active contract.
package transfer

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

// Service coordinates transfer lifecycle operations
type Service struct {
	transfers     repositories.TransferRepo
	contracts     repositories.ContractRepo
	publications  repositories.PublicationRepo
	emitter       *events.Emitter
	resolver      *blob.Resolver
	defaultMethod string
	clock         clock.Clock
	logger        ectologger.Logger
}

// NewService creates a new transfer service
func NewService(
	transfers repositories.TransferRepo,
	contracts repositories.ContractRepo,
	publications repositories.PublicationRepo,
	emitter *events.Emitter,
	resolver *blob.Resolver,
	defaultMethod string,
	clk clock.Clock,
	logger ectologger.Logger,
) *Service {
	return &Service{
		transfers:     transfers,
		contracts:     contracts,
		publications:  publications,
		emitter:       emitter,
		resolver:      resolver,
		defaultMethod: defaultMethod,
		clock:         clk,
		logger:        logger,
	}
}

// InitiateInput carries the fields needed to start a transfer
type InitiateInput struct {
	ContractID     uuid.UUID
	TransferMethod string
}

// Initiate creates a pending transfer under an active contract.
// Only the provider moves data, so only the provider may initiate.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.Initiate")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	contract, err := s.contracts.GetByID(ctx, input.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.ProviderRole != role {
		return nil, lifecycle.NewUnauthorizedError("only the provider may initiate transfers for contract %s", input.ContractID)
	}
	if contract.Status != models.ContractStatusActive {
		return nil, lifecycle.NewContractNotActiveError(contract.ID, contract.Status)
	}
	if s.clock.Now().After(contract.ValidUntil) {
		return nil, lifecycle.NewContractNotActiveError(contract.ID, "past valid_until")
	}

	method := input.TransferMethod
	if method == "" {
		method = s.defaultMethod
	}

	transfer := &models.DataTransfer{
		ContractID:     contract.ID,
		PublicationID:  contract.PublicationID,
		InitiatorRole:  role,
		TransferMethod: method,
	}
	transfer.Logs.Data = []models.TransferLogEntry{{
		Timestamp: s.clock.Now(),
		Message:   "Transfer initiated",
	}}

	if err := s.transfers.Create(ctx, transfer); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"transfer_id": transfer.ID,
		"contract_id": contract.ID,
	}).Info("Transfer initiated")
	return transfer, nil
}

// Get retrieves a transfer visible to the caller
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.Get")
	defer span.End()

	_, transfer, err := s.loadForParty(ctx, id)
	return transfer, err
}

// ListByContract retrieves the transfers under a contract
func (s *Service) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.ListByContract")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ProviderRole != role && contract.ConsumerRole != role {
		return nil, lifecycle.NewUnauthorizedError("role %q is not a party to contract %s", role, contractID)
	}

	return s.transfers.ListByContract(ctx, contractID)
}

// List retrieves transfers under the caller's contracts
func (s *Service) List(ctx context.Context) ([]models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.List")
	defer span.End()

	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.transfers.ListByRole(ctx, role)
}

// Start moves a pending transfer to In Progress. Provider only.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.Start")
	defer span.End()

	if _, err := s.loadForProvider(ctx, id); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.transfers.UpdateStatus(ctx, id,
		[]models.TransferStatus{models.TransferStatusPending},
		models.TransferStatusInProgress,
		repositories.TransferStatusUpdate{
			StartedAt: &now,
			LogEntry:  &models.TransferLogEntry{Timestamp: now, Message: "Transfer started"},
		})
}

// ReportProgress records a new byte count for an in-progress transfer.
// The counter is monotonic and bounded by the publication's declared
// size; reporting the same count twice is a harmless no-op. Progress
// never changes status, completion is an explicit call.
func (s *Service) ReportProgress(ctx context.Context, id uuid.UUID, bytes int64) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.ReportProgress")
	defer span.End()

	current, err := s.loadForProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if bytes < 0 {
		return nil, lifecycle.NewConstraintViolationError("progress for transfer %s cannot be negative", id)
	}

	publication, err := s.publications.GetByID(ctx, current.PublicationID)
	if err != nil {
		return nil, err
	}
	if publication.FileSize != nil && bytes > *publication.FileSize {
		return nil, lifecycle.NewConstraintViolationError("progress %d for transfer %s exceeds the publication size %d", bytes, id, *publication.FileSize)
	}

	return s.transfers.UpdateProgress(ctx, id, bytes)
}

// Complete moves an in-progress transfer to Completed. Provider only.
// The byte counter is reconciled to the publication's declared size.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.Complete")
	defer span.End()

	current, err := s.loadForProvider(ctx, id)
	if err != nil {
		return nil, err
	}

	update := repositories.TransferStatusUpdate{}
	publication, err := s.publications.GetByID(ctx, current.PublicationID)
	if err != nil {
		return nil, err
	}
	if publication.FileSize != nil {
		update.BytesTransferred = publication.FileSize
	}

	now := s.clock.Now()
	update.CompletedAt = &now
	update.LogEntry = &models.TransferLogEntry{Timestamp: now, Message: "Transfer completed"}
	transfer, err := s.transfers.UpdateStatus(ctx, id,
		[]models.TransferStatus{models.TransferStatusInProgress},
		models.TransferStatusCompleted,
		update)
	if err != nil {
		return nil, err
	}
	metrics.TransfersFinishedTotal.WithLabelValues(string(models.TransferStatusCompleted)).Inc()

	s.emitFinished(ctx, events.EventTypeTransferCompleted, transfer)
	return transfer, nil
}

// Fail moves an in-progress transfer to Failed. Provider only.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.Fail")
	defer span.End()

	if _, err := s.loadForProvider(ctx, id); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "transfer failed"
	}
	now := s.clock.Now()
	transfer, err := s.transfers.UpdateStatus(ctx, id,
		[]models.TransferStatus{models.TransferStatusInProgress},
		models.TransferStatusFailed,
		repositories.TransferStatusUpdate{
			CompletedAt:   &now,
			FailureReason: &reason,
			LogEntry:      &models.TransferLogEntry{Timestamp: now, Message: "Transfer failed: " + reason},
		})
	if err != nil {
		return nil, err
	}
	metrics.TransfersFinishedTotal.WithLabelValues(string(models.TransferStatusFailed)).Inc()

	s.emitFinished(ctx, events.EventTypeTransferFailed, transfer)
	return transfer, nil
}

// Cancel moves a non-terminal transfer to Cancelled. Either party.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.Cancel")
	defer span.End()

	role, _, err := s.loadForPartyWithRole(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	transfer, err := s.transfers.UpdateStatus(ctx, id,
		[]models.TransferStatus{models.TransferStatusPending, models.TransferStatusInProgress},
		models.TransferStatusCancelled,
		repositories.TransferStatusUpdate{
			CancelledAt: &now,
			LogEntry:    &models.TransferLogEntry{Timestamp: now, Message: "Transfer cancelled by " + role},
		})
	if err != nil {
		return nil, err
	}
	metrics.TransfersFinishedTotal.WithLabelValues(string(models.TransferStatusCancelled)).Inc()

	s.emitFinished(ctx, events.EventTypeTransferCancelled, transfer)
	return transfer, nil
}

func (s *Service) loadForParty(ctx context.Context, id uuid.UUID) (*models.DataContract, *models.DataTransfer, error) {
	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, nil, err
	}

	transfer, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	contract, err := s.contracts.GetByID(ctx, transfer.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if contract.ProviderRole != role && contract.ConsumerRole != role {
		return nil, nil, lifecycle.NewUnauthorizedError("role %q is not a party to transfer %s", role, id)
	}
	return contract, transfer, nil
}

func (s *Service) loadForPartyWithRole(ctx context.Context, id uuid.UUID) (string, *models.DataTransfer, error) {
	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return "", nil, err
	}
	_, transfer, err := s.loadForParty(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return role, transfer, nil
}

// ProgressPercents derives presentation percentages for a page of
// transfers, resolving each publication's declared size once. A failed
// size lookup falls back to the status estimate; progress is display
// data and never worth failing a read for.
func (s *Service) ProgressPercents(ctx context.Context, transfers []models.DataTransfer) []int {
	sizes := make(map[uuid.UUID]*int64)
	out := make([]int, len(transfers))
	for i := range transfers {
		t := &transfers[i]
		size, ok := sizes[t.PublicationID]
		if !ok {
			if publication, err := s.publications.GetByID(ctx, t.PublicationID); err == nil {
				size = publication.FileSize
			}
			sizes[t.PublicationID] = size
		}
		out[i] = t.ProgressPercent(size)
	}
	return out
}

// ProgressPercent derives the presentation percentage for one transfer
func (s *Service) ProgressPercent(ctx context.Context, t *models.DataTransfer) int {
	return s.ProgressPercents(ctx, []models.DataTransfer{*t})[0]
}

// DownloadURL resolves the publication file behind a completed transfer
// to a downloadable URL. Either party may download.
func (s *Service) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "transfer.Service.DownloadURL")
	defer span.End()

	_, transfer, err := s.loadForParty(ctx, id)
	if err != nil {
		return "", err
	}
	if transfer.Status != models.TransferStatusCompleted {
		return "", lifecycle.NewInvalidStateError("transfer %s is %s; downloads require a Completed transfer", id, transfer.Status)
	}

	publication, err := s.publications.GetByID(ctx, transfer.PublicationID)
	if err != nil {
		return "", err
	}
	if publication.FilePath == nil || *publication.FilePath == "" {
		return "", lifecycle.NewNotFoundError("publication %s has no stored file", publication.ID)
	}

	return s.resolver.Resolve(ctx, *publication.FilePath)
}

func (s *Service) loadForProvider(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	role, err := repositories.GetActingRole(ctx)
	if err != nil {
		return nil, err
	}

	transfer, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	contract, err := s.contracts.GetByID(ctx, transfer.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.ProviderRole != role {
		return nil, lifecycle.NewUnauthorizedError("only the provider may drive transfer %s", id)
	}
	return transfer, nil
}

// emitFinished publishes the terminal event. The status is already
// committed, so emit failures are logged and counted, not returned.
func (s *Service) emitFinished(ctx context.Context, eventType events.EventType, transfer *models.DataTransfer) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitTransferFinished(ctx, eventType, transfer); err != nil {
		metrics.EventEmitFailuresTotal.WithLabelValues(string(eventType)).Inc()
	}
}
