// Package memory provides in-memory repository implementations that
// mirror the postgres repositories' transition semantics. Used by the
// lifecycle service tests so they can run without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

// Store bundles the in-memory repositories over one shared dataset
type Store struct {
	mu           sync.Mutex
	clock        clock.Clock
	publications map[uuid.UUID]models.DataPublication
	requests     map[uuid.UUID]models.DataRequest
	contracts    map[uuid.UUID]models.DataContract
	transfers    map[uuid.UUID]models.DataTransfer
}

// NewStore creates an empty in-memory store
func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock:        clk,
		publications: make(map[uuid.UUID]models.DataPublication),
		requests:     make(map[uuid.UUID]models.DataRequest),
		contracts:    make(map[uuid.UUID]models.DataContract),
		transfers:    make(map[uuid.UUID]models.DataTransfer),
	}
}

func (s *Store) Publications() repositories.PublicationRepo { return &publicationRepo{s} }
func (s *Store) Requests() repositories.RequestRepo         { return &requestRepo{s} }
func (s *Store) Contracts() repositories.ContractRepo       { return &contractRepo{s} }
func (s *Store) Transfers() repositories.TransferRepo       { return &transferRepo{s} }

type publicationRepo struct{ s *Store }

func (r *publicationRepo) Create(ctx context.Context, publication *models.DataPublication) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if publication.ID == uuid.Nil {
		publication.ID = uuid.New()
	}
	publication.CreatedAt = r.s.clock.Now()
	publication.UpdatedAt = publication.CreatedAt
	r.s.publications[publication.ID] = *publication
	return nil
}

func (r *publicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DataPublication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	publication, ok := r.s.publications[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("publication %s not found", id)
	}
	return &publication, nil
}

func (r *publicationRepo) List(ctx context.Context) ([]models.DataPublication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]models.DataPublication, 0, len(r.s.publications))
	for _, publication := range r.s.publications {
		out = append(out, publication)
	}
	return out, nil
}

func (r *publicationRepo) ListByPublisher(ctx context.Context, role string) ([]models.DataPublication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataPublication
	for _, publication := range r.s.publications {
		if publication.PublisherRole == role {
			out = append(out, publication)
		}
	}
	return out, nil
}

func (r *publicationRepo) Update(ctx context.Context, publication *models.DataPublication) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.publications[publication.ID]; !ok {
		return lifecycle.NewNotFoundError("publication %s not found", publication.ID)
	}
	publication.UpdatedAt = r.s.clock.Now()
	r.s.publications[publication.ID] = *publication
	return nil
}

func (r *publicationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.publications[id]; !ok {
		return lifecycle.NewNotFoundError("publication %s not found", id)
	}
	delete(r.s.publications, id)
	return nil
}

type requestRepo struct{ s *Store }

func (r *requestRepo) Create(ctx context.Context, request *models.DataRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.publications[request.PublicationID]; !ok {
		return lifecycle.NewNotFoundError("publication %s not found", request.PublicationID)
	}
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	request.CreatedAt = r.s.clock.Now()
	request.UpdatedAt = request.CreatedAt
	r.s.requests[request.ID] = *request
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DataRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	request, ok := r.s.requests[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("request %s not found", id)
	}
	return &request, nil
}

func (r *requestRepo) ListSent(ctx context.Context, role string) ([]models.DataRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataRequest
	for _, request := range r.s.requests {
		if request.RequesterRole == role {
			out = append(out, request)
		}
	}
	return out, nil
}

func (r *requestRepo) ListReceived(ctx context.Context, role string) ([]models.DataRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataRequest
	for _, request := range r.s.requests {
		publication, ok := r.s.publications[request.PublicationID]
		if ok && publication.PublisherRole == role {
			out = append(out, request)
		}
	}
	return out, nil
}

func (r *requestRepo) Decide(ctx context.Context, id uuid.UUID, target models.RequestStatus, note *string, decidedAt time.Time) (*models.DataRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	request, ok := r.s.requests[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("request %s not found", id)
	}
	if !request.Status.CanTransitionTo(target) {
		return nil, lifecycle.NewInvalidTransitionError("request", request.Status, target)
	}
	request.Status = target
	if target == models.RequestStatusApproved || target == models.RequestStatusRejected {
		request.DecisionNote = note
		request.DecidedAt = &decidedAt
	}
	request.UpdatedAt = r.s.clock.Now()
	r.s.requests[id] = request
	return &request, nil
}

func (r *requestRepo) DeletePending(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	request, ok := r.s.requests[id]
	if !ok {
		return lifecycle.NewNotFoundError("request %s not found", id)
	}
	if request.Status != models.RequestStatusPending {
		return lifecycle.NewInvalidTransitionError("request", request.Status, "cancelled")
	}
	delete(r.s.requests, id)
	return nil
}

func (r *requestRepo) ListExpirable(ctx context.Context, olderThan time.Time, limit int) ([]models.DataRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataRequest
	for _, request := range r.s.requests {
		if request.Status == models.RequestStatusPending && request.CreatedAt.Before(olderThan) {
			out = append(out, request)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type contractRepo struct{ s *Store }

func (r *contractRepo) Create(ctx context.Context, contract *models.DataContract) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.contracts {
		if existing.RequestID == contract.RequestID {
			return lifecycle.NewDuplicateContractError(contract.RequestID)
		}
	}
	if _, ok := r.s.requests[contract.RequestID]; !ok {
		return lifecycle.NewNotFoundError("request %s not found", contract.RequestID)
	}
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	if contract.Status == "" {
		contract.Status = models.ContractStatusActive
	}
	contract.CreatedAt = r.s.clock.Now()
	contract.UpdatedAt = contract.CreatedAt
	r.s.contracts[contract.ID] = *contract
	return nil
}

func (r *contractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DataContract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	contract, ok := r.s.contracts[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("contract %s not found", id)
	}
	return &contract, nil
}

func (r *contractRepo) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.DataContract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, contract := range r.s.contracts {
		if contract.RequestID == requestID {
			return &contract, nil
		}
	}
	return nil, lifecycle.NewNotFoundError("no contract for request %s", requestID)
}

func (r *contractRepo) ListByRole(ctx context.Context, role string) ([]models.DataContract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataContract
	for _, contract := range r.s.contracts {
		if contract.ProviderRole == role || contract.ConsumerRole == role {
			out = append(out, contract)
		}
	}
	return out, nil
}

func (r *contractRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []models.ContractStatus, target models.ContractStatus, terminatedAt *time.Time) (*models.DataContract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	contract, ok := r.s.contracts[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("contract %s not found", id)
	}
	allowed := false
	for _, status := range from {
		if contract.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, lifecycle.NewInvalidTransitionError("contract", contract.Status, target)
	}
	contract.Status = target
	if terminatedAt != nil {
		contract.TerminatedAt = terminatedAt
	}
	contract.UpdatedAt = r.s.clock.Now()
	r.s.contracts[id] = contract
	return &contract, nil
}

type transferRepo struct{ s *Store }

func (r *transferRepo) Create(ctx context.Context, transfer *models.DataTransfer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.contracts[transfer.ContractID]; !ok {
		return lifecycle.NewNotFoundError("contract %s not found", transfer.ContractID)
	}
	if transfer.ID == uuid.Nil {
		transfer.ID = uuid.New()
	}
	if transfer.Status == "" {
		transfer.Status = models.TransferStatusPending
	}
	if transfer.Logs.Data == nil {
		transfer.Logs.Data = []models.TransferLogEntry{}
	}
	transfer.CreatedAt = r.s.clock.Now()
	transfer.UpdatedAt = transfer.CreatedAt
	r.s.transfers[transfer.ID] = *transfer
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	transfer, ok := r.s.transfers[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("transfer %s not found", id)
	}
	return &transfer, nil
}

func (r *transferRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.DataTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataTransfer
	for _, transfer := range r.s.transfers {
		if transfer.ContractID == contractID {
			out = append(out, transfer)
		}
	}
	return out, nil
}

func (r *transferRepo) ListByRole(ctx context.Context, role string) ([]models.DataTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.DataTransfer
	for _, transfer := range r.s.transfers {
		contract, ok := r.s.contracts[transfer.ContractID]
		if ok && (contract.ProviderRole == role || contract.ConsumerRole == role) {
			out = append(out, transfer)
		}
	}
	return out, nil
}

func (r *transferRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []models.TransferStatus, target models.TransferStatus, update repositories.TransferStatusUpdate) (*models.DataTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	transfer, ok := r.s.transfers[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("transfer %s not found", id)
	}
	allowed := false
	for _, status := range from {
		if transfer.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, lifecycle.NewInvalidTransitionError("transfer", transfer.Status, target)
	}
	transfer.Status = target
	if update.StartedAt != nil {
		transfer.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		transfer.CompletedAt = update.CompletedAt
	}
	if update.CancelledAt != nil {
		transfer.CancelledAt = update.CancelledAt
	}
	if update.FailureReason != nil {
		transfer.FailureReason = update.FailureReason
	}
	if update.BytesTransferred != nil {
		transfer.BytesTransferred = *update.BytesTransferred
	}
	if update.LogEntry != nil {
		transfer.Logs.Data = append(transfer.Logs.Data, *update.LogEntry)
	}
	transfer.UpdatedAt = r.s.clock.Now()
	r.s.transfers[id] = transfer
	return &transfer, nil
}

func (r *transferRepo) UpdateProgress(ctx context.Context, id uuid.UUID, bytes int64) (*models.DataTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	transfer, ok := r.s.transfers[id]
	if !ok {
		return nil, lifecycle.NewNotFoundError("transfer %s not found", id)
	}
	if transfer.Status != models.TransferStatusInProgress {
		return nil, lifecycle.NewInvalidStateError("transfer %s is %s; progress can only be reported while In Progress", id, transfer.Status)
	}
	if bytes < transfer.BytesTransferred {
		return nil, lifecycle.NewConstraintViolationError("progress for transfer %s cannot decrease from %d to %d", id, transfer.BytesTransferred, bytes)
	}
	transfer.BytesTransferred = bytes
	transfer.UpdatedAt = r.s.clock.Now()
	r.s.transfers[id] = transfer
	return &transfer, nil
}

func (r *transferRepo) AppendLog(ctx context.Context, id uuid.UUID, entry models.TransferLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	transfer, ok := r.s.transfers[id]
	if !ok {
		return lifecycle.NewNotFoundError("transfer %s not found", id)
	}
	transfer.Logs.Data = append(transfer.Logs.Data, entry)
	transfer.UpdatedAt = r.s.clock.Now()
	r.s.transfers[id] = transfer
	return nil
}

func (r *transferRepo) CancelForContract(ctx context.Context, contractID uuid.UUID, entry models.TransferLogEntry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var cancelled int64
	for id, transfer := range r.s.transfers {
		if transfer.ContractID != contractID {
			continue
		}
		if transfer.Status != models.TransferStatusPending && transfer.Status != models.TransferStatusInProgress {
			continue
		}
		transfer.Status = models.TransferStatusCancelled
		now := r.s.clock.Now()
		transfer.CancelledAt = &now
		transfer.Logs.Data = append(transfer.Logs.Data, entry)
		transfer.UpdatedAt = now
		r.s.transfers[id] = transfer
		cancelled++
	}
	return cancelled, nil
}
