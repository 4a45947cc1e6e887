package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const contractsTable = "data_contracts"

// ContractRepository handles database operations for data contracts
type ContractRepository struct {
	*Repository
}

// NewContractRepository creates a new data contract repository
func NewContractRepository(db database.DB, logger ectologger.Logger) *ContractRepository {
	return &ContractRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new active contract. The unique index on request_id
// is the authority on one-contract-per-request; a violation surfaces as
// a duplicate contract error so callers can fetch the winner instead.
func (r *ContractRepository) Create(ctx context.Context, contract *models.DataContract) error {
	ctx, span := tracing.StartSpan(ctx, "ContractRepository.Create")
	defer span.End()

	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	contract.Status = models.ContractStatusActive

	ib := database.NewInsertBuilder()
	ib.InsertInto(contractsTable).
		Cols(
			"id", "request_id", "publication_id", "provider_role", "consumer_role",
			"status", "terms", "valid_until", "created_at", "updated_at",
		).
		Values(
			contract.ID, contract.RequestID, contract.PublicationID, contract.ProviderRole, contract.ConsumerRole,
			contract.Status, contract.Terms, contract.ValidUntil,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"),
		)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&contract.CreatedAt, &contract.UpdatedAt)
	if isUniqueViolation(err) {
		return lifecycle.NewDuplicateContractError(contract.RequestID)
	}
	if isForeignKeyViolation(err) {
		return lifecycle.NewNotFoundError("request %s does not exist", contract.RequestID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": contract.RequestID,
		}).Error("failed to create contract")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contract")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"contract_id": contract.ID,
		"request_id":  contract.RequestID,
	}).Debugf("Created %s", contractsTable)
	return nil
}

// GetByID retrieves a contract by ID
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "ContractRepository.GetByID")
	defer span.End()

	sb := database.NewStruct(new(models.DataContract)).SelectFrom(contractsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var contract models.DataContract
	err := r.DB().GetContext(ctx, &contract, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NewNotFoundError("contract %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contract_id": id,
		}).Error("failed to get contract")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contract")
	}
	return &contract, nil
}

// GetByRequestID retrieves the contract created for a request
func (r *ContractRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "ContractRepository.GetByRequestID")
	defer span.End()

	sb := database.NewStruct(new(models.DataContract)).SelectFrom(contractsTable)
	sb.Where(sb.Equal("request_id", requestID))

	query, args := sb.Build()
	var contract models.DataContract
	err := r.DB().GetContext(ctx, &contract, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NewNotFoundError("no contract exists for request %s", requestID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": requestID,
		}).Error("failed to get contract")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contract")
	}
	return &contract, nil
}

// ListByRole retrieves contracts where the role is provider or consumer
func (r *ContractRepository) ListByRole(ctx context.Context, role string) ([]models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "ContractRepository.ListByRole")
	defer span.End()

	sb := database.NewStruct(new(models.DataContract)).SelectFrom(contractsTable)
	sb.Where(sb.Or(sb.Equal("provider_role", role), sb.Equal("consumer_role", role))).
		OrderBy("created_at").Desc()

	query, args := sb.Build()
	var contracts []models.DataContract
	err := r.DB().SelectContext(ctx, &contracts, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"role": role,
		}).Error("failed to list contracts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contracts")
	}
	return contracts, nil
}

// UpdateStatus moves a contract to target if its current status is one
// of from. Zero affected rows means the contract is missing or in a
// status the transition does not allow.
func (r *ContractRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []models.ContractStatus, target models.ContractStatus, terminatedAt *time.Time) (*models.DataContract, error) {
	ctx, span := tracing.StartSpan(ctx, "ContractRepository.UpdateStatus")
	defer span.End()

	fromValues := make([]any, 0, len(from))
	for _, s := range from {
		fromValues = append(fromValues, s)
	}

	ub := database.NewUpdateBuilder()
	assignments := []string{
		ub.Assign("status", target),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	}
	if terminatedAt != nil {
		assignments = append(assignments, ub.Assign("terminated_at", *terminatedAt))
	}
	ub.Update(contractsTable).
		Set(assignments...).
		Where(ub.Equal("id", id), ub.In("status", fromValues...))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contract_id": id,
			"target":      target,
		}).Error("failed to update contract status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update contract")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update contract")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, lifecycle.NewInvalidTransitionError("contract", current.Status, target)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"contract_id": id,
		"status":      target,
	}).Debugf("Updated %s", contractsTable)
	return r.GetByID(ctx, id)
}
