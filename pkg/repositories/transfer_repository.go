package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const transfersTable = "data_transfers"

// TransferRepository handles database operations for data transfers
type TransferRepository struct {
	*Repository
}

// NewTransferRepository creates a new data transfer repository
func NewTransferRepository(db database.DB, logger ectologger.Logger) *TransferRepository {
	return &TransferRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new pending transfer
func (r *TransferRepository) Create(ctx context.Context, transfer *models.DataTransfer) error {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.Create")
	defer span.End()

	if transfer.ID == uuid.Nil {
		transfer.ID = uuid.New()
	}
	transfer.Status = models.TransferStatusPending
	if transfer.Logs.Data == nil {
		transfer.Logs.Data = []models.TransferLogEntry{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(transfersTable).
		Cols(
			"id", "contract_id", "publication_id", "initiator_role",
			"status", "transfer_method", "logs", "created_at", "updated_at",
		).
		Values(
			transfer.ID, transfer.ContractID, transfer.PublicationID, transfer.InitiatorRole,
			transfer.Status, transfer.TransferMethod, transfer.Logs,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"),
		)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&transfer.CreatedAt, &transfer.UpdatedAt)
	if isForeignKeyViolation(err) {
		return lifecycle.NewNotFoundError("contract %s does not exist", transfer.ContractID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contract_id": transfer.ContractID,
		}).Error("failed to create transfer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create transfer")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"transfer_id": transfer.ID,
		"contract_id": transfer.ContractID,
	}).Debugf("Created %s", transfersTable)
	return nil
}

// GetByID retrieves a transfer by ID
func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.GetByID")
	defer span.End()

	sb := database.NewStruct(new(models.DataTransfer)).SelectFrom(transfersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var transfer models.DataTransfer
	err := r.DB().GetContext(ctx, &transfer, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NewNotFoundError("transfer %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"transfer_id": id,
		}).Error("failed to get transfer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transfer")
	}
	return &transfer, nil
}

// ListByContract retrieves transfers belonging to a contract
func (r *TransferRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.ListByContract")
	defer span.End()

	sb := database.NewStruct(new(models.DataTransfer)).SelectFrom(transfersTable)
	sb.Where(sb.Equal("contract_id", contractID)).OrderBy("created_at").Desc()

	query, args := sb.Build()
	var transfers []models.DataTransfer
	err := r.DB().SelectContext(ctx, &transfers, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contract_id": contractID,
		}).Error("failed to list transfers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transfers")
	}
	return transfers, nil
}

// ListByRole retrieves transfers under contracts where the role is a party
func (r *TransferRepository) ListByRole(ctx context.Context, role string) ([]models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.ListByRole")
	defer span.End()

	query := `
		SELECT
			dt.id, dt.contract_id, dt.publication_id, dt.initiator_role,
			dt.status, dt.transfer_method, dt.bytes_transferred, dt.logs,
			dt.failure_reason, dt.started_at, dt.completed_at, dt.cancelled_at,
			dt.created_at, dt.updated_at
		FROM data_transfers dt
		INNER JOIN data_contracts dc ON dt.contract_id = dc.id
		WHERE dc.provider_role = $1 OR dc.consumer_role = $1
		ORDER BY dt.created_at DESC
	`

	var transfers []models.DataTransfer
	err := r.DB().SelectContext(ctx, &transfers, query, role)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"role": role,
		}).Error("failed to list transfers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transfers")
	}
	return transfers, nil
}

// UpdateStatus moves a transfer to target if its current status is one
// of from, appending a log entry and stamping timestamps in the same
// statement so the row never shows a status without its log line.
func (r *TransferRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []models.TransferStatus, target models.TransferStatus, update TransferStatusUpdate) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.UpdateStatus")
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
	if update.StartedAt != nil {
		assignments = append(assignments, ub.Assign("started_at", *update.StartedAt))
	}
	if update.CompletedAt != nil {
		assignments = append(assignments, ub.Assign("completed_at", *update.CompletedAt))
	}
	if update.CancelledAt != nil {
		assignments = append(assignments, ub.Assign("cancelled_at", *update.CancelledAt))
	}
	if update.FailureReason != nil {
		assignments = append(assignments, ub.Assign("failure_reason", *update.FailureReason))
	}
	if update.BytesTransferred != nil {
		assignments = append(assignments, ub.Assign("bytes_transferred", *update.BytesTransferred))
	}
	if update.LogEntry != nil {
		entryJSON, err := json.Marshal(update.LogEntry)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode transfer log")
		}
		assignments = append(assignments, "logs = logs || "+ub.Var(string(entryJSON))+"::jsonb")
	}
	ub.Update(transfersTable).
		Set(assignments...).
		Where(ub.Equal("id", id), ub.In("status", fromValues...))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"transfer_id": id,
			"target":      target,
		}).Error("failed to update transfer status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update transfer")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update transfer")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, lifecycle.NewInvalidTransitionError("transfer", current.Status, target)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"transfer_id": id,
		"status":      target,
	}).Debugf("Updated %s", transfersTable)
	return r.GetByID(ctx, id)
}

// UpdateProgress records a new byte count for an in-progress transfer.
// The WHERE clause makes the counter monotonic under concurrent
// reports; reporting the same count twice is a no-op that succeeds.
func (r *TransferRepository) UpdateProgress(ctx context.Context, id uuid.UUID, bytes int64) (*models.DataTransfer, error) {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.UpdateProgress")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(transfersTable).
		Set(
			ub.Assign("bytes_transferred", bytes),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("status", models.TransferStatusInProgress),
			ub.LessEqualThan("bytes_transferred", bytes),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"transfer_id": id,
			"bytes":       bytes,
		}).Error("failed to update transfer progress")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update transfer")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update transfer")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != models.TransferStatusInProgress {
			return nil, lifecycle.NewInvalidStateError("transfer %s is %s; progress can only be reported while In Progress", id, current.Status)
		}
		return nil, lifecycle.NewConstraintViolationError("progress for transfer %s cannot decrease from %d to %d", id, current.BytesTransferred, bytes)
	}
	return r.GetByID(ctx, id)
}

// AppendLog adds a log entry without changing status
func (r *TransferRepository) AppendLog(ctx context.Context, id uuid.UUID, entry models.TransferLogEntry) error {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.AppendLog")
	defer span.End()

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode transfer log")
	}

	ub := database.NewUpdateBuilder()
	ub.Update(transfersTable).
		Set(
			"logs = logs || "+ub.Var(string(entryJSON))+"::jsonb",
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"transfer_id": id,
		}).Error("failed to append transfer log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update transfer")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update transfer")
	}
	if rows == 0 {
		return lifecycle.NewNotFoundError("transfer %s does not exist", id)
	}
	return nil
}

// CancelForContract cancels every non-terminal transfer under a
// contract, returning how many were cancelled. Terminal transfers keep
// their outcome.
func (r *TransferRepository) CancelForContract(ctx context.Context, contractID uuid.UUID, entry models.TransferLogEntry) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "TransferRepository.CancelForContract")
	defer span.End()

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode transfer log")
	}

	ub := database.NewUpdateBuilder()
	ub.Update(transfersTable).
		Set(
			ub.Assign("status", models.TransferStatusCancelled),
			ub.Assign("cancelled_at", sqlbuilder.Raw("NOW()")),
			"logs = logs || "+ub.Var(string(entryJSON))+"::jsonb",
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("contract_id", contractID),
			ub.In("status", string(models.TransferStatusPending), string(models.TransferStatusInProgress)),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contract_id": contractID,
		}).Error("failed to cancel transfers for contract")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cancel transfers")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cancel transfers")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"contract_id": contractID,
		"cancelled":   rows,
	}).Debugf("Updated %s", transfersTable)
	return rows, nil
}
