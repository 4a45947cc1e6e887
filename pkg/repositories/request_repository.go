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

const requestsTable = "data_requests"

// RequestRepository handles database operations for data requests
type RequestRepository struct {
	*Repository
}

// NewRequestRepository creates a new data request repository
func NewRequestRepository(db database.DB, logger ectologger.Logger) *RequestRepository {
	return &RequestRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new pending request
func (r *RequestRepository) Create(ctx context.Context, request *models.DataRequest) error {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.Create")
	defer span.End()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	request.Status = models.RequestStatusPending

	ib := database.NewInsertBuilder()
	ib.InsertInto(requestsTable).
		Cols(
			"id", "publication_id", "requester_role", "request_type",
			"status", "message", "created_at", "updated_at",
		).
		Values(
			request.ID, request.PublicationID, request.RequesterRole, request.RequestType,
			request.Status, request.Message,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"),
		)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&request.CreatedAt, &request.UpdatedAt)
	if isForeignKeyViolation(err) {
		return lifecycle.NewNotFoundError("publication %s does not exist", request.PublicationID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": request.ID,
		}).Error("failed to create request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create request")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id": request.ID,
	}).Debugf("Created %s", requestsTable)
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.GetByID")
	defer span.End()

	sb := database.NewStruct(new(models.DataRequest)).SelectFrom(requestsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var request models.DataRequest
	err := r.DB().GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NewNotFoundError("request %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
		}).Error("failed to get request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get request")
	}
	return &request, nil
}

// ListSent retrieves requests the role has made as a consumer
func (r *RequestRepository) ListSent(ctx context.Context, role string) ([]models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.ListSent")
	defer span.End()

	sb := database.NewStruct(new(models.DataRequest)).SelectFrom(requestsTable)
	sb.Where(sb.Equal("requester_role", role)).OrderBy("created_at").Desc()

	query, args := sb.Build()
	var requests []models.DataRequest
	err := r.DB().SelectContext(ctx, &requests, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"role": role,
		}).Error("failed to list sent requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list requests")
	}
	return requests, nil
}

// ListReceived retrieves requests against publications the role publishes
func (r *RequestRepository) ListReceived(ctx context.Context, role string) ([]models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.ListReceived")
	defer span.End()

	query := `
		SELECT
			dr.id, dr.publication_id, dr.requester_role, dr.request_type,
			dr.status, dr.message, dr.decision_note, dr.decided_at,
			dr.created_at, dr.updated_at
		FROM data_requests dr
		INNER JOIN data_publications dp ON dr.publication_id = dp.id
		WHERE dp.publisher_role = $1
		ORDER BY dr.created_at DESC
	`

	var requests []models.DataRequest
	err := r.DB().SelectContext(ctx, &requests, query, role)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"role": role,
		}).Error("failed to list received requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list requests")
	}
	return requests, nil
}

// Decide moves a pending request to a decided status. The status
// precondition lives in the WHERE clause so racing deciders cannot
// both win; zero rows means the request is gone or already decided.
func (r *RequestRepository) Decide(ctx context.Context, id uuid.UUID, target models.RequestStatus, note *string, decidedAt time.Time) (*models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.Decide")
	defer span.End()

	ub := database.NewUpdateBuilder()
	assignments := []string{
		ub.Assign("status", target),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	}
	// Expiry is a system decision, not a party response; only
	// approve/reject stamp the response time and note.
	if target == models.RequestStatusApproved || target == models.RequestStatusRejected {
		assignments = append(assignments,
			ub.Assign("decision_note", note),
			ub.Assign("decided_at", decidedAt),
		)
	}
	ub.Update(requestsTable).
		Set(assignments...).
		Where(ub.Equal("id", id), ub.Equal("status", models.RequestStatusPending))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
			"target":     target,
		}).Error("failed to decide request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, lifecycle.NewInvalidTransitionError("request", current.Status, target)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id": id,
		"status":     target,
	}).Debugf("Updated %s", requestsTable)
	return r.GetByID(ctx, id)
}

// DeletePending removes a request that has not been decided yet.
// Cancellation is a hard delete, not a status.
func (r *RequestRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.DeletePending")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(requestsTable).
		Where(db.Equal("id", id), db.Equal("status", models.RequestStatusPending))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
		}).Error("failed to delete request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete request")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete request")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return lifecycle.NewInvalidTransitionError("request", current.Status, "cancelled")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id": id,
	}).Debugf("Deleted from %s", requestsTable)
	return nil
}

// ListExpirable retrieves pending requests created before the cutoff
func (r *RequestRepository) ListExpirable(ctx context.Context, olderThan time.Time, limit int) ([]models.DataRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.ListExpirable")
	defer span.End()

	sb := database.NewStruct(new(models.DataRequest)).SelectFrom(requestsTable)
	sb.Where(
		sb.Equal("status", models.RequestStatusPending),
		sb.LessThan("created_at", olderThan),
	).OrderBy("created_at").Asc().Limit(limit)

	query, args := sb.Build()
	var requests []models.DataRequest
	err := r.DB().SelectContext(ctx, &requests, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list expirable requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list requests")
	}
	return requests, nil
}
