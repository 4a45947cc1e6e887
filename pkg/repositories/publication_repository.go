package repositories

import (
	"context"
	"database/sql"
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

const publicationsTable = "data_publications"

// PublicationRepository handles database operations for data publications
type PublicationRepository struct {
	*Repository
}

// NewPublicationRepository creates a new data publication repository
func NewPublicationRepository(db database.DB, logger ectologger.Logger) *PublicationRepository {
	return &PublicationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new publication
func (r *PublicationRepository) Create(ctx context.Context, publication *models.DataPublication) error {
	ctx, span := tracing.StartSpan(ctx, "PublicationRepository.Create")
	defer span.End()

	if publication.ID == uuid.Nil {
		publication.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(publicationsTable).
		Cols(
			"id", "title", "description", "publisher_role", "usage_policy",
			"file_path", "file_size", "created_at", "updated_at",
		).
		Values(
			publication.ID, publication.Title, publication.Description, publication.PublisherRole, publication.UsagePolicy,
			publication.FilePath, publication.FileSize,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"),
		)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&publication.CreatedAt, &publication.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"publication_id": publication.ID,
		}).Error("failed to create publication")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create publication")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"publication_id": publication.ID,
	}).Debugf("Created %s", publicationsTable)
	return nil
}

// GetByID retrieves a publication by ID
func (r *PublicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataPublication, error) {
	ctx, span := tracing.StartSpan(ctx, "PublicationRepository.GetByID")
	defer span.End()

	sb := database.NewStruct(new(models.DataPublication)).SelectFrom(publicationsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var publication models.DataPublication
	err := r.DB().GetContext(ctx, &publication, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NewNotFoundError("publication %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"publication_id": id,
		}).Error("failed to get publication")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get publication")
	}
	return &publication, nil
}

// List retrieves all publications in the dataspace
func (r *PublicationRepository) List(ctx context.Context) ([]models.DataPublication, error) {
	ctx, span := tracing.StartSpan(ctx, "PublicationRepository.List")
	defer span.End()

	sb := database.NewStruct(new(models.DataPublication)).SelectFrom(publicationsTable)
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var publications []models.DataPublication
	err := r.DB().SelectContext(ctx, &publications, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list publications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list publications")
	}
	return publications, nil
}

// ListByPublisher retrieves publications owned by a role
func (r *PublicationRepository) ListByPublisher(ctx context.Context, role string) ([]models.DataPublication, error) {
	ctx, span := tracing.StartSpan(ctx, "PublicationRepository.ListByPublisher")
	defer span.End()

	sb := database.NewStruct(new(models.DataPublication)).SelectFrom(publicationsTable)
	sb.Where(sb.Equal("publisher_role", role)).OrderBy("created_at").Desc()

	query, args := sb.Build()
	var publications []models.DataPublication
	err := r.DB().SelectContext(ctx, &publications, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"role": role,
		}).Error("failed to list publications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list publications")
	}
	return publications, nil
}

// Update updates an existing publication's metadata
func (r *PublicationRepository) Update(ctx context.Context, publication *models.DataPublication) error {
	ctx, span := tracing.StartSpan(ctx, "PublicationRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(publicationsTable).
		Set(
			ub.Assign("title", publication.Title),
			ub.Assign("description", publication.Description),
			ub.Assign("usage_policy", publication.UsagePolicy),
			ub.Assign("file_path", publication.FilePath),
			ub.Assign("file_size", publication.FileSize),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", publication.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&publication.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.NewNotFoundError("publication %s does not exist", publication.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"publication_id": publication.ID,
		}).Error("failed to update publication")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update publication")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"publication_id": publication.ID,
	}).Debugf("Updated %s", publicationsTable)
	return nil
}

// Delete deletes a publication by ID
func (r *PublicationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "PublicationRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(publicationsTable).Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"publication_id": id,
		}).Error("failed to delete publication")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete publication")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete publication")
	}
	if rows == 0 {
		return lifecycle.NewNotFoundError("publication %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"publication_id": id,
	}).Debugf("Deleted from %s", publicationsTable)
	return nil
}
