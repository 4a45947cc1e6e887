package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// PublicationHandler handles publication API endpoints
type PublicationHandler struct {
	repo   repositories.PublicationRepo
	logger ectologger.Logger
}

// NewPublicationHandler creates a new publication handler
func NewPublicationHandler(repo repositories.PublicationRepo, logger ectologger.Logger) *PublicationHandler {
	return &PublicationHandler{
		repo:   repo,
		logger: logger,
	}
}

// CreatePublicationRequest represents the create publication request body
type CreatePublicationRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
	UsagePolicy string  `json:"usage_policy" validate:"required"`
	FilePath    *string `json:"file_path,omitempty"`
	FileSize    *int64  `json:"file_size,omitempty"`
}

// UpdatePublicationRequest represents the update publication request body
type UpdatePublicationRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
	UsagePolicy string  `json:"usage_policy" validate:"required"`
	FilePath    *string `json:"file_path,omitempty"`
	FileSize    *int64  `json:"file_size,omitempty"`
}

// Register registers publication routes
func (h *PublicationHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List returns publications, all or filtered to the caller's
func (h *PublicationHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PublicationHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	if c.QueryParam("mine") == "true" {
		role, err := GetActingRole(c)
		if err != nil {
			return err
		}
		publications, err := h.repo.ListByPublisher(ctx, role)
		if err != nil {
			return err
		}
		return SuccessResponse(c, publications)
	}

	publications, err := h.repo.List(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, publications)
}

// Create publishes a new dataset
func (h *PublicationHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PublicationHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	role, err := GetActingRole(c)
	if err != nil {
		return err
	}

	var req CreatePublicationRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	publication := &models.DataPublication{
		Title:         req.Title,
		Description:   req.Description,
		PublisherRole: role,
		UsagePolicy:   req.UsagePolicy,
		FilePath:      req.FilePath,
		FileSize:      req.FileSize,
	}

	if err := h.repo.Create(ctx, publication); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to create publication")
		return err
	}

	h.logger.WithContext(ctx).Infof("Created publication: %s", publication.ID)
	return CreatedResponse(c, publication)
}

// GetByID returns a publication by ID
func (h *PublicationHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PublicationHandler.GetByID")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	publication, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, publication)
}

// Update updates a publication owned by the caller
func (h *PublicationHandler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PublicationHandler.Update")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	role, err := GetActingRole(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpdatePublicationRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.PublisherRole != role {
		return lifecycle.NewUnauthorizedError("only the publisher may update publication %s", id)
	}

	existing.Title = req.Title
	existing.Description = req.Description
	existing.UsagePolicy = req.UsagePolicy
	existing.FilePath = req.FilePath
	existing.FileSize = req.FileSize

	if err := h.repo.Update(ctx, existing); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to update publication")
		return err
	}
	return SuccessResponse(c, existing)
}

// Delete removes a publication owned by the caller
func (h *PublicationHandler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PublicationHandler.Delete")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	role, err := GetActingRole(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.PublisherRole != role {
		return lifecycle.NewUnauthorizedError("only the publisher may delete publication %s", id)
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to delete publication")
		return err
	}
	return NoContentResponse(c)
}
