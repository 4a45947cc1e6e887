package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/lifecycle/request"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RequestHandler handles data request API endpoints
type RequestHandler struct {
	service      *request.Service
	orchestrator *orchestrator.Orchestrator
	logger       ectologger.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(service *request.Service, orch *orchestrator.Orchestrator, logger ectologger.Logger) *RequestHandler {
	return &RequestHandler{
		service:      service,
		orchestrator: orch,
		logger:       logger,
	}
}

// CreateRequestRequest represents the create request body
type CreateRequestRequest struct {
	PublicationID string  `json:"publication_id" validate:"required,uuid"`
	RequestType   string  `json:"request_type" validate:"required"`
	Message       *string `json:"message,omitempty"`
}

// DecisionRequest represents an approve or reject body
type DecisionRequest struct {
	Note *string `json:"note,omitempty"`
}

// Register registers request routes
func (h *RequestHandler) Register(g *echo.Group) {
	g.GET("/sent", h.ListSent)
	g.GET("/received", h.ListReceived)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
	g.POST("/:id/contract", h.EnsureContract)
	g.DELETE("/:id", h.Cancel)
}

// Create opens a new data request
func (h *RequestHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req CreateRequestRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	publicationID, err := uuid.Parse(req.PublicationID)
	if err != nil {
		return BadRequest("invalid publication_id")
	}

	created, err := h.service.Create(ctx, request.CreateInput{
		PublicationID: publicationID,
		RequestType:   models.RequestType(req.RequestType),
		Message:       req.Message,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to create data request")
		return err
	}
	return CreatedResponse(c, created)
}

// GetByID returns a request by ID
func (h *RequestHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.GetByID")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	found, err := h.service.Get(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, found)
}

// ListSent returns requests the caller has made
func (h *RequestHandler) ListSent(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.ListSent")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	requests, err := h.service.ListSent(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, requests)
}

// ListReceived returns requests against the caller's publications
func (h *RequestHandler) ListReceived(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.ListReceived")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	requests, err := h.service.ListReceived(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, requests)
}

// Approve approves a pending request and creates its contract
func (h *RequestHandler) Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.Approve")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	result, err := h.service.Approve(ctx, id, req.Note)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to approve request")
		return err
	}
	return SuccessResponse(c, result)
}

// Reject rejects a pending request
func (h *RequestHandler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.Reject")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	rejected, err := h.service.Reject(ctx, id, req.Note)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to reject request")
		return err
	}
	return SuccessResponse(c, rejected)
}

// EnsureContract retries contract creation for an approved request
func (h *RequestHandler) EnsureContract(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.EnsureContract")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	contract, err := h.orchestrator.EnsureContract(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to ensure contract")
		return err
	}
	return CreatedResponse(c, contract)
}

// Cancel withdraws a pending request
func (h *RequestHandler) Cancel(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RequestHandler.Cancel")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.service.Cancel(ctx, id); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to cancel request")
		return err
	}
	return NoContentResponse(c)
}
