package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/lifecycle/contract"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ContractHandler handles data contract API endpoints
type ContractHandler struct {
	service *contract.Service
	logger  ectologger.Logger
}

// NewContractHandler creates a new contract handler
func NewContractHandler(service *contract.Service, logger ectologger.Logger) *ContractHandler {
	return &ContractHandler{
		service: service,
		logger:  logger,
	}
}

// DownloadResponse carries the resolved download URL
type DownloadResponse struct {
	URL string `json:"url"`
}

// Register registers contract routes
func (h *ContractHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/suspend", h.Suspend)
	g.POST("/:id/resume", h.Resume)
	g.POST("/:id/terminate", h.Terminate)
	g.GET("/:id/download", h.Download)
}

// List returns contracts where the caller is a party
func (h *ContractHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContractHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	if requestIDStr := c.QueryParam("request_id"); requestIDStr != "" {
		requestID, err := uuid.Parse(requestIDStr)
		if err != nil {
			return BadRequest("invalid request_id")
		}
		found, err := h.service.GetByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		return SuccessResponse(c, found)
	}

	contracts, err := h.service.List(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, contracts)
}

// GetByID returns a contract by ID
func (h *ContractHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContractHandler.GetByID")
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

// Suspend pauses an active contract
func (h *ContractHandler) Suspend(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContractHandler.Suspend")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	suspended, err := h.service.Suspend(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to suspend contract")
		return err
	}
	return SuccessResponse(c, suspended)
}

// Resume reactivates a suspended contract
func (h *ContractHandler) Resume(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContractHandler.Resume")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	resumed, err := h.service.Resume(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to resume contract")
		return err
	}
	return SuccessResponse(c, resumed)
}

// Terminate ends a contract and cancels its open transfers
func (h *ContractHandler) Terminate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContractHandler.Terminate")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	terminated, err := h.service.Terminate(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to terminate contract")
		return err
	}
	return SuccessResponse(c, terminated)
}

// Download resolves the contract's publication file to a URL
func (h *ContractHandler) Download(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContractHandler.Download")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	url, err := h.service.DownloadURL(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, DownloadResponse{URL: url})
}
