package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/lifecycle/transfer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// TransferHandler handles data transfer API endpoints
type TransferHandler struct {
	service *transfer.Service
	logger  ectologger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(service *transfer.Service, logger ectologger.Logger) *TransferHandler {
	return &TransferHandler{
		service: service,
		logger:  logger,
	}
}

// InitiateTransferRequest represents the initiate transfer body
type InitiateTransferRequest struct {
	ContractID     string `json:"contract_id" validate:"required,uuid"`
	TransferMethod string `json:"transfer_method,omitempty"`
}

// FailTransferRequest represents the fail transfer body
type FailTransferRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ProgressRequest represents the report progress body
type ProgressRequest struct {
	BytesTransferred int64 `json:"bytes_transferred" validate:"gte=0"`
}

// TransferResponse decorates a transfer with its derived progress
type TransferResponse struct {
	models.DataTransfer
	Progress int `json:"progress"`
}

func (h *TransferHandler) toResponse(ctx context.Context, t *models.DataTransfer) TransferResponse {
	return TransferResponse{DataTransfer: *t, Progress: h.service.ProgressPercent(ctx, t)}
}

func (h *TransferHandler) toResponses(ctx context.Context, transfers []models.DataTransfer) []TransferResponse {
	percents := h.service.ProgressPercents(ctx, transfers)
	out := make([]TransferResponse, 0, len(transfers))
	for i := range transfers {
		out = append(out, TransferResponse{DataTransfer: transfers[i], Progress: percents[i]})
	}
	return out
}

// Register registers transfer routes
func (h *TransferHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Initiate)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/start", h.Start)
	g.POST("/:id/progress", h.ReportProgress)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/fail", h.Fail)
	g.POST("/:id/cancel", h.Cancel)
	g.GET("/:id/download", h.Download)
}

// List returns transfers under the caller's contracts
func (h *TransferHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	if contractIDStr := c.QueryParam("contract_id"); contractIDStr != "" {
		contractID, err := uuid.Parse(contractIDStr)
		if err != nil {
			return BadRequest("invalid contract_id")
		}
		transfers, err := h.service.ListByContract(ctx, contractID)
		if err != nil {
			return err
		}
		return SuccessResponse(c, h.toResponses(ctx, transfers))
	}

	transfers, err := h.service.List(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, h.toResponses(ctx, transfers))
}

// Initiate starts a new transfer under an active contract
func (h *TransferHandler) Initiate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.Initiate")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req InitiateTransferRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	contractID, err := uuid.Parse(req.ContractID)
	if err != nil {
		return BadRequest("invalid contract_id")
	}

	created, err := h.service.Initiate(ctx, transfer.InitiateInput{
		ContractID:     contractID,
		TransferMethod: req.TransferMethod,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to initiate transfer")
		return err
	}
	return CreatedResponse(c, h.toResponse(ctx, created))
}

// GetByID returns a transfer by ID
func (h *TransferHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.GetByID")
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
	return SuccessResponse(c, h.toResponse(ctx, found))
}

// Start moves a pending transfer to In Progress
func (h *TransferHandler) Start(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.Start")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	started, err := h.service.Start(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to start transfer")
		return err
	}
	return SuccessResponse(c, h.toResponse(ctx, started))
}

// ReportProgress records a new byte count for an in-progress transfer
func (h *TransferHandler) ReportProgress(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.ReportProgress")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req ProgressRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	updated, err := h.service.ReportProgress(ctx, id, req.BytesTransferred)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to report transfer progress")
		return err
	}
	return SuccessResponse(c, h.toResponse(ctx, updated))
}

// Complete marks an in-progress transfer as Completed
func (h *TransferHandler) Complete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.Complete")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	completed, err := h.service.Complete(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to complete transfer")
		return err
	}
	return SuccessResponse(c, h.toResponse(ctx, completed))
}

// Fail marks an in-progress transfer as Failed
func (h *TransferHandler) Fail(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.Fail")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req FailTransferRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	failed, err := h.service.Fail(ctx, id, req.Reason)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to fail transfer")
		return err
	}
	return SuccessResponse(c, h.toResponse(ctx, failed))
}

// Cancel marks a non-terminal transfer as Cancelled
func (h *TransferHandler) Cancel(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.Cancel")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	cancelled, err := h.service.Cancel(ctx, id)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to cancel transfer")
		return err
	}
	return SuccessResponse(c, h.toResponse(ctx, cancelled))
}

// Download resolves the completed transfer's file to a URL
func (h *TransferHandler) Download(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TransferHandler.Download")
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
