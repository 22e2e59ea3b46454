package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/dto"
	"github.com/tobslayerr/sievent-ticketing/internal/service"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CatalogHandler handles event catalog HTTP requests
type CatalogHandler struct {
	catalogService service.CatalogService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// GetEvent handles GET /events/:id
func (h *CatalogHandler) GetEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.get_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.catalogService.GetEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// GetTicketTypeAvailability handles GET /ticket-types/:id/availability
func (h *CatalogHandler) GetTicketTypeAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.get_availability")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ticketTypeID := c.Param("id")
	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	result, err := h.catalogService.GetTicketTypeAvailability(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// UpdateCapacity handles PUT /ticket-types/:id/capacity
func (h *CatalogHandler) UpdateCapacity(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.update_capacity")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ticketTypeID := c.Param("id")

	var req dto.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("total_quantity", req.TotalQuantity),
	)

	result, err := h.catalogService.UpdateCapacity(ctx, ticketTypeID, req.TotalQuantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// handleError converts domain errors to HTTP responses
func (h *CatalogHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "EVENT_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "TICKET_TYPE_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrCapacityBelowCommitted):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "CAPACITY_BELOW_COMMITTED",
			Message: "New total is below tickets already sold or on hold.",
		})
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidEventID):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
