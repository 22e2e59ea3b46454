package service

import (
	"context"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/dto"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CatalogService serves event reads merged with live availability and
// handles creator capacity edits.
type CatalogService interface {
	// GetEvent returns an event with per-type live availability.
	GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error)

	// GetTicketTypeAvailability returns the open quantity for one ticket type.
	GetTicketTypeAvailability(ctx context.Context, ticketTypeID string) (*dto.TicketTypeResponse, error)

	// UpdateCapacity changes a ticket type's declared total. The ledger
	// validates the new total against sold + reserved before the catalog
	// record changes, so capacity can never drop below committed inventory.
	UpdateCapacity(ctx context.Context, ticketTypeID string, newTotal int) (*dto.TicketTypeResponse, error)
}

// catalogService implements CatalogService
type catalogService struct {
	catalogRepo repository.CatalogRepository
	ledgerRepo  repository.LedgerRepository
	log         *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	catalogRepo repository.CatalogRepository,
	ledgerRepo repository.LedgerRepository,
) CatalogService {
	return &catalogService{
		catalogRepo: catalogRepo,
		ledgerRepo:  ledgerRepo,
		log:         logger.Get(),
	}
}

// GetEvent returns an event with per-type live availability
func (s *catalogService) GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.get_event")
	defer span.End()

	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.catalogRepo.GetEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &dto.EventResponse{
		EventID:     event.ID,
		Name:        event.Name,
		Description: event.Description,
		Location:    event.Location,
		StartsAt:    event.StartsAt,
		TicketTypes: make([]dto.TicketTypeResponse, 0, len(event.TicketTypes)),
	}
	for _, tt := range event.TicketTypes {
		available, err := s.ledgerRepo.Availability(ctx, tt.ID)
		if err != nil {
			// Unseeded counters read as sold out rather than failing the
			// whole event page.
			s.log.Warn("availability lookup failed",
				zap.String("ticket_type_id", tt.ID),
				zap.Error(err))
			available = 0
		}
		resp.TicketTypes = append(resp.TicketTypes, toTicketTypeResponse(&tt, available))
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// GetTicketTypeAvailability returns the open quantity for one ticket type
func (s *catalogService) GetTicketTypeAvailability(ctx context.Context, ticketTypeID string) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.get_availability")
	defer span.End()

	if ticketTypeID == "" {
		return nil, domain.ErrTicketTypeNotFound
	}
	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	tt, err := s.catalogRepo.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	available, err := s.ledgerRepo.Availability(ctx, tt.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := toTicketTypeResponse(tt, available)
	span.SetStatus(codes.Ok, "")
	return &resp, nil
}

// UpdateCapacity changes a ticket type's declared total
func (s *catalogService) UpdateCapacity(ctx context.Context, ticketTypeID string, newTotal int) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.update_capacity")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("new_total", newTotal),
	)

	if newTotal < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	tt, err := s.catalogRepo.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Ledger first: it rejects totals below sold + reserved atomically.
	// The catalog record only changes once the ledger accepted.
	if err := s.ledgerRepo.SetCapacity(ctx, ticketTypeID, newTotal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.catalogRepo.UpdateTicketTypeCapacity(ctx, ticketTypeID, newTotal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tt.TotalQuantity = newTotal
	available, err := s.ledgerRepo.Availability(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}

	s.log.Info("ticket type capacity updated",
		zap.String("ticket_type_id", ticketTypeID),
		zap.Int("new_total", newTotal))

	resp := toTicketTypeResponse(tt, available)
	span.SetStatus(codes.Ok, "")
	return &resp, nil
}

func toTicketTypeResponse(tt *domain.TicketType, available int) dto.TicketTypeResponse {
	return dto.TicketTypeResponse{
		TicketTypeID:  tt.ID,
		EventID:       tt.EventID,
		Name:          tt.Name,
		UnitPrice:     tt.UnitPrice,
		IsFree:        tt.IsFree,
		TotalQuantity: tt.TotalQuantity,
		Available:     available,
	}
}
