package service

import (
	"context"

	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LedgerSyncer seeds inventory counters from the catalog. Seeding only
// writes absent counters, so a re-sync never clobbers live reservations.
type LedgerSyncer interface {
	// SyncTicketType seeds one ticket type's counters (single-flight).
	SyncTicketType(ctx context.Context, ticketTypeID string) error

	// SyncEvent seeds counters for every ticket type of an event.
	SyncEvent(ctx context.Context, eventID string) error
}

// ledgerSyncer implements LedgerSyncer
type ledgerSyncer struct {
	catalogRepo repository.CatalogRepository
	ledgerRepo  repository.LedgerRepository
	group       singleflight.Group
	log         *logger.Logger
}

// NewLedgerSyncer creates a new ledger syncer
func NewLedgerSyncer(
	catalogRepo repository.CatalogRepository,
	ledgerRepo repository.LedgerRepository,
) LedgerSyncer {
	return &ledgerSyncer{
		catalogRepo: catalogRepo,
		ledgerRepo:  ledgerRepo,
		log:         logger.Get(),
	}
}

// SyncTicketType seeds one ticket type's counters. Concurrent calls for the
// same id collapse into a single catalog read.
func (s *ledgerSyncer) SyncTicketType(ctx context.Context, ticketTypeID string) error {
	_, err, _ := s.group.Do(ticketTypeID, func() (interface{}, error) {
		tt, err := s.catalogRepo.GetTicketType(ctx, ticketTypeID)
		if err != nil {
			return nil, err
		}
		return nil, s.ledgerRepo.InitTicketType(ctx, repository.TicketTypeCounters{
			TicketTypeID: tt.ID,
			Total:        tt.TotalQuantity,
		})
	})
	return err
}

// SyncEvent seeds counters for every ticket type of an event
func (s *ledgerSyncer) SyncEvent(ctx context.Context, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger_syncer.sync_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	types, err := s.catalogRepo.GetTicketTypes(ctx, eventID)
	if err != nil {
		return err
	}

	for _, tt := range types {
		if err := s.ledgerRepo.InitTicketType(ctx, repository.TicketTypeCounters{
			TicketTypeID: tt.ID,
			Total:        tt.TotalQuantity,
		}); err != nil {
			s.log.Error("failed to seed ticket type counters",
				zap.String("ticket_type_id", tt.ID),
				zap.Error(err))
			return err
		}
	}

	s.log.Info("ledger seeded for event",
		zap.String("event_id", eventID),
		zap.Int("ticket_types", len(types)))
	return nil
}
