package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresCatalogRepository implements CatalogRepository using PostgreSQL with pgxpool
type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalogRepository creates a new PostgresCatalogRepository
func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

// GetEvent returns an event with its ticket types in declared order
func (r *PostgresCatalogRepository) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `
		SELECT id, name, description, location, starts_at, creator_id, created_at
		FROM events
		WHERE id = $1
	`
	event := &domain.Event{}
	err := r.pool.QueryRow(ctx, query, eventID).Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&event.Location,
		&event.StartsAt,
		&event.CreatorID,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	types, err := r.GetTicketTypes(ctx, eventID)
	if err != nil {
		return nil, err
	}
	event.TicketTypes = types

	span.SetStatus(codes.Ok, "")
	return event, nil
}

const ticketTypeColumns = `
	id, event_id, name, unit_price, is_free, total_quantity
`

// GetTicketTypes returns the ordered ticket types of an event
func (r *PostgresCatalogRepository) GetTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_ticket_types")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `SELECT ` + ticketTypeColumns + `
		FROM ticket_types
		WHERE event_id = $1
		ORDER BY position ASC`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket types: %w", err)
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket types: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(types)))
	span.SetStatus(codes.Ok, "")
	return types, nil
}

// GetTicketType returns a single ticket type by id
func (r *PostgresCatalogRepository) GetTicketType(ctx context.Context, ticketTypeID string) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_ticket_type")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1`

	tt, err := scanTicketType(r.pool.QueryRow(ctx, query, ticketTypeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketTypeNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tt, nil
}

// UpdateTicketTypeCapacity sets a new total quantity for a ticket type.
// Callers must have cleared the new total against the inventory ledger first.
func (r *PostgresCatalogRepository) UpdateTicketTypeCapacity(ctx context.Context, ticketTypeID string, newTotal int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.update_capacity")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("new_total", newTotal),
	)

	query := `UPDATE ticket_types SET total_quantity = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, ticketTypeID, newTotal, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update capacity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func scanTicketType(row rowScanner) (*domain.TicketType, error) {
	tt := &domain.TicketType{}
	err := row.Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.UnitPrice,
		&tt.IsFree,
		&tt.TotalQuantity,
	)
	if err != nil {
		return nil, err
	}
	return tt, nil
}

// Ensure PostgresCatalogRepository implements CatalogRepository
var _ CatalogRepository = (*PostgresCatalogRepository)(nil)
