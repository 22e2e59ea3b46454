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

// PostgresOrderRepository implements OrderRepository using PostgreSQL with pgxpool
type PostgresOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(pool *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

// Create inserts the order and its line items in one transaction
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("buyer_id", order.BuyerID),
		attribute.String("event_id", order.EventID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (
			id, event_id, buyer_id, status, status_reason, currency,
			idempotency_key, payment_session_id, gateway_txn_id, hold_ids,
			hold_expires_at, created_at, updated_at, paid_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)
	`

	_, err = tx.Exec(ctx, query,
		order.ID,
		order.EventID,
		order.BuyerID,
		order.Status.String(),
		nullString(order.StatusReason),
		order.Currency,
		nullString(order.IdempotencyKey),
		nullString(order.PaymentSessionID),
		nullString(order.GatewayTxnID),
		order.HoldIDs,
		order.HoldExpiresAt,
		order.CreatedAt,
		order.UpdatedAt,
		order.PaidAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create order: %w", err)
	}

	lineQuery := `
		INSERT INTO order_lines (order_id, position, ticket_type_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i, line := range order.Lines {
		if _, err := tx.Exec(ctx, lineQuery,
			order.ID, i, line.TicketTypeID, line.Name, line.Quantity, line.UnitPrice,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to create order line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

const orderColumns = `
	id, event_id, buyer_id, status, status_reason, currency,
	idempotency_key, payment_session_id, gateway_txn_id, hold_ids,
	hold_expires_at, created_at, updated_at, paid_at
`

// GetByID retrieves an order by its ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

// GetByIdempotencyKey retrieves the order created under the given key
func (r *PostgresOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.get_by_idempotency_key")
	defer span.End()

	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
}

// GetByPaymentSessionID retrieves the order owning a payment session
func (r *PostgresOrderRepository) GetByPaymentSessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.get_by_session")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_session_id = $1`, sessionID)
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if err := r.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetByBuyerID retrieves a buyer's orders, newest first
func (r *PostgresOrderRepository) GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.get_by_buyer")
	defer span.End()

	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, buyerID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get orders by buyer: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		if err := r.loadLines(ctx, order); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("count", len(orders)))
	span.SetStatus(codes.Ok, "")
	return orders, nil
}

// SetPaymentSession records the session id on an order, once
func (r *PostgresOrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.set_session")
	defer span.End()

	query := `
		UPDATE orders SET payment_session_id = $2, updated_at = $3
		WHERE id = $1 AND payment_session_id IS NULL
	`
	result, err := r.pool.Exec(ctx, query, orderID, sessionID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set payment session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment session already assigned to order %s", orderID)
	}
	return nil
}

// SetGatewayTxn records the gateway transaction id
func (r *PostgresOrderRepository) SetGatewayTxn(ctx context.Context, orderID, gatewayTxnID string) error {
	query := `UPDATE orders SET gateway_txn_id = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, orderID, gatewayTxnID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set gateway txn: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// TransitionStatus moves an order between statuses as a compare-and-set.
// The WHERE clause on the current status makes concurrent settlement
// signals race safely: only one UPDATE matches.
func (r *PostgresOrderRepository) TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.transition")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	)

	if !domain.CanTransition(from, to) {
		span.SetStatus(codes.Error, "illegal transition")
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	var paidAt *time.Time
	if to == domain.OrderStatusPaid {
		paidAt = &now
	}

	query := `
		UPDATE orders SET status = $3, status_reason = $4, updated_at = $5,
			paid_at = COALESCE($6, paid_at)
		WHERE id = $1 AND status = $2
	`
	result, err := r.pool.Exec(ctx, query, orderID, from.String(), to.String(), nullString(reason), now, paidAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to transition order: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the order is gone or another writer got there first.
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return getErr
		}
		span.SetStatus(codes.Error, "transition lost race")
		return domain.ErrInvalidTransition
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetExpiredPending returns pending-payment orders past their hold deadline
func (r *PostgresOrderRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.order.get_expired_pending")
	defer span.End()

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND hold_expires_at < $2
		ORDER BY hold_expires_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.OrderStatusPendingPayment.String(), now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get expired orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired orders: %w", err)
	}

	for _, order := range orders {
		if err := r.loadLines(ctx, order); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("count", len(orders)))
	span.SetStatus(codes.Ok, "")
	return orders, nil
}

func (r *PostgresOrderRepository) loadLines(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT ticket_type_id, name, quantity, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()

	order.Lines = nil
	for rows.Next() {
		var line domain.LineItem
		if err := rows.Scan(&line.TicketTypeID, &line.Name, &line.Quantity, &line.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var (
		status         string
		statusReason   *string
		idempotencyKey *string
		sessionID      *string
		gatewayTxnID   *string
	)

	err := row.Scan(
		&order.ID,
		&order.EventID,
		&order.BuyerID,
		&status,
		&statusReason,
		&order.Currency,
		&idempotencyKey,
		&sessionID,
		&gatewayTxnID,
		&order.HoldIDs,
		&order.HoldExpiresAt,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.PaidAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatus(status)
	if statusReason != nil {
		order.StatusReason = *statusReason
	}
	if idempotencyKey != nil {
		order.IdempotencyKey = *idempotencyKey
	}
	if sessionID != nil {
		order.PaymentSessionID = *sessionID
	}
	if gatewayTxnID != nil {
		order.GatewayTxnID = *gatewayTxnID
	}
	return order, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresOrderRepository implements OrderRepository
var _ OrderRepository = (*PostgresOrderRepository)(nil)
