package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/redisclient"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/reserve_tickets.lua
var reserveTicketsScript string

//go:embed scripts/commit_hold.lua
var commitHoldScript string

//go:embed scripts/release_hold.lua
var releaseHoldScript string

//go:embed scripts/set_capacity.lua
var setCapacityScript string

// Script names for caching
const (
	scriptReserveTickets = "reserve_tickets"
	scriptCommitHold     = "commit_hold"
	scriptReleaseHold    = "release_hold"
	scriptSetCapacity    = "set_capacity"
)

// terminalHoldTTL bounds how long a committed or released hold hash stays in
// Redis for idempotent replays before the keyspace reclaims it.
const terminalHoldTTL = 24 * time.Hour

func countersKey(ticketTypeID string) string {
	return fmt.Sprintf("ledger:tickettype:%s", ticketTypeID)
}

func holdKey(holdID string) string {
	return fmt.Sprintf("ledger:hold:%s", holdID)
}

// RedisLedgerRepository implements LedgerRepository on Redis. Every counter
// mutation runs inside a Lua script so the check and the increment are one
// atomic step on the server, shared by all process replicas.
type RedisLedgerRepository struct {
	client *redisclient.Client
}

// NewRedisLedgerRepository creates a new Redis-backed ledger
func NewRedisLedgerRepository(client *redisclient.Client) *RedisLedgerRepository {
	return &RedisLedgerRepository{client: client}
}

// LoadScripts loads all Lua scripts into Redis
func (r *RedisLedgerRepository) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptReserveTickets: reserveTicketsScript,
		scriptCommitHold:     commitHoldScript,
		scriptReleaseHold:    releaseHoldScript,
		scriptSetCapacity:    setCapacityScript,
	}

	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}

	return nil
}

// InitTicketType seeds counters for a ticket type if absent
func (r *RedisLedgerRepository) InitTicketType(ctx context.Context, c TicketTypeCounters) error {
	key := countersKey(c.TicketTypeID)
	exists, err := r.client.Client().Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check counters key: %w", err)
	}
	if exists == 1 {
		return nil
	}

	err = r.client.Client().HSet(ctx, key,
		"total", c.Total,
		"reserved", c.Reserved,
		"sold", c.Sold,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to seed counters: %w", err)
	}
	return nil
}

// Reserve atomically withholds quantity using a Lua script
func (r *RedisLedgerRepository) Reserve(ctx context.Context, ticketTypeID string, quantity int) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("quantity", quantity),
	)

	if quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return "", domain.ErrInvalidQuantity
	}

	holdID := uuid.New().String()
	keys := []string{countersKey(ticketTypeID), holdKey(holdID)}
	args := []interface{}{quantity, ticketTypeID}

	result := r.client.EvalWithFallback(ctx, scriptReserveTickets, reserveTicketsScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return "", fmt.Errorf("failed to execute reserve script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return "", fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return "", fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		span.SetStatus(codes.Ok, "")
		return holdID, nil
	}

	errorCode, _ := values[1].(string)
	switch errorCode {
	case "TICKET_TYPE_NOT_FOUND":
		span.SetStatus(codes.Error, "ticket type not found")
		return "", domain.ErrTicketTypeNotFound
	case "INSUFFICIENT_INVENTORY":
		span.SetStatus(codes.Error, "insufficient inventory")
		return "", domain.ErrInsufficientInventory
	default:
		return "", fmt.Errorf("reserve script failed: %s", errorCode)
	}
}

// Commit converts a hold into a sale using a Lua script
func (r *RedisLedgerRepository) Commit(ctx context.Context, holdID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.commit")
	defer span.End()

	span.SetAttributes(attribute.String("hold_id", holdID))

	hold, err := r.GetHold(ctx, holdID)
	if err != nil {
		span.SetStatus(codes.Error, "hold not found")
		return err
	}

	keys := []string{holdKey(holdID), countersKey(hold.TicketTypeID)}
	result := r.client.EvalWithFallback(ctx, scriptCommitHold, commitHoldScript, keys, int(terminalHoldTTL.Seconds()))
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return fmt.Errorf("failed to execute commit script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	errorCode, _ := values[1].(string)
	switch errorCode {
	case "HOLD_NOT_FOUND":
		return domain.ErrHoldNotFound
	case "ALREADY_RELEASED":
		return domain.ErrHoldAlreadyReleased
	default:
		return fmt.Errorf("commit script failed: %s", errorCode)
	}
}

// Release returns held quantity to the pool using a Lua script
func (r *RedisLedgerRepository) Release(ctx context.Context, holdID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.release")
	defer span.End()

	span.SetAttributes(attribute.String("hold_id", holdID))

	hold, err := r.GetHold(ctx, holdID)
	if err != nil {
		span.SetStatus(codes.Error, "hold not found")
		return err
	}

	keys := []string{holdKey(holdID), countersKey(hold.TicketTypeID)}
	result := r.client.EvalWithFallback(ctx, scriptReleaseHold, releaseHoldScript, keys, int(terminalHoldTTL.Seconds()))
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return fmt.Errorf("failed to execute release script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	errorCode, _ := values[1].(string)
	switch errorCode {
	case "HOLD_NOT_FOUND":
		return domain.ErrHoldNotFound
	case "ALREADY_COMMITTED":
		return domain.ErrHoldAlreadyCommitted
	default:
		return fmt.Errorf("release script failed: %s", errorCode)
	}
}

// GetHold returns the current state of a hold
func (r *RedisLedgerRepository) GetHold(ctx context.Context, holdID string) (*domain.Hold, error) {
	data, err := r.client.Client().HGetAll(ctx, holdKey(holdID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.ErrHoldNotFound
	}

	qty, _ := strconv.Atoi(data["quantity"])
	return &domain.Hold{
		ID:           holdID,
		TicketTypeID: data["ticket_type_id"],
		Quantity:     qty,
		State:        domain.HoldState(data["state"]),
	}, nil
}

// Availability returns total - sold - reserved
func (r *RedisLedgerRepository) Availability(ctx context.Context, ticketTypeID string) (int, error) {
	c, err := r.Counters(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}
	return c.Available(), nil
}

// Counters returns the full counter row for a ticket type
func (r *RedisLedgerRepository) Counters(ctx context.Context, ticketTypeID string) (*TicketTypeCounters, error) {
	data, err := r.client.Client().HGetAll(ctx, countersKey(ticketTypeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.ErrTicketTypeNotFound
	}

	total, _ := strconv.Atoi(data["total"])
	reserved, _ := strconv.Atoi(data["reserved"])
	sold, _ := strconv.Atoi(data["sold"])
	return &TicketTypeCounters{
		TicketTypeID: ticketTypeID,
		Total:        total,
		Reserved:     reserved,
		Sold:         sold,
	}, nil
}

// SetCapacity sets a new total under the sold+reserved floor check
func (r *RedisLedgerRepository) SetCapacity(ctx context.Context, ticketTypeID string, newTotal int) error {
	keys := []string{countersKey(ticketTypeID)}
	result := r.client.EvalWithFallback(ctx, scriptSetCapacity, setCapacityScript, keys, newTotal)
	if result.Err() != nil {
		return fmt.Errorf("failed to execute set_capacity script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		return nil
	}

	errorCode, _ := values[1].(string)
	switch errorCode {
	case "TICKET_TYPE_NOT_FOUND":
		return domain.ErrTicketTypeNotFound
	case "CAPACITY_BELOW_COMMITTED":
		return domain.ErrCapacityBelowCommitted
	default:
		return fmt.Errorf("set_capacity script failed: %s", errorCode)
	}
}

// Helper function to convert interface{} to int64
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Ensure RedisLedgerRepository implements LedgerRepository
var _ LedgerRepository = (*RedisLedgerRepository)(nil)
