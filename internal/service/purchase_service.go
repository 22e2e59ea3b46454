package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/dto"
	"github.com/tobslayerr/sievent-ticketing/internal/gateway"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PurchaseService defines the interface for purchase orchestration
type PurchaseService interface {
	// SubmitPurchase runs the full purchase flow: validate, reserve holds,
	// create the order, open a payment session and move to pending payment.
	SubmitPurchase(ctx context.Context, buyerID string, req *dto.SubmitPurchaseRequest) (*dto.OrderResponse, error)

	// GetOrder retrieves an order owned by the buyer
	GetOrder(ctx context.Context, orderID, buyerID string) (*dto.OrderResponse, error)

	// GetBuyerOrders retrieves a page of the buyer's orders, newest first
	GetBuyerOrders(ctx context.Context, buyerID string, page, pageSize int) (*dto.PaginatedOrdersResponse, error)
}

// purchaseService implements PurchaseService
type purchaseService struct {
	catalogRepo repository.CatalogRepository
	ledgerRepo  repository.LedgerRepository
	orderRepo   repository.OrderRepository
	gateway     gateway.PaymentGateway
	syncer      LedgerSyncer
	holdTTL     time.Duration
	maxPerOrder int
	currency    string
	log         *logger.Logger
}

// PurchaseServiceConfig contains configuration for purchase service
type PurchaseServiceConfig struct {
	HoldTTL     time.Duration
	MaxPerOrder int
	Currency    string
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(
	catalogRepo repository.CatalogRepository,
	ledgerRepo repository.LedgerRepository,
	orderRepo repository.OrderRepository,
	gw gateway.PaymentGateway,
	syncer LedgerSyncer,
	cfg *PurchaseServiceConfig,
) PurchaseService {
	ttl := 15 * time.Minute
	maxPerOrder := 10
	currency := "IDR"
	if cfg != nil {
		if cfg.HoldTTL > 0 {
			ttl = cfg.HoldTTL
		}
		if cfg.MaxPerOrder > 0 {
			maxPerOrder = cfg.MaxPerOrder
		}
		if cfg.Currency != "" {
			currency = cfg.Currency
		}
	}
	return &purchaseService{
		catalogRepo: catalogRepo,
		ledgerRepo:  ledgerRepo,
		orderRepo:   orderRepo,
		gateway:     gw,
		syncer:      syncer,
		holdTTL:     ttl,
		maxPerOrder: maxPerOrder,
		currency:    currency,
		log:         logger.Get(),
	}
}

// SubmitPurchase runs the full purchase flow
func (s *purchaseService) SubmitPurchase(ctx context.Context, buyerID string, req *dto.SubmitPurchaseRequest) (*dto.OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.purchase.submit")
	defer span.End()

	// Validate request
	if buyerID == "" {
		span.SetStatus(codes.Error, "invalid buyer_id")
		return nil, domain.ErrInvalidBuyerID
	}
	if req == nil || req.EventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if len(req.Lines) == 0 {
		span.SetStatus(codes.Error, "empty cart")
		return nil, domain.ErrEmptyCart
	}

	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.String("event_id", req.EventID),
		attribute.Int("line_count", len(req.Lines)),
	)

	// Fold duplicate ticket types so a line appears once, then validate
	// quantities against the per-order cap.
	quantities := make(map[string]int, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			span.SetStatus(codes.Error, "invalid quantity")
			return nil, domain.ErrInvalidQuantity
		}
		quantities[line.TicketTypeID] += line.Quantity
	}
	totalQty := 0
	for _, qty := range quantities {
		totalQty += qty
	}
	if totalQty > s.maxPerOrder {
		span.SetStatus(codes.Error, "quantity over limit")
		return nil, domain.ErrInvalidQuantity
	}

	// Idempotency: a resubmission of the same cart returns the existing
	// order without touching inventory.
	keyLines := make([]domain.LineItem, 0, len(quantities))
	for id, qty := range quantities {
		keyLines = append(keyLines, domain.LineItem{TicketTypeID: id, Quantity: qty})
	}
	idempotencyKey := domain.IdempotencyKeyFor(buyerID, req.EventID, keyLines, req.RequestNonce)

	if existing, err := s.orderRepo.GetByIdempotencyKey(ctx, idempotencyKey); err == nil && existing != nil {
		span.AddEvent("idempotent_replay", trace.WithAttributes(
			attribute.String("order_id", existing.ID),
		))
		return toOrderResponse(existing, nil), nil
	} else if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	// Price every line from the catalog before taking any holds
	event, err := s.catalogRepo.GetEvent(ctx, req.EventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	typesByID := make(map[string]domain.TicketType, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		typesByID[tt.ID] = tt
	}

	ticketTypeIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		if _, ok := typesByID[id]; !ok {
			span.SetStatus(codes.Error, "unknown ticket type")
			return nil, domain.ErrTicketTypeNotFound
		}
		ticketTypeIDs = append(ticketTypeIDs, id)
	}

	// Reserve in ascending ticket type id order. A fixed acquisition order
	// keeps concurrent multi-line purchases from deadlocking against each
	// other and makes partial-failure rollback deterministic.
	sort.Strings(ticketTypeIDs)

	lines := make([]domain.LineItem, 0, len(ticketTypeIDs))
	holdIDs := make([]string, 0, len(ticketTypeIDs))
	for _, id := range ticketTypeIDs {
		tt := typesByID[id]
		qty := quantities[id]

		holdID, err := s.reserveWithSync(ctx, id, qty)
		if err != nil {
			s.rollbackHolds(ctx, holdIDs)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		holdIDs = append(holdIDs, holdID)
		lines = append(lines, domain.LineItem{
			TicketTypeID: id,
			Name:         tt.Name,
			Quantity:     qty,
			UnitPrice:    tt.UnitPrice,
		})
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:             uuid.New().String(),
		EventID:        req.EventID,
		BuyerID:        buyerID,
		Lines:          lines,
		Status:         domain.OrderStatusDraft,
		Currency:       s.currency,
		IdempotencyKey: idempotencyKey,
		HoldIDs:        holdIDs,
		HoldExpiresAt:  now.Add(s.holdTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		// A concurrent submission with the same key may have won the
		// insert. Give back our holds and return the winner.
		s.rollbackHolds(ctx, holdIDs)
		if existing, getErr := s.orderRepo.GetByIdempotencyKey(ctx, idempotencyKey); getErr == nil {
			return toOrderResponse(existing, nil), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("order_id", order.ID))

	// Free orders settle immediately: no session, holds become sales.
	if order.Total() == 0 {
		return s.settleFreeOrder(ctx, order)
	}

	session, err := s.gateway.CreateSession(ctx, &gateway.SessionRequest{
		OrderID:       order.ID,
		BuyerID:       buyerID,
		Amount:        order.Total(),
		Currency:      order.Currency,
		ItemDetails:   toItemDetails(lines),
		ExpiryMinutes: int(s.holdTTL.Minutes()),
	})
	if err != nil {
		// No session means no way to pay: give the inventory back and
		// fail the order so the buyer can retry.
		s.failDraftOrder(ctx, order, "gateway_unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// The order only enters the expiry sweep once it reaches pending
	// payment. Any store failure before that point has to reclaim the
	// holds here, or nothing ever will.
	if err := s.orderRepo.SetPaymentSession(ctx, order.ID, session.ID); err != nil {
		s.failDraftOrder(ctx, order, "order_store_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusDraft, domain.OrderStatusPendingPayment, ""); err != nil {
		s.failDraftOrder(ctx, order, "order_store_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	order.Status = domain.OrderStatusPendingPayment
	order.PaymentSessionID = session.ID

	span.AddEvent("purchase_submitted", trace.WithAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("session_id", session.ID),
		attribute.Int64("total", order.Total()),
	))
	span.SetStatus(codes.Ok, "")
	return toOrderResponse(order, session), nil
}

// settleFreeOrder finalizes a zero-total order without a payment session
func (s *purchaseService) settleFreeOrder(ctx context.Context, order *domain.Order) (*dto.OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.purchase.settle_free")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", order.ID))

	if err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusDraft, domain.OrderStatusPendingPayment, "free_order"); err != nil {
		s.failDraftOrder(ctx, order, "order_store_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, holdID := range order.HoldIDs {
		if err := s.ledgerRepo.Commit(ctx, holdID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	if err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusPendingPayment, domain.OrderStatusPaid, "free_order"); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusPaid
	now := time.Now().UTC()
	order.PaidAt = &now

	span.SetStatus(codes.Ok, "")
	return toOrderResponse(order, nil), nil
}

// reserveWithSync reserves from the ledger, seeding the counters from the
// catalog and retrying once when the ticket type was never synced.
func (s *purchaseService) reserveWithSync(ctx context.Context, ticketTypeID string, qty int) (string, error) {
	holdID, err := s.ledgerRepo.Reserve(ctx, ticketTypeID, qty)
	if err == nil || s.syncer == nil || !errors.Is(err, domain.ErrTicketTypeNotFound) {
		return holdID, err
	}
	if syncErr := s.syncer.SyncTicketType(ctx, ticketTypeID); syncErr != nil {
		s.log.Error("failed to seed ledger counters",
			zap.String("ticket_type_id", ticketTypeID),
			zap.Error(syncErr))
		return "", err
	}
	return s.ledgerRepo.Reserve(ctx, ticketTypeID, qty)
}

// failDraftOrder returns the order's inventory and moves the draft to failed
// so the buyer can retry. A draft never enters the expiry sweep, so this is
// the only path that reclaims its holds.
func (s *purchaseService) failDraftOrder(ctx context.Context, order *domain.Order, reason string) {
	s.rollbackHolds(ctx, order.HoldIDs)
	if err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusDraft, domain.OrderStatusFailed, reason); err != nil {
		s.log.Error("failed to mark draft order failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// rollbackHolds releases every hold taken so far. Release is idempotent, so
// a half-failed rollback can be retried by the expiry sweep without harm.
func (s *purchaseService) rollbackHolds(ctx context.Context, holdIDs []string) {
	for _, holdID := range holdIDs {
		if err := s.ledgerRepo.Release(ctx, holdID); err != nil {
			s.log.Error("failed to release hold during rollback",
				zap.String("hold_id", holdID),
				zap.Error(err))
		}
	}
}

// GetOrder retrieves an order owned by the buyer
func (s *purchaseService) GetOrder(ctx context.Context, orderID, buyerID string) (*dto.OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.purchase.get_order")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("buyer_id", buyerID),
	)

	if orderID == "" {
		return nil, domain.ErrOrderNotFound
	}
	if buyerID == "" {
		return nil, domain.ErrInvalidBuyerID
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !order.BelongsToBuyer(buyerID) {
		span.SetStatus(codes.Error, "wrong buyer")
		return nil, domain.ErrOrderNotFound
	}

	span.SetStatus(codes.Ok, "")
	return toOrderResponse(order, nil), nil
}

// GetBuyerOrders retrieves a page of the buyer's orders, newest first
func (s *purchaseService) GetBuyerOrders(ctx context.Context, buyerID string, page, pageSize int) (*dto.PaginatedOrdersResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.purchase.get_buyer_orders")
	defer span.End()

	if buyerID == "" {
		return nil, domain.ErrInvalidBuyerID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	orders, err := s.orderRepo.GetByBuyerID(ctx, buyerID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &dto.PaginatedOrdersResponse{
		Orders:   make([]*dto.OrderResponse, 0, len(orders)),
		Page:     page,
		PageSize: pageSize,
	}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(order, nil))
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func toItemDetails(lines []domain.LineItem) []gateway.ItemDetail {
	items := make([]gateway.ItemDetail, 0, len(lines))
	for _, line := range lines {
		items = append(items, gateway.ItemDetail{
			ID:       line.TicketTypeID,
			Name:     line.Name,
			Price:    line.UnitPrice,
			Quantity: line.Quantity,
		})
	}
	return items
}

func toOrderResponse(order *domain.Order, session *gateway.Session) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		OrderID:       order.ID,
		EventID:       order.EventID,
		BuyerID:       order.BuyerID,
		Status:        order.Status.String(),
		StatusReason:  order.StatusReason,
		Currency:      order.Currency,
		Total:         order.Total(),
		Lines:         make([]dto.OrderLineResponse, 0, len(order.Lines)),
		HoldExpiresAt: order.HoldExpiresAt,
		CreatedAt:     order.CreatedAt,
		PaidAt:        order.PaidAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, dto.OrderLineResponse{
			TicketTypeID: line.TicketTypeID,
			Name:         line.Name,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Subtotal:     line.Subtotal(),
		})
	}
	if session != nil {
		resp.PaymentToken = session.Token
		resp.RedirectURL = session.RedirectURL
	}
	return resp
}
