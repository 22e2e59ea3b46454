package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

func newTestOrder(id, buyerID string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:      id,
		EventID: "event-1",
		BuyerID: buyerID,
		Lines: []domain.LineItem{
			{TicketTypeID: "tt-1", Name: "Regular", Quantity: 2, UnitPrice: 100000},
		},
		Status:         domain.OrderStatusDraft,
		Currency:       "IDR",
		IdempotencyKey: "key-" + id,
		HoldIDs:        []string{"hold-" + id},
		HoldExpiresAt:  now.Add(15 * time.Minute),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryOrderRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	order := newTestOrder("order-1", "buyer-1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Duplicate idempotency key rejected
	dup := newTestOrder("order-2", "buyer-1")
	dup.IdempotencyKey = order.IdempotencyKey
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("Create() with duplicate idempotency key should fail")
	}

	got, err := repo.GetByID(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.BuyerID != "buyer-1" || len(got.Lines) != 1 {
		t.Errorf("GetByID() returned wrong order: %+v", got)
	}

	// Returned order is a copy
	got.BuyerID = "tampered"
	again, _ := repo.GetByID(ctx, "order-1")
	if again.BuyerID != "buyer-1" {
		t.Error("GetByID() must return a defensive copy")
	}

	byKey, err := repo.GetByIdempotencyKey(ctx, order.IdempotencyKey)
	if err != nil || byKey.ID != "order-1" {
		t.Errorf("GetByIdempotencyKey() = %v, %v", byKey, err)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrOrderNotFound", err)
	}
}

func TestMemoryOrderRepository_TransitionStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	order := newTestOrder("order-1", "buyer-1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.TransitionStatus(ctx, "order-1", domain.OrderStatusDraft, domain.OrderStatusPendingPayment, ""); err != nil {
		t.Fatalf("TransitionStatus() error = %v", err)
	}

	// Stale from-status loses the CAS
	err := repo.TransitionStatus(ctx, "order-1", domain.OrderStatusDraft, domain.OrderStatusFailed, "late")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("TransitionStatus() stale from error = %v, want ErrInvalidTransition", err)
	}

	// Illegal target rejected even with correct from
	err = repo.TransitionStatus(ctx, "order-1", domain.OrderStatusPendingPayment, domain.OrderStatusDraft, "")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("TransitionStatus() illegal target error = %v, want ErrInvalidTransition", err)
	}

	// Settling sets PaidAt
	if err := repo.TransitionStatus(ctx, "order-1", domain.OrderStatusPendingPayment, domain.OrderStatusPaid, ""); err != nil {
		t.Fatalf("TransitionStatus() to paid error = %v", err)
	}
	got, _ := repo.GetByID(ctx, "order-1")
	if got.PaidAt == nil {
		t.Error("PaidAt not set on transition to paid")
	}
}

func TestMemoryOrderRepository_TransitionStatusRace(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	order := newTestOrder("order-1", "buyer-1")
	order.Status = domain.OrderStatusPendingPayment
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Settlement and expiry race on the same pending order: exactly one wins
	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- repo.TransitionStatus(ctx, "order-1", domain.OrderStatusPendingPayment, domain.OrderStatusPaid, "")
	}()
	go func() {
		defer wg.Done()
		results <- repo.TransitionStatus(ctx, "order-1", domain.OrderStatusPendingPayment, domain.OrderStatusExpired, "hold_expired")
	}()
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else if errors.Is(err, domain.ErrInvalidTransition) {
			losses++
		} else {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Errorf("wins = %d, losses = %d; want exactly one of each", wins, losses)
	}
}

func TestMemoryOrderRepository_SetPaymentSession(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	order := newTestOrder("order-1", "buyer-1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.SetPaymentSession(ctx, "order-1", "session-1"); err != nil {
		t.Fatalf("SetPaymentSession() error = %v", err)
	}
	// Session id is assigned once
	if err := repo.SetPaymentSession(ctx, "order-1", "session-2"); err == nil {
		t.Error("SetPaymentSession() second assignment should fail")
	}

	got, err := repo.GetByPaymentSessionID(ctx, "session-1")
	if err != nil || got.ID != "order-1" {
		t.Errorf("GetByPaymentSessionID() = %v, %v", got, err)
	}
	if _, err := repo.GetByPaymentSessionID(ctx, "session-2"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("GetByPaymentSessionID(unknown) error = %v, want ErrOrderNotFound", err)
	}
}

func TestMemoryOrderRepository_GetExpiredPending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	now := time.Now().UTC()

	overdue := newTestOrder("order-overdue", "buyer-1")
	overdue.Status = domain.OrderStatusPendingPayment
	overdue.HoldExpiresAt = now.Add(-time.Minute)

	live := newTestOrder("order-live", "buyer-1")
	live.Status = domain.OrderStatusPendingPayment
	live.HoldExpiresAt = now.Add(time.Hour)

	draft := newTestOrder("order-draft", "buyer-1")
	draft.HoldExpiresAt = now.Add(-time.Minute)

	for _, o := range []*domain.Order{overdue, live, draft} {
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("Create(%s) error = %v", o.ID, err)
		}
	}

	expired, err := repo.GetExpiredPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("GetExpiredPending() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "order-overdue" {
		t.Errorf("GetExpiredPending() = %v, want only order-overdue", expired)
	}
}

func TestMemoryOrderRepository_GetByBuyerID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	for i, id := range []string{"order-a", "order-b", "order-c"} {
		o := newTestOrder(id, "buyer-1")
		o.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	other := newTestOrder("order-x", "buyer-2")
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	orders, err := repo.GetByBuyerID(ctx, "buyer-1", 2, 0)
	if err != nil {
		t.Fatalf("GetByBuyerID() error = %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("GetByBuyerID() returned %d orders, want 2", len(orders))
	}
	// Newest first
	if orders[0].ID != "order-c" {
		t.Errorf("first order = %s, want order-c", orders[0].ID)
	}

	rest, _ := repo.GetByBuyerID(ctx, "buyer-1", 2, 2)
	if len(rest) != 1 || rest[0].ID != "order-a" {
		t.Errorf("offset page = %v, want only order-a", rest)
	}
}
