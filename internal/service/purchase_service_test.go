package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/dto"
	"github.com/tobslayerr/sievent-ticketing/internal/gateway"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
)

// MockCatalogRepository is a mock implementation of CatalogRepository
type MockCatalogRepository struct {
	GetEventFunc                 func(ctx context.Context, eventID string) (*domain.Event, error)
	GetTicketTypesFunc           func(ctx context.Context, eventID string) ([]domain.TicketType, error)
	GetTicketTypeFunc            func(ctx context.Context, ticketTypeID string) (*domain.TicketType, error)
	UpdateTicketTypeCapacityFunc func(ctx context.Context, ticketTypeID string, newTotal int) error
}

func (m *MockCatalogRepository) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockCatalogRepository) GetTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if m.GetTicketTypesFunc != nil {
		return m.GetTicketTypesFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockCatalogRepository) GetTicketType(ctx context.Context, ticketTypeID string) (*domain.TicketType, error) {
	if m.GetTicketTypeFunc != nil {
		return m.GetTicketTypeFunc(ctx, ticketTypeID)
	}
	return nil, domain.ErrTicketTypeNotFound
}

func (m *MockCatalogRepository) UpdateTicketTypeCapacity(ctx context.Context, ticketTypeID string, newTotal int) error {
	if m.UpdateTicketTypeCapacityFunc != nil {
		return m.UpdateTicketTypeCapacityFunc(ctx, ticketTypeID, newTotal)
	}
	return nil
}

// MockGateway is a mock implementation of PaymentGateway
type MockGateway struct {
	CreateSessionFunc func(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error)
}

func (m *MockGateway) CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, req)
	}
	return &gateway.Session{ID: "session-1", Token: "token-1", RedirectURL: "https://pay.test/session-1"}, nil
}

func (m *MockGateway) Name() string { return "mock" }

func testEvent() *domain.Event {
	return &domain.Event{
		ID:   "event-1",
		Name: "Music Fest",
		TicketTypes: []domain.TicketType{
			{ID: "tt-a", EventID: "event-1", Name: "Regular", UnitPrice: 100000, TotalQuantity: 100},
			{ID: "tt-b", EventID: "event-1", Name: "VIP", UnitPrice: 250000, TotalQuantity: 20},
			{ID: "tt-free", EventID: "event-1", Name: "Community", UnitPrice: 0, IsFree: true, TotalQuantity: 50},
		},
	}
}

func newPurchaseFixture() (*repository.MemoryCatalogRepository, *repository.MemoryLedgerRepository, *repository.MemoryOrderRepository, *MockGateway, PurchaseService) {
	catalogRepo := repository.NewMemoryCatalogRepository()
	catalogRepo.PutEvent(testEvent())
	ledgerRepo := repository.NewMemoryLedgerRepository()
	for _, tt := range testEvent().TicketTypes {
		_ = ledgerRepo.InitTicketType(context.Background(), repository.TicketTypeCounters{
			TicketTypeID: tt.ID,
			Total:        tt.TotalQuantity,
		})
	}
	orderRepo := repository.NewMemoryOrderRepository()
	gw := &MockGateway{}

	syncer := NewLedgerSyncer(catalogRepo, ledgerRepo)
	svc := NewPurchaseService(catalogRepo, ledgerRepo, orderRepo, gw, syncer, &PurchaseServiceConfig{
		HoldTTL:     15 * time.Minute,
		MaxPerOrder: 10,
		Currency:    "IDR",
	})
	return catalogRepo, ledgerRepo, orderRepo, gw, svc
}

func TestPurchaseService_SubmitPurchase_Validation(t *testing.T) {
	tests := []struct {
		name    string
		buyerID string
		req     *dto.SubmitPurchaseRequest
		wantErr error
	}{
		{
			name:    "missing buyer",
			buyerID: "",
			req:     &dto.SubmitPurchaseRequest{EventID: "event-1", Lines: []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 1}}},
			wantErr: domain.ErrInvalidBuyerID,
		},
		{
			name:    "nil request",
			buyerID: "buyer-1",
			req:     nil,
			wantErr: domain.ErrInvalidEventID,
		},
		{
			name:    "empty cart",
			buyerID: "buyer-1",
			req:     &dto.SubmitPurchaseRequest{EventID: "event-1"},
			wantErr: domain.ErrEmptyCart,
		},
		{
			name:    "zero quantity",
			buyerID: "buyer-1",
			req:     &dto.SubmitPurchaseRequest{EventID: "event-1", Lines: []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 0}}},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "negative quantity",
			buyerID: "buyer-1",
			req:     &dto.SubmitPurchaseRequest{EventID: "event-1", Lines: []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: -2}}},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "over per-order cap",
			buyerID: "buyer-1",
			req: &dto.SubmitPurchaseRequest{EventID: "event-1", Lines: []dto.PurchaseLineRequest{
				{TicketTypeID: "tt-a", Quantity: 6},
				{TicketTypeID: "tt-b", Quantity: 5},
			}},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "unknown event",
			buyerID: "buyer-1",
			req:     &dto.SubmitPurchaseRequest{EventID: "event-404", Lines: []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 1}}},
			wantErr: domain.ErrEventNotFound,
		},
		{
			name:    "ticket type from another event",
			buyerID: "buyer-1",
			req:     &dto.SubmitPurchaseRequest{EventID: "event-1", Lines: []dto.PurchaseLineRequest{{TicketTypeID: "tt-other", Quantity: 1}}},
			wantErr: domain.ErrTicketTypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, _, svc := newPurchaseFixture()
			_, err := svc.SubmitPurchase(context.Background(), tt.buyerID, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SubmitPurchase() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPurchaseService_SubmitPurchase_Success(t *testing.T) {
	_, ledgerRepo, orderRepo, _, svc := newPurchaseFixture()
	ctx := context.Background()

	resp, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines: []dto.PurchaseLineRequest{
			{TicketTypeID: "tt-b", Quantity: 1},
			{TicketTypeID: "tt-a", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}

	if resp.Status != domain.OrderStatusPendingPayment.String() {
		t.Errorf("Status = %s, want pending_payment", resp.Status)
	}
	if resp.Total != 2*100000+250000 {
		t.Errorf("Total = %d, want 450000", resp.Total)
	}
	if resp.PaymentToken == "" || resp.RedirectURL == "" {
		t.Error("expected payment session details on response")
	}

	// Holds are live in the ledger
	availA, _ := ledgerRepo.Availability(ctx, "tt-a")
	availB, _ := ledgerRepo.Availability(ctx, "tt-b")
	if availA != 98 || availB != 19 {
		t.Errorf("availability after submit = (%d, %d), want (98, 19)", availA, availB)
	}

	// Order persisted pending with its session
	order, err := orderRepo.GetByID(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if order.PaymentSessionID == "" {
		t.Error("order missing payment session id")
	}
	if len(order.HoldIDs) != 2 {
		t.Errorf("order has %d holds, want 2", len(order.HoldIDs))
	}
}

func TestPurchaseService_SubmitPurchase_DuplicateReturnsExisting(t *testing.T) {
	_, ledgerRepo, _, _, svc := newPurchaseFixture()
	ctx := context.Background()

	req := &dto.SubmitPurchaseRequest{
		EventID:      "event-1",
		Lines:        []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 2}},
		RequestNonce: "nonce-1",
	}

	first, err := svc.SubmitPurchase(ctx, "buyer-1", req)
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}
	second, err := svc.SubmitPurchase(ctx, "buyer-1", req)
	if err != nil {
		t.Fatalf("SubmitPurchase() resubmission error = %v", err)
	}

	if second.OrderID != first.OrderID {
		t.Errorf("resubmission created new order %s, want %s", second.OrderID, first.OrderID)
	}

	// No extra inventory held
	avail, _ := ledgerRepo.Availability(ctx, "tt-a")
	if avail != 98 {
		t.Errorf("availability = %d, want 98 (duplicate must not take new holds)", avail)
	}
}

func TestPurchaseService_SubmitPurchase_AllOrNothing(t *testing.T) {
	_, ledgerRepo, _, _, svc := newPurchaseFixture()
	ctx := context.Background()

	// Drain VIP so the second line cannot be satisfied
	for i := 0; i < 10; i++ {
		if _, err := ledgerRepo.Reserve(ctx, "tt-b", 2); err != nil {
			t.Fatalf("setup Reserve() error = %v", err)
		}
	}

	_, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines: []dto.PurchaseLineRequest{
			{TicketTypeID: "tt-a", Quantity: 3},
			{TicketTypeID: "tt-b", Quantity: 1},
		},
	})
	if !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("SubmitPurchase() error = %v, want ErrInsufficientInventory", err)
	}

	// The successful tt-a hold must have been rolled back
	avail, _ := ledgerRepo.Availability(ctx, "tt-a")
	if avail != 100 {
		t.Errorf("tt-a availability = %d, want 100 after rollback", avail)
	}
}

func TestPurchaseService_SubmitPurchase_GatewayFailureRollsBack(t *testing.T) {
	_, ledgerRepo, orderRepo, gw, svc := newPurchaseFixture()
	ctx := context.Background()

	gw.CreateSessionFunc = func(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
		return nil, domain.ErrGatewayUnavailable
	}

	_, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines:   []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 2}},
	})
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("SubmitPurchase() error = %v, want ErrGatewayUnavailable", err)
	}

	// Holds returned
	avail, _ := ledgerRepo.Availability(ctx, "tt-a")
	if avail != 100 {
		t.Errorf("availability = %d, want 100 after gateway failure", avail)
	}

	// Order marked failed
	orders, _ := orderRepo.GetByBuyerID(ctx, "buyer-1", 10, 0)
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}
	if orders[0].Status != domain.OrderStatusFailed {
		t.Errorf("order status = %s, want failed", orders[0].Status)
	}
}

// flakyOrderRepo fails selected writes so the post-session store error
// paths can be driven.
type flakyOrderRepo struct {
	*repository.MemoryOrderRepository
	failSetSession        bool
	failPendingTransition bool
}

func (r *flakyOrderRepo) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	if r.failSetSession {
		return errors.New("order store down")
	}
	return r.MemoryOrderRepository.SetPaymentSession(ctx, orderID, sessionID)
}

func (r *flakyOrderRepo) TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, reason string) error {
	if r.failPendingTransition && to == domain.OrderStatusPendingPayment {
		return errors.New("order store down")
	}
	return r.MemoryOrderRepository.TransitionStatus(ctx, orderID, from, to, reason)
}

func TestPurchaseService_SubmitPurchase_StoreFailureAfterSessionRollsBack(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *flakyOrderRepo)
	}{
		{"session persist fails", func(r *flakyOrderRepo) { r.failSetSession = true }},
		{"pending transition fails", func(r *flakyOrderRepo) { r.failPendingTransition = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			catalogRepo := repository.NewMemoryCatalogRepository()
			catalogRepo.PutEvent(testEvent())
			ledgerRepo := repository.NewMemoryLedgerRepository()
			_ = ledgerRepo.InitTicketType(ctx, repository.TicketTypeCounters{TicketTypeID: "tt-a", Total: 100})
			orderRepo := &flakyOrderRepo{MemoryOrderRepository: repository.NewMemoryOrderRepository()}
			tt.setup(orderRepo)

			syncer := NewLedgerSyncer(catalogRepo, ledgerRepo)
			svc := NewPurchaseService(catalogRepo, ledgerRepo, orderRepo, &MockGateway{}, syncer, nil)

			_, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
				EventID: "event-1",
				Lines:   []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 2}},
			})
			if err == nil {
				t.Fatal("SubmitPurchase() error = nil, want store error")
			}

			// Holds returned: a draft never reaches the expiry sweep,
			// so the submit path itself must reclaim them.
			avail, _ := ledgerRepo.Availability(ctx, "tt-a")
			if avail != 100 {
				t.Errorf("availability = %d, want 100 after store failure", avail)
			}

			// Order marked failed, not stuck in draft
			orders, _ := orderRepo.GetByBuyerID(ctx, "buyer-1", 10, 0)
			if len(orders) != 1 {
				t.Fatalf("got %d orders, want 1", len(orders))
			}
			if orders[0].Status != domain.OrderStatusFailed {
				t.Errorf("order status = %s, want failed", orders[0].Status)
			}
		})
	}
}

func TestPurchaseService_SubmitPurchase_FreeOrderSettlesImmediately(t *testing.T) {
	_, ledgerRepo, orderRepo, gw, svc := newPurchaseFixture()
	ctx := context.Background()

	gatewayCalled := false
	gw.CreateSessionFunc = func(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
		gatewayCalled = true
		return &gateway.Session{ID: "session-x"}, nil
	}

	resp, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines:   []dto.PurchaseLineRequest{{TicketTypeID: "tt-free", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}

	if gatewayCalled {
		t.Error("free order must not open a payment session")
	}
	if resp.Status != domain.OrderStatusPaid.String() {
		t.Errorf("Status = %s, want paid", resp.Status)
	}
	if resp.PaidAt == nil {
		t.Error("free order missing PaidAt")
	}

	// Holds committed, not just reserved
	counters, _ := ledgerRepo.Counters(ctx, "tt-free")
	if counters.Sold != 2 || counters.Reserved != 0 {
		t.Errorf("counters = sold %d reserved %d, want sold 2 reserved 0", counters.Sold, counters.Reserved)
	}

	order, _ := orderRepo.GetByID(ctx, resp.OrderID)
	if order.Status != domain.OrderStatusPaid {
		t.Errorf("persisted status = %s, want paid", order.Status)
	}
}

func TestPurchaseService_SubmitPurchase_MergesDuplicateLines(t *testing.T) {
	_, ledgerRepo, _, _, svc := newPurchaseFixture()
	ctx := context.Background()

	resp, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines: []dto.PurchaseLineRequest{
			{TicketTypeID: "tt-a", Quantity: 1},
			{TicketTypeID: "tt-a", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}
	if len(resp.Lines) != 1 {
		t.Fatalf("got %d lines, want 1 merged line", len(resp.Lines))
	}
	if resp.Lines[0].Quantity != 3 {
		t.Errorf("merged quantity = %d, want 3", resp.Lines[0].Quantity)
	}

	avail, _ := ledgerRepo.Availability(ctx, "tt-a")
	if avail != 97 {
		t.Errorf("availability = %d, want 97", avail)
	}
}

func TestPurchaseService_SubmitPurchase_SeedsUnsyncedLedger(t *testing.T) {
	catalogRepo := repository.NewMemoryCatalogRepository()
	catalogRepo.PutEvent(testEvent())
	ledgerRepo := repository.NewMemoryLedgerRepository() // nothing seeded
	orderRepo := repository.NewMemoryOrderRepository()
	syncer := NewLedgerSyncer(catalogRepo, ledgerRepo)
	svc := NewPurchaseService(catalogRepo, ledgerRepo, orderRepo, &MockGateway{}, syncer, nil)
	ctx := context.Background()

	resp, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines:   []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}
	if resp.Status != domain.OrderStatusPendingPayment.String() {
		t.Errorf("Status = %s, want pending_payment", resp.Status)
	}

	// Counters were seeded from the catalog on first use
	avail, err := ledgerRepo.Availability(ctx, "tt-a")
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	if avail != 98 {
		t.Errorf("availability = %d, want 98", avail)
	}
}

func TestPurchaseService_GetOrder(t *testing.T) {
	_, _, _, _, svc := newPurchaseFixture()
	ctx := context.Background()

	resp, err := svc.SubmitPurchase(ctx, "buyer-1", &dto.SubmitPurchaseRequest{
		EventID: "event-1",
		Lines:   []dto.PurchaseLineRequest{{TicketTypeID: "tt-a", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}

	got, err := svc.GetOrder(ctx, resp.OrderID, "buyer-1")
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got.OrderID != resp.OrderID {
		t.Errorf("GetOrder() id = %s, want %s", got.OrderID, resp.OrderID)
	}

	// Another buyer cannot see the order
	if _, err := svc.GetOrder(ctx, resp.OrderID, "buyer-2"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("GetOrder() foreign buyer error = %v, want ErrOrderNotFound", err)
	}

	if _, err := svc.GetOrder(ctx, "missing", "buyer-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("GetOrder() missing error = %v, want ErrOrderNotFound", err)
	}
}
