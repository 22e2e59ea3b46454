package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// MockGateway implements PaymentGateway for testing and local development
type MockGateway struct {
	config   *MockGatewayConfig
	sessions sync.Map
	mu       sync.RWMutex
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// AvailabilityRate is the probability the gateway accepts a session
	// request (0.0 to 1.0). Below it, CreateSession fails as unreachable.
	AvailabilityRate float64

	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		AvailabilityRate: 1.0,
		DelayMs:          0,
	}
}

// MockSession records a session the mock gateway opened
type MockSession struct {
	SessionID string
	OrderID   string
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	if config.AvailabilityRate < 0 {
		config.AvailabilityRate = 0
	}
	if config.AvailabilityRate > 1 {
		config.AvailabilityRate = 1
	}
	return &MockGateway{config: config}
}

// CreateSession opens a mock checkout session
func (g *MockGateway) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	if req == nil {
		return nil, fmt.Errorf("session request is required")
	}

	if g.config.DelayMs > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		}
	}

	g.mu.RLock()
	rate := g.config.AvailabilityRate
	g.mu.RUnlock()

	if rand.Float64() >= rate {
		return nil, fmt.Errorf("%w: mock gateway offline", domain.ErrGatewayUnavailable)
	}

	sessionID := uuid.New().String()
	g.sessions.Store(sessionID, &MockSession{
		SessionID: sessionID,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: time.Now(),
	})

	return &Session{
		ID:          sessionID,
		Token:       fmt.Sprintf("mock_token_%s", sessionID[:8]),
		RedirectURL: fmt.Sprintf("https://checkout.mock.local/session/%s", sessionID),
	}, nil
}

// GetSession retrieves a session the mock opened (for tests)
func (g *MockGateway) GetSession(sessionID string) (*MockSession, bool) {
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*MockSession), true
}

// SetAvailabilityRate updates the availability rate (for tests)
func (g *MockGateway) SetAvailabilityRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.config.AvailabilityRate = rate
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// Ensure MockGateway implements PaymentGateway
var _ PaymentGateway = (*MockGateway)(nil)
