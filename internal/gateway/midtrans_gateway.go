package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// MidtransGateway implements PaymentGateway using the Midtrans Snap API
type MidtransGateway struct {
	config *MidtransGatewayConfig
	hc     *http.Client
	log    *logger.Logger
}

// MidtransGatewayConfig holds configuration for the Midtrans gateway
type MidtransGatewayConfig struct {
	// BaseURL is the Snap API root, e.g. https://app.sandbox.midtrans.com
	BaseURL string

	// ServerKey is the merchant server key used for Basic auth and
	// notification signature verification
	ServerKey string

	// Timeout bounds each outbound HTTP call
	Timeout time.Duration
}

// NewMidtransGateway creates a new Midtrans gateway
func NewMidtransGateway(config *MidtransGatewayConfig) (*MidtransGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("midtrans config is required")
	}
	if config.ServerKey == "" {
		return nil, fmt.Errorf("midtrans server key is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &MidtransGateway{
		config: config,
		hc:     &http.Client{Timeout: config.Timeout},
		log:    logger.Get(),
	}, nil
}

type snapTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapItemDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type snapExpiry struct {
	Unit     string `json:"unit"`
	Duration int    `json:"duration"`
}

type snapRequest struct {
	TransactionDetails snapTransactionDetails `json:"transaction_details"`
	ItemDetails        []snapItemDetail       `json:"item_details,omitempty"`
	Expiry             *snapExpiry            `json:"expiry,omitempty"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

// CreateSession opens a Snap checkout session. The session id generated here
// is sent as the Midtrans order_id, so later notifications identify the
// session directly.
func (g *MidtransGateway) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.midtrans.create_session")
	defer span.End()

	if req == nil {
		return nil, fmt.Errorf("session request is required")
	}

	sessionID := uuid.New().String()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("order_id", req.OrderID),
		attribute.Int64("amount", req.Amount),
	)

	body := snapRequest{
		TransactionDetails: snapTransactionDetails{
			OrderID:     sessionID,
			GrossAmount: req.Amount,
		},
	}
	for _, item := range req.ItemDetails {
		body.ItemDetails = append(body.ItemDetails, snapItemDetail(item))
	}
	if req.ExpiryMinutes > 0 {
		body.Expiry = &snapExpiry{Unit: "minutes", Duration: req.ExpiryMinutes}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snap request: %w", err)
	}

	url := g.config.BaseURL + "/snap/v1/transactions"
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build snap request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	hr.Header.Set("Authorization", "Basic "+basicAuth(g.config.ServerKey))

	hresp, err := g.hc.Do(hr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.Warn("midtrans unreachable",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading snap response: %v", domain.ErrGatewayUnavailable, err)
	}

	if hresp.StatusCode >= 500 {
		span.SetStatus(codes.Error, hresp.Status)
		return nil, fmt.Errorf("%w: snap returned %s", domain.ErrGatewayUnavailable, hresp.Status)
	}

	var resp snapResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode snap response: %w", err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		msg := hresp.Status
		if len(resp.ErrorMessages) > 0 {
			msg = resp.ErrorMessages[0]
		}
		span.SetStatus(codes.Error, msg)
		return nil, fmt.Errorf("snap rejected session: %s", msg)
	}

	span.SetStatus(codes.Ok, "")
	return &Session{
		ID:          sessionID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// Name returns the gateway name
func (g *MidtransGateway) Name() string {
	return "midtrans"
}

func basicAuth(serverKey string) string {
	return base64.StdEncoding.EncodeToString([]byte(serverKey + ":"))
}

// VerifyNotificationSignature checks the Midtrans signature_key field:
// sha512(order_id + status_code + gross_amount + server_key).
func VerifyNotificationSignature(serverKey, orderID, statusCode, grossAmount, signature string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:]) == signature
}

// MapTransactionStatus translates a Midtrans transaction_status into the
// neutral payment outcome the reconciler consumes.
func MapTransactionStatus(transactionStatus string) (domain.PaymentOutcome, bool) {
	switch transactionStatus {
	case "settlement", "capture":
		return domain.PaymentOutcomeSuccess, true
	case "pending":
		return domain.PaymentOutcomePending, true
	case "deny", "failure":
		return domain.PaymentOutcomeFailure, true
	case "cancel", "expire":
		return domain.PaymentOutcomeCancelled, true
	default:
		return "", false
	}
}

// Ensure MidtransGateway implements PaymentGateway
var _ PaymentGateway = (*MidtransGateway)(nil)
