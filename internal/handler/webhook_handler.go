package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/dto"
	"github.com/tobslayerr/sievent-ticketing/internal/gateway"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/service"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// WebhookHandler receives payment notifications from Midtrans
type WebhookHandler struct {
	reconciler      service.ReconcilerService
	serverKey       string
	verifySignature bool
	log             *logger.Logger
}

// WebhookHandlerConfig contains configuration for the webhook handler
type WebhookHandlerConfig struct {
	// ServerKey is the Midtrans server key used to verify signatures
	ServerKey string
	// VerifySignature can be disabled for local development with the mock gateway
	VerifySignature bool
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler service.ReconcilerService, cfg *WebhookHandlerConfig) *WebhookHandler {
	serverKey := ""
	verify := false
	if cfg != nil {
		serverKey = cfg.ServerKey
		verify = cfg.VerifySignature
	}
	return &WebhookHandler{
		reconciler:      reconciler,
		serverKey:       serverKey,
		verifySignature: verify,
		log:             logger.Get(),
	}
}

// HandleNotification handles POST /webhooks/midtrans.
// Midtrans redelivers until it sees 200, so every benign condition
// (duplicate, unknown session, lost race) answers OK.
func (h *WebhookHandler) HandleNotification(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.midtrans")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.MidtransNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "invalid payload",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(
		attribute.String("session_id", req.OrderID),
		attribute.String("transaction_status", req.TransactionStatus),
	)

	if h.verifySignature {
		if !gateway.VerifyNotificationSignature(h.serverKey, req.OrderID, req.StatusCode, req.GrossAmount, req.SignatureKey) {
			h.log.Warn("webhook signature mismatch",
				zap.String("session_id", req.OrderID))
			span.SetStatus(codes.Error, "bad signature")
			c.JSON(http.StatusForbidden, dto.ErrorResponse{
				Error: "signature verification failed",
				Code:  "FORBIDDEN",
			})
			return
		}
	}

	outcome, ok := gateway.MapTransactionStatus(req.TransactionStatus)
	if !ok {
		h.log.Warn("webhook with unmapped transaction status",
			zap.String("session_id", req.OrderID),
			zap.String("transaction_status", req.TransactionStatus))
		// Acknowledge so Midtrans stops redelivering something we will
		// never understand.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	notification := &domain.PaymentNotification{
		SessionID:    req.OrderID,
		Outcome:      outcome,
		GatewayTxnID: req.TransactionID,
		ReceivedAt:   time.Now().UTC(),
	}

	if err := h.reconciler.HandleNotification(ctx, notification); err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
