package service

import (
	"context"
	"errors"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ReconcilerService applies gateway settlement signals to orders and their
// inventory holds. Every path is idempotent: duplicated and out-of-order
// notifications converge on the same final state.
type ReconcilerService interface {
	// HandleNotification applies one payment outcome to the owning order.
	// An unknown session returns ErrUnknownSession, which callers should
	// treat as benign.
	HandleNotification(ctx context.Context, n *domain.PaymentNotification) error

	// ExpireOverdue expires pending orders whose hold deadline passed and
	// returns the holds to the pool. Returns the number of orders expired.
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// reconcilerService implements ReconcilerService
type reconcilerService struct {
	orderRepo  repository.OrderRepository
	ledgerRepo repository.LedgerRepository
	log        *logger.Logger
}

// NewReconcilerService creates a new reconciler service
func NewReconcilerService(
	orderRepo repository.OrderRepository,
	ledgerRepo repository.LedgerRepository,
) ReconcilerService {
	return &reconcilerService{
		orderRepo:  orderRepo,
		ledgerRepo: ledgerRepo,
		log:        logger.Get(),
	}
}

// HandleNotification applies one payment outcome to the owning order
func (s *reconcilerService) HandleNotification(ctx context.Context, n *domain.PaymentNotification) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.handle_notification")
	defer span.End()

	if n == nil || n.SessionID == "" {
		span.SetStatus(codes.Error, "missing session")
		return domain.ErrUnknownSession
	}
	if !n.Outcome.IsValid() {
		span.SetStatus(codes.Error, "unknown outcome")
		return domain.ErrUnknownSession
	}

	span.SetAttributes(
		attribute.String("session_id", n.SessionID),
		attribute.String("outcome", string(n.Outcome)),
	)

	order, err := s.orderRepo.GetByPaymentSessionID(ctx, n.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Sessions are never reused, so an unknown id is either a
			// stray redelivery or someone else's traffic. Log and move on.
			s.log.Warn("notification for unknown payment session",
				zap.String("session_id", n.SessionID),
				zap.String("outcome", string(n.Outcome)))
			return domain.ErrUnknownSession
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("order_id", order.ID))

	switch n.Outcome {
	case domain.PaymentOutcomeSuccess:
		return s.applySuccess(ctx, order, n)
	case domain.PaymentOutcomePending:
		// The buyer is still inside the checkout flow. Nothing to do.
		span.SetStatus(codes.Ok, "")
		return nil
	case domain.PaymentOutcomeFailure:
		return s.applyTerminal(ctx, order, domain.OrderStatusFailed, "payment_failed")
	case domain.PaymentOutcomeCancelled:
		return s.applyTerminal(ctx, order, domain.OrderStatusCancelled, "payment_cancelled")
	}
	return nil
}

// applySuccess settles a paid order. The status CAS is the arbiter: only the
// winner touches the ledger, so a concurrent expiry sweep cannot release
// holds we are about to commit.
func (s *reconcilerService) applySuccess(ctx context.Context, order *domain.Order, n *domain.PaymentNotification) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.apply_success")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", order.ID))

	err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusPendingPayment, domain.OrderStatusPaid, "")
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			current, getErr := s.orderRepo.GetByID(ctx, order.ID)
			if getErr != nil {
				return getErr
			}
			if current.Status == domain.OrderStatusPaid {
				// Duplicate settlement. Already applied.
				span.SetStatus(codes.Ok, "duplicate")
				return nil
			}
			// Settlement raced a terminal transition (expiry or failure)
			// and lost. The money side needs human eyes.
			s.log.Warn("settlement arrived after order left pending payment",
				zap.String("order_id", order.ID),
				zap.String("status", current.Status.String()))
			span.SetStatus(codes.Ok, "lost race")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if n.GatewayTxnID != "" {
		if err := s.orderRepo.SetGatewayTxn(ctx, order.ID, n.GatewayTxnID); err != nil {
			s.log.Error("failed to record gateway transaction id",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	for _, holdID := range order.HoldIDs {
		if err := s.ledgerRepo.Commit(ctx, holdID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error("failed to commit hold for paid order",
				zap.String("order_id", order.ID),
				zap.String("hold_id", holdID),
				zap.Error(err))
			return err
		}
	}

	s.log.Info("order settled",
		zap.String("order_id", order.ID),
		zap.String("session_id", n.SessionID))
	span.SetStatus(codes.Ok, "")
	return nil
}

// applyTerminal moves a pending order to a terminal status and releases its holds
func (s *reconcilerService) applyTerminal(ctx context.Context, order *domain.Order, to domain.OrderStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.apply_terminal")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("to", to.String()),
	)

	err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusPendingPayment, to, reason)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Already terminal: a duplicate or a lost race. Both benign.
			span.SetStatus(codes.Ok, "duplicate")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, holdID := range order.HoldIDs {
		if err := s.ledgerRepo.Release(ctx, holdID); err != nil {
			span.RecordError(err)
			s.log.Error("failed to release hold",
				zap.String("order_id", order.ID),
				zap.String("hold_id", holdID),
				zap.Error(err))
			return err
		}
	}

	s.log.Info("order closed",
		zap.String("order_id", order.ID),
		zap.String("status", to.String()),
		zap.String("reason", reason))
	span.SetStatus(codes.Ok, "")
	return nil
}

// ExpireOverdue expires pending orders whose hold deadline passed
func (s *reconcilerService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.expire_overdue")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	orders, err := s.orderRepo.GetExpiredPending(ctx, time.Now().UTC(), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		err := s.orderRepo.TransitionStatus(ctx, order.ID, domain.OrderStatusPendingPayment, domain.OrderStatusExpired, "hold_expired")
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				// A settlement signal won the race. Leave it alone.
				continue
			}
			span.RecordError(err)
			return expired, err
		}
		for _, holdID := range order.HoldIDs {
			if err := s.ledgerRepo.Release(ctx, holdID); err != nil {
				s.log.Error("failed to release hold during expiry",
					zap.String("order_id", order.ID),
					zap.String("hold_id", holdID),
					zap.Error(err))
			}
		}
		expired++
	}

	if expired > 0 {
		s.log.Info("expired overdue orders", zap.Int("count", expired))
	}
	span.SetAttributes(attribute.Int("expired", expired))
	span.SetStatus(codes.Ok, "")
	return expired, nil
}
