package service

import (
	"context"
	"fmt"

	"table-service/internal/models"
	"table-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService validates, dedups and confirms payment attempts on orders
type PaymentService struct {
	exec   *TableExecutor
	stats  *CustomerStats
	logger *zap.Logger
}

// NewPaymentService creates a new payment service. stats may be nil when no
// customer profile store is configured.
func NewPaymentService(exec *TableExecutor, stats *CustomerStats) *PaymentService {
	return &PaymentService{
		exec:   exec,
		stats:  stats,
		logger: util.ComponentLogger("payments"),
	}
}

// SubmitPaymentRequest represents a device's payment attempt
type SubmitPaymentRequest struct {
	Method     string          `json:"method" binding:"required"`
	Tip        decimal.Decimal `json:"tip"`
	ProofRef   *string         `json:"proof_ref,omitempty"`
	PaymentRef *string         `json:"payment_ref,omitempty"`
}

func validPaymentMethod(method string) bool {
	switch method {
	case models.PaymentMethodCash, models.PaymentMethodCard, models.PaymentMethodTransfer:
		return true
	}
	return false
}

// SubmitPayment records a payment attempt. Every method needs a later
// confirmation; nothing is marked paid here.
func (ps *PaymentService) SubmitPayment(ctx context.Context, orderID string, req *SubmitPaymentRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.SubmitPayment")
	defer span.End()

	if !validPaymentMethod(req.Method) {
		util.CommandsFailedTotal.WithLabelValues("submit_payment", "validation").Inc()
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.Method)
	}
	if req.Tip.IsNegative() {
		util.CommandsFailedTotal.WithLabelValues("submit_payment", "validation").Inc()
		return nil, fmt.Errorf("%w: tip must not be negative", ErrValidation)
	}

	order, err := ps.exec.RunForOrder(ctx, orderID, func(ctx context.Context, u *tableUnit, o *models.Order) error {
		if o.Paid {
			return fmt.Errorf("%w: order %s is already paid", ErrConflict, o.ID)
		}
		if o.State == models.OrderStateCancelled {
			return fmt.Errorf("%w: order %s is cancelled", ErrConflict, o.ID)
		}
		// an in-flight attempt may switch method but not be resubmitted as is
		if o.PaymentState == models.PaymentStateProcessing && o.PaymentMethod == req.Method {
			return fmt.Errorf("%w: %s payment already in progress for order %s", ErrConflict, req.Method, o.ID)
		}

		o.PaymentMethod = req.Method
		o.Tip = req.Tip
		o.PaymentProof = req.ProofRef
		o.PaymentRef = req.PaymentRef
		o.RejectionReason = nil
		o.PaymentState = models.PaymentStateProcessing
		o.Paid = false
		u.Touch(o)
		u.EmitOrder(models.EventTypePaymentSubmitted, o, "")
		return nil
	})
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("submit_payment", errorReason(err)).Inc()
		return nil, err
	}

	util.PaymentsSubmittedTotal.WithLabelValues(req.Method).Inc()
	ps.logger.Info("Payment submitted",
		zap.String("order_id", order.ID),
		zap.String("method", order.PaymentMethod),
		zap.String("tip", order.Tip.String()))
	return order, nil
}

// ConfirmPayment marks an order paid. The customer statistics update runs
// afterwards and can never undo or fail the confirmation.
func (ps *PaymentService) ConfirmPayment(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ConfirmPayment")
	defer span.End()

	order, err := ps.exec.RunForOrder(ctx, orderID, func(ctx context.Context, u *tableUnit, o *models.Order) error {
		if o.Paid {
			return fmt.Errorf("%w: order %s is already paid", ErrConflict, o.ID)
		}
		if o.State == models.OrderStateCancelled {
			return fmt.Errorf("%w: order %s is cancelled", ErrConflict, o.ID)
		}

		o.Paid = true
		o.PaymentState = models.PaymentStateConfirmed
		u.Touch(o)
		u.EmitOrder(models.EventTypePaymentConfirmed, o, "")
		return nil
	})
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("confirm_payment", errorReason(err)).Inc()
		return nil, err
	}

	util.PaymentsConfirmedTotal.Inc()
	ps.logger.Info("Payment confirmed",
		zap.String("order_id", order.ID),
		zap.Int("table_number", order.TableNumber))

	if ps.stats != nil && order.CustomerID != nil {
		if err := ps.stats.RecordConfirmedOrder(ctx, order); err != nil {
			util.CustomerStatsFailedTotal.Inc()
			ps.logger.Error("Failed to update customer statistics",
				zap.String("order_id", order.ID),
				zap.String("customer_id", *order.CustomerID),
				zap.Error(err))
		}
	}

	return order, nil
}

// RejectPayment turns down an in-flight attempt; the device may retry
func (ps *PaymentService) RejectPayment(ctx context.Context, orderID, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.RejectPayment")
	defer span.End()

	order, err := ps.exec.RunForOrder(ctx, orderID, func(ctx context.Context, u *tableUnit, o *models.Order) error {
		if o.Paid {
			return fmt.Errorf("%w: order %s is already paid", ErrConflict, o.ID)
		}
		if o.PaymentState != models.PaymentStateProcessing {
			return fmt.Errorf("%w: order %s has no payment in progress", ErrConflict, o.ID)
		}

		o.PaymentState = models.PaymentStateRejected
		if reason != "" {
			r := reason
			o.RejectionReason = &r
		}
		u.Touch(o)
		u.EmitOrder(models.EventTypePaymentRejected, o, "")
		return nil
	})
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("reject_payment", errorReason(err)).Inc()
		return nil, err
	}

	util.PaymentsRejectedTotal.Inc()
	ps.logger.Warn("Payment rejected",
		zap.String("order_id", order.ID),
		zap.String("reason", reason))
	return order, nil
}
