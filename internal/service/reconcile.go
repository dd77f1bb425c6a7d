package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/messaging"
	"github.com/storefront/checkout/internal/payfast"
	"github.com/storefront/checkout/internal/repository"
)

// TopicOrderPaid carries OrderPaid events for downstream consumers.
const TopicOrderPaid = "orders.paid"

// StatusComplete is the gateway's terminal success payment status. Pending
// and failed notifications never mutate order state.
const StatusComplete = "COMPLETE"

// ReconcileService matches asynchronous gateway payment notifications (ITNs)
// against persisted orders and marks them paid exactly once. Anomalies are
// returned as errors for logging; the HTTP edge still acknowledges the
// gateway with success so redelivery storms never build up.
type ReconcileService struct {
	orders     repository.OrderStore
	publisher  messaging.Publisher
	passphrase string
	tolerance  decimal.Decimal
	now        func() time.Time
}

func NewReconcileService(
	orders repository.OrderStore,
	publisher messaging.Publisher,
	passphrase string,
	tolerance decimal.Decimal,
) *ReconcileService {
	return &ReconcileService{
		orders:     orders,
		publisher:  publisher,
		passphrase: passphrase,
		tolerance:  tolerance,
		now:        time.Now,
	}
}

// HandleNotification processes one raw ITN body. A nil return means the
// notification either reconciled an order or was a legitimate no-op
// (duplicate delivery, non-terminal status). A non-nil return is a
// reconciliation anomaly: bad signature, unknown order or amount mismatch
// indicate fraud attempts, integration bugs or races and must be logged.
func (s *ReconcileService) HandleNotification(ctx context.Context, rawBody string) error {
	fields, err := payfast.ParseForm(rawBody)
	if err != nil {
		return fmt.Errorf("malformed notification body: %w", err)
	}

	signature, ok := payfast.Lookup(fields, payfast.SignatureKey)
	if !ok {
		return errors.New("notification has no signature")
	}
	if !payfast.Verify(fields, signature, s.passphrase) {
		return errors.New("notification signature mismatch")
	}

	paymentID, ok := payfast.Lookup(fields, "m_payment_id")
	if !ok || paymentID == "" {
		return errors.New("notification has no m_payment_id")
	}

	order, err := s.orders.FindByID(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("notification references unknown order %s", paymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", paymentID, err)
	}

	status, _ := payfast.Lookup(fields, "payment_status")
	if status != StatusComplete {
		slog.Info("Ignoring non-terminal payment notification", "order_id", paymentID, "status", status)
		return nil
	}

	grossRaw, _ := payfast.Lookup(fields, "amount_gross")
	gross, err := decimal.NewFromString(grossRaw)
	if err != nil {
		return fmt.Errorf("notification has unparseable amount_gross %q: %w", grossRaw, err)
	}
	if gross.Sub(order.TotalAmount).Abs().GreaterThan(s.tolerance) {
		return fmt.Errorf("amount mismatch for order %s: notified %s, expected %s",
			paymentID, gross.StringFixed(2), order.TotalAmount.StringFixed(2))
	}

	if order.IsPaid {
		slog.Info("Ignoring duplicate payment notification", "order_id", paymentID)
		return nil
	}

	transactionID, _ := payfast.Lookup(fields, "pf_payment_id")
	email, _ := payfast.Lookup(fields, "email_address")
	paidAt := s.now()
	result := entity.PaymentResult{
		TransactionID: transactionID,
		Status:        status,
		Email:         email,
		NotifiedAt:    paidAt,
	}

	// The compare-and-set at the store is what makes redelivery safe; the
	// IsPaid check above only short-circuits the common duplicate.
	err = s.orders.MarkPaid(ctx, order.ID, result, paidAt)
	if errors.Is(err, repository.ErrAlreadyPaid) {
		slog.Info("Order already paid, notification raced a duplicate", "order_id", order.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark order %s paid: %w", order.ID, err)
	}

	event := entity.OrderPaid{
		OrderID:       order.ID,
		TransactionID: transactionID,
		AmountGross:   gross,
		PaidAt:        paidAt,
	}
	if err := s.publisher.PublishEvent(ctx, TopicOrderPaid, order.ID, event); err != nil {
		slog.Error("Failed to publish OrderPaid event", "order_id", order.ID, "err", err)
	}

	slog.Info("Order reconciled as paid", "order_id", order.ID, "transaction_id", transactionID)
	return nil
}
