package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

// LogNotifier stands in for email delivery when SMTP is not configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) NotifyOrderConfirmed(ctx context.Context, msg domain.ConfirmationMessage) error {
	r := RenderConfirmation(msg)
	n.log.Info("confirmation_notification_logged",
		zap.String("order_id", msg.OrderID),
		zap.String("user_email", msg.UserEmail),
		zap.String("subject", r.Subject),
	)
	return nil
}

// LogAlerter is used when no alert topic is configured.
type LogAlerter struct {
	log *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{log: logger}
}

func (a *LogAlerter) AlertNewOrder(ctx context.Context, msg domain.ConfirmationMessage) error {
	a.log.Debug("new_order_alert_skipped", zap.String("order_id", msg.OrderID))
	return nil
}

func (a *LogAlerter) AlertUndeliverable(ctx context.Context, msg domain.ConfirmationMessage, deliveryCount int) error {
	a.log.Warn("undeliverable_alert_logged",
		zap.String("order_id", msg.OrderID),
		zap.Int("delivery_count", deliveryCount),
		zap.String("subject", RenderUndeliverableAlert(msg, deliveryCount).Subject),
	)
	return nil
}
