package port

import (
	"context"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

// Notifier delivers the user-facing confirmation.
type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, msg domain.ConfirmationMessage) error
}

// Alerter sends operational alerts. Callers treat every method as best-effort.
type Alerter interface {
	AlertNewOrder(ctx context.Context, msg domain.ConfirmationMessage) error
	AlertUndeliverable(ctx context.Context, msg domain.ConfirmationMessage, deliveryCount int) error
}
