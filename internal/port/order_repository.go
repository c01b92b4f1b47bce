package port

import (
	"context"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

// OrderRepository exclusively owns order records.
type OrderRepository interface {
	// Create writes the order and its owner index entry in a single write, status PENDING.
	Create(ctx context.Context, userID, userEmail string, items []domain.OrderItem, totalAmount int64) (*domain.Order, error)

	Get(ctx context.Context, id string) (*domain.Order, error)

	// GetForOwner reports ErrNotFound for orders owned by someone else.
	GetForOwner(ctx context.Context, id, ownerID string) (*domain.Order, error)

	// TransitionStatus writes to only while the order is still in from, and
	// reports ErrInvalidTransition otherwise. Graph legality is the caller's concern.
	TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)

	ListForOwner(ctx context.Context, ownerID string, filter domain.OrderFilter) (domain.OrderPage, error)
}
