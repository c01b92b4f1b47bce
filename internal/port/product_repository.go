package port

import (
	"context"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

// ProductRepository is the inventory ledger. It exclusively owns product records.
type ProductRepository interface {
	// Create assigns identity and timestamps; ErrAlreadyExists on identity collision.
	Create(ctx context.Context, input domain.NewProduct) (*domain.Product, error)

	Get(ctx context.Context, id string) (*domain.Product, error)

	// Update applies only the present patch fields and keeps the category index in step.
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)

	// DecreaseQuantity atomically decrements quantity if and only if the record exists
	// and holds at least amount. Fails with ErrNotFound or *domain.InsufficientStockError.
	DecreaseQuantity(ctx context.Context, id string, amount int) (*domain.Product, error)

	Delete(ctx context.Context, id string) error

	List(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error)
}
