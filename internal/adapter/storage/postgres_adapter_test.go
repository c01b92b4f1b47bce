package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

func getPostgresPool(t *testing.T) *pgxpool.Pool {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := ConnectPostgres(context.Background(), dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	if err := MigratePostgres(context.Background(), pool); err != nil {
		pool.Close()
		t.Fatalf("migrate failed: %v", err)
	}
	return pool
}

func TestPostgresProduct_DecreaseQuantity(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	ctx := context.Background()
	repo := NewPostgresProductRepository(pool, zap.NewNop())

	p, err := repo.Create(ctx, domain.NewProduct{Name: "PG Widget", Category: "toys", Price: 100, Quantity: 1, SKU: "PG-1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer repo.Delete(ctx, p.ID)

	updated, err := repo.DecreaseQuantity(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("DecreaseQuantity failed: %v", err)
	}
	if updated.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", updated.Quantity)
	}

	_, err = repo.DecreaseQuantity(ctx, p.ID, 1)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 0 {
		t.Errorf("expected insufficient stock with 0 available, got: %v", err)
	}

	if _, err := repo.DecreaseQuantity(ctx, "nonexistent-item", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestPostgresOrder_TransitionAndOwner(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	ctx := context.Background()
	repo := NewPostgresOrderRepository(pool, zap.NewNop())

	order, err := repo.Create(ctx, "pg-user", "pg@example.com", []domain.OrderItem{{ProductID: "p1", Quantity: 1}}, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, order.ID)

	if _, err := repo.GetForOwner(ctx, order.ID, "someone-else"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}

	updated, err := repo.TransitionStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed || len(updated.Items) != 1 {
		t.Errorf("unexpected order: %+v", updated)
	}
	if _, err := repo.TransitionStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for a stale status, got: %v", err)
	}
	if _, err := repo.TransitionStatus(ctx, "ghost", domain.OrderStatusPending, domain.OrderStatusConfirmed); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}

	page, err := repo.ListForOwner(ctx, "pg-user", domain.OrderFilter{Status: domain.OrderStatusConfirmed})
	if err != nil {
		t.Fatalf("ListForOwner failed: %v", err)
	}
	if len(page.Items) == 0 {
		t.Error("expected confirmed order in listing")
	}
}
