package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

func newTestProduct(t *testing.T, repo *MemoryProductRepository, category string, quantity int) *domain.Product {
	t.Helper()
	p, err := repo.Create(context.Background(), domain.NewProduct{
		Name:     "Widget " + category,
		Category: category,
		Price:    4999,
		Quantity: quantity,
		SKU:      "WID-1",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return p
}

func TestMemoryProduct_CreateAndGet(t *testing.T) {
	repo := NewMemoryProductRepository(zap.NewNop())
	created := newTestProduct(t, repo, "toys", 5)

	if created.ID == "" || created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("identity and timestamps not assigned: %+v", created)
	}

	got, err := repo.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Quantity != 5 || got.Name != created.Name {
		t.Errorf("unexpected product: %+v", got)
	}

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryProduct_DecreaseQuantity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	p := newTestProduct(t, repo, "toys", 5)

	updated, err := repo.DecreaseQuantity(ctx, p.ID, 2)
	if err != nil {
		t.Fatalf("DecreaseQuantity failed: %v", err)
	}
	if updated.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", updated.Quantity)
	}

	// Exact remaining amount drains to zero
	updated, err = repo.DecreaseQuantity(ctx, p.ID, 3)
	if err != nil {
		t.Fatalf("DecreaseQuantity failed: %v", err)
	}
	if updated.Quantity != 0 {
		t.Errorf("expected quantity 0, got %d", updated.Quantity)
	}
}

func TestMemoryProduct_DecreaseQuantity_Insufficient(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	p := newTestProduct(t, repo, "toys", 0)

	_, err := repo.DecreaseQuantity(ctx, p.ID, 1)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if stockErr.Available != 0 || stockErr.Requested != 1 {
		t.Errorf("expected available 0 requested 1, got %+v", stockErr)
	}

	got, _ := repo.Get(ctx, p.ID)
	if got.Quantity != 0 {
		t.Errorf("quantity changed on failed decrement: %d", got.Quantity)
	}
}

func TestMemoryProduct_DecreaseQuantity_NotFound(t *testing.T) {
	repo := NewMemoryProductRepository(zap.NewNop())

	_, err := repo.DecreaseQuantity(context.Background(), "ghost", 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if errors.Is(err, domain.ErrInsufficientStock) {
		t.Error("not-found must not also report insufficient stock")
	}
}

func TestMemoryProduct_DecreaseQuantity_InvalidAmount(t *testing.T) {
	repo := NewMemoryProductRepository(zap.NewNop())
	p := newTestProduct(t, repo, "toys", 5)

	for _, amount := range []int{0, -1} {
		if _, err := repo.DecreaseQuantity(context.Background(), p.ID, amount); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("amount %d: expected ErrValidation, got: %v", amount, err)
		}
	}
}

func TestMemoryProduct_DecreaseQuantity_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())

	initialStock := 20
	totalRequests := 50
	p := newTestProduct(t, repo, "toys", initialStock)

	var successCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.DecreaseQuantity(ctx, p.ID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if insufficientCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d insufficient, got %d", totalRequests-initialStock, insufficientCount.Load())
	}

	got, _ := repo.Get(ctx, p.ID)
	if got.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", got.Quantity)
	}

	_, err := repo.DecreaseQuantity(ctx, p.ID, 1)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError after sell-out, got: %v", err)
	}
	if stockErr.Available != 0 || stockErr.Requested != 1 {
		t.Errorf("expected available 0 requested 1, got %d %d", stockErr.Available, stockErr.Requested)
	}
}

func TestMemoryProduct_UpdateMovesCategoryIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	p := newTestProduct(t, repo, "electronics", 5)

	books := "books"
	price := int64(1999)
	updated, err := repo.Update(ctx, p.ID, domain.ProductPatch{Category: &books, Price: &price})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Category != "books" || updated.Price != 1999 || updated.Quantity != 5 {
		t.Errorf("unexpected product after update: %+v", updated)
	}
	if updated.UpdatedAt.Before(p.UpdatedAt) {
		t.Error("updatedAt moved backwards")
	}

	page, _ := repo.List(ctx, domain.ProductFilter{Category: "books"})
	if len(page.Items) != 1 || page.Items[0].ID != p.ID {
		t.Errorf("expected product under books, got %+v", page.Items)
	}
	page, _ = repo.List(ctx, domain.ProductFilter{Category: "electronics"})
	if len(page.Items) != 0 {
		t.Errorf("expected no products under electronics, got %d", len(page.Items))
	}
}

func TestMemoryProduct_UpdateErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	p := newTestProduct(t, repo, "toys", 5)

	if _, err := repo.Update(ctx, p.ID, domain.ProductPatch{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty patch, got: %v", err)
	}

	name := "renamed"
	if _, err := repo.Update(ctx, "missing", domain.ProductPatch{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryProduct_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	p := newTestProduct(t, repo, "toys", 5)

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got: %v", err)
	}
}

func TestMemoryProduct_ListCategoryPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	for i := 0; i < 5; i++ {
		newTestProduct(t, repo, "toys", i)
	}
	newTestProduct(t, repo, "food", 1)

	seen := make(map[string]bool)
	var pages []int
	token := ""
	for {
		page, err := repo.List(ctx, domain.ProductFilter{Category: "toys", PageSize: 2, Cursor: token})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		pages = append(pages, len(page.Items))
		for i, p := range page.Items {
			if seen[p.ID] {
				t.Fatalf("product %s returned twice", p.ID)
			}
			seen[p.ID] = true
			if i > 0 && p.CreatedAt.After(page.Items[i-1].CreatedAt) {
				t.Error("category listing not newest first")
			}
		}
		if page.Cursor == "" {
			break
		}
		token = page.Cursor
	}

	if fmt.Sprint(pages) != "[2 2 1]" {
		t.Errorf("expected pages [2 2 1], got %v", pages)
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 toys, got %d", len(seen))
	}
}

func TestMemoryProduct_ListSearchAndBadCursor(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository(zap.NewNop())
	newTestProduct(t, repo, "toys", 1)
	newTestProduct(t, repo, "food", 1)

	page, err := repo.List(ctx, domain.ProductFilter{Search: "food"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Category != "food" {
		t.Errorf("unexpected search result: %+v", page.Items)
	}

	// An undecodable cursor starts from the beginning
	page, err = repo.List(ctx, domain.ProductFilter{Cursor: "%%%not-a-cursor"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 || page.Cursor != "" {
		t.Errorf("expected full first page, got %d items cursor %q", len(page.Items), page.Cursor)
	}
}

func TestMemoryOrder_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository(zap.NewNop())
	items := []domain.OrderItem{{ProductID: "p1", ProductName: "Widget", Quantity: 2, PricePerUnit: 500, TotalPrice: 1000}}

	order, err := repo.Create(ctx, "user-1", "u1@example.com", items, 1000)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected PENDING, got %s", order.Status)
	}

	if _, err := repo.GetForOwner(ctx, order.ID, "user-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign owner, got: %v", err)
	}
	got, err := repo.GetForOwner(ctx, order.ID, "user-1")
	if err != nil {
		t.Fatalf("GetForOwner failed: %v", err)
	}
	if got.TotalAmount != 1000 || len(got.Items) != 1 {
		t.Errorf("unexpected order: %+v", got)
	}

	confirmed, err := repo.TransitionStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", confirmed.Status)
	}

	if _, err := repo.TransitionStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for a stale status, got: %v", err)
	}
	if got, _ := repo.Get(ctx, order.ID); got.Status != domain.OrderStatusConfirmed {
		t.Errorf("stale write must not change the order, got %s", got.Status)
	}

	if _, err := repo.TransitionStatus(ctx, "ghost", domain.OrderStatusPending, domain.OrderStatusConfirmed); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryOrder_ListForOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository(zap.NewNop())

	var ids []string
	for i := 0; i < 3; i++ {
		o, err := repo.Create(ctx, "user-1", "u1@example.com", nil, 0)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, o.ID)
	}
	repo.Create(ctx, "user-2", "u2@example.com", nil, 0)
	repo.TransitionStatus(ctx, ids[0], domain.OrderStatusPending, domain.OrderStatusCancelled)

	first, err := repo.ListForOwner(ctx, "user-1", domain.OrderFilter{PageSize: 2})
	if err != nil {
		t.Fatalf("ListForOwner failed: %v", err)
	}
	if len(first.Items) != 2 || first.Cursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(first.Items), first.Cursor)
	}
	second, err := repo.ListForOwner(ctx, "user-1", domain.OrderFilter{PageSize: 2, Cursor: first.Cursor})
	if err != nil {
		t.Fatalf("ListForOwner failed: %v", err)
	}
	if len(second.Items) != 1 || second.Cursor != "" {
		t.Errorf("expected final page of 1, got %d %q", len(second.Items), second.Cursor)
	}

	cancelled, _ := repo.ListForOwner(ctx, "user-1", domain.OrderFilter{Status: domain.OrderStatusCancelled})
	if len(cancelled.Items) != 1 || cancelled.Items[0].ID != ids[0] {
		t.Errorf("expected the cancelled order only, got %+v", cancelled.Items)
	}
}
