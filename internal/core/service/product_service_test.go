package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/order-pipeline/internal/adapter/storage"
	"github.com/rl1809/order-pipeline/internal/core/domain"
)

func newProductInput(quantity int) domain.NewProduct {
	return domain.NewProduct{
		Name:        "Trail Shoes",
		Description: "Lightweight",
		Category:    "sports",
		Price:       8900,
		Quantity:    quantity,
		SKU:         "TRAIL-42",
		ImageURL:    "https://cdn.example.com/trail.png",
	}
}

func TestProductService_CreateWarnsOnLowStock(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := NewProductService(storage.NewMemoryProductRepository(zap.NewNop()),
		WithLogger(zap.New(core)), WithLowStockThreshold(5))

	if _, err := svc.CreateProduct(context.Background(), newProductInput(50)); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if _, err := svc.CreateProduct(context.Background(), newProductInput(3)); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if n := logs.FilterMessage("product_low_stock").Len(); n != 1 {
		t.Errorf("expected one low stock warning, got %d", n)
	}
}

func TestProductService_CreateValidation(t *testing.T) {
	svc := NewProductService(storage.NewMemoryProductRepository(zap.NewNop()))

	bad := []func(*domain.NewProduct){
		func(p *domain.NewProduct) { p.Name = "" },
		func(p *domain.NewProduct) { p.Category = "weapons" },
		func(p *domain.NewProduct) { p.Price = 0 },
		func(p *domain.NewProduct) { p.Quantity = -1 },
		func(p *domain.NewProduct) { p.SKU = "has space" },
		func(p *domain.NewProduct) { p.ImageURL = "ftp://example.com/x.png" },
	}
	for i, mutate := range bad {
		in := newProductInput(10)
		mutate(&in)
		if _, err := svc.CreateProduct(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: expected ErrValidation, got: %v", i, err)
		}
	}
}

func TestProductService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewProductService(storage.NewMemoryProductRepository(zap.NewNop()))

	p, err := svc.CreateProduct(ctx, newProductInput(10))
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if _, err := svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty patch: expected ErrValidation, got: %v", err)
	}

	qty := 7
	updated, err := svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{Quantity: &qty})
	if err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}
	if updated.Quantity != 7 || updated.Name != p.Name {
		t.Errorf("unexpected product after patch: %+v", updated)
	}

	if err := svc.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if _, err := svc.GetProduct(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
}

func TestProductService_LowStockProducts(t *testing.T) {
	ctx := context.Background()
	svc := NewProductService(storage.NewMemoryProductRepository(zap.NewNop()), WithLowStockThreshold(5))

	for _, q := range []int{0, 5, 6, 100} {
		if _, err := svc.CreateProduct(ctx, newProductInput(q)); err != nil {
			t.Fatalf("CreateProduct failed: %v", err)
		}
	}

	low, err := svc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("LowStockProducts failed: %v", err)
	}
	if len(low) != 2 {
		t.Errorf("expected 2 low stock products, got %d", len(low))
	}
	if svc.LowStockThreshold() != 5 {
		t.Errorf("expected threshold 5, got %d", svc.LowStockThreshold())
	}
}

func TestProductService_ListRejectsBadFilter(t *testing.T) {
	svc := NewProductService(storage.NewMemoryProductRepository(zap.NewNop()))

	_, err := svc.ListProducts(context.Background(), domain.ProductFilter{Category: "weapons"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
	_, err = svc.ListProducts(context.Background(), domain.ProductFilter{PageSize: MaxProductPageSize + 1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
}
