package domain

import (
	"slices"
	"time"
)

const DefaultLowStockThreshold = 10

var ProductCategories = []string{
	"electronics",
	"clothing",
	"home",
	"sports",
	"books",
	"toys",
	"food",
	"other",
}

func ValidCategory(category string) bool {
	return slices.Contains(ProductCategories, category)
}

// Product prices are integer minor currency units (4999 = $49.99).
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       int64
	Quantity    int
	SKU         string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Product) LowStock(threshold int) bool {
	return p.Quantity <= threshold
}

type NewProduct struct {
	Name        string
	Description string
	Category    string
	Price       int64
	Quantity    int
	SKU         string
	ImageURL    string
}

// ProductPatch lists the fields an update may touch. Nil means unchanged.
type ProductPatch struct {
	Name        *string
	Description *string
	Category    *string
	Price       *int64
	Quantity    *int
	SKU         *string
	ImageURL    *string
}

func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Category == nil &&
		p.Price == nil && p.Quantity == nil && p.SKU == nil && p.ImageURL == nil
}

// Apply copies the present fields onto product. The caller owns timestamps.
func (p ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Quantity != nil {
		product.Quantity = *p.Quantity
	}
	if p.SKU != nil {
		product.SKU = *p.SKU
	}
	if p.ImageURL != nil {
		product.ImageURL = *p.ImageURL
	}
}

type ProductFilter struct {
	Category string
	Search   string
	PageSize int
	Cursor   string
}

type ProductPage struct {
	Items  []Product
	Cursor string
}
