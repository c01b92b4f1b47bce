package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/port"
)

const (
	useCaseCreateProduct = "product.create"
	useCaseGetProduct    = "product.get"
	useCaseUpdateProduct = "product.update"
	useCaseDeleteProduct = "product.delete"
	useCaseListProducts  = "product.list"
	useCaseLowStock      = "product.low_stock"
)

// lowStockScanLimit bounds the catalog scan behind LowStockProducts.
const lowStockScanLimit = 100

type ProductService struct {
	products port.ProductRepository
	opts     options
}

func NewProductService(products port.ProductRepository, opts ...Option) *ProductService {
	return &ProductService{products: products, opts: newOptions(opts)}
}

func (s *ProductService) LowStockThreshold() int {
	return s.opts.lowStockThreshold
}

func (s *ProductService) CreateProduct(ctx context.Context, input domain.NewProduct) (_ *domain.Product, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseCreateProduct, "CreateProduct", attribute.String("product.category", input.Category))
	uc.with(zap.String("category", input.Category))
	defer func() { uc.done(err) }()

	if err := validateNewProduct(input); err != nil {
		return nil, err
	}

	product, err := s.products.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	uc.with(zap.String("product_id", product.ID))
	s.warnLowStock(uc, product)
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseGetProduct, "GetProduct", attribute.String("product.id", id))
	uc.with(zap.String("product_id", id))
	defer func() { uc.done(err) }()

	return s.products.Get(ctx, id)
}

func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (_ *domain.Product, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseUpdateProduct, "UpdateProduct", attribute.String("product.id", id))
	uc.with(zap.String("product_id", id))
	defer func() { uc.done(err) }()

	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	product, err := s.products.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.Quantity != nil {
		s.warnLowStock(uc, product)
	}
	return product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id string) (err error) {
	ctx, uc := s.opts.begin(ctx, useCaseDeleteProduct, "DeleteProduct", attribute.String("product.id", id))
	uc.with(zap.String("product_id", id))
	defer func() { uc.done(err) }()

	return s.products.Delete(ctx, id)
}

func (s *ProductService) ListProducts(ctx context.Context, filter domain.ProductFilter) (_ domain.ProductPage, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseListProducts, "ListProducts", attribute.String("product.category", filter.Category))
	uc.with(zap.String("category", filter.Category), zap.Int("page_size", filter.PageSize))
	defer func() { uc.done(err) }()

	if err := validateProductFilter(filter); err != nil {
		return domain.ProductPage{}, err
	}
	return s.products.List(ctx, filter)
}

// LowStockProducts scans the first page of the catalog for products at or below the threshold.
func (s *ProductService) LowStockProducts(ctx context.Context) (_ []domain.Product, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseLowStock, "LowStockProducts")
	defer func() { uc.done(err) }()

	page, err := s.products.List(ctx, domain.ProductFilter{PageSize: lowStockScanLimit})
	if err != nil {
		return nil, err
	}

	low := make([]domain.Product, 0)
	for _, p := range page.Items {
		if p.LowStock(s.opts.lowStockThreshold) {
			low = append(low, p)
		}
	}
	uc.with(zap.Int("count", len(low)))
	return low, nil
}

func (s *ProductService) warnLowStock(uc *useCase, p *domain.Product) {
	if !p.LowStock(s.opts.lowStockThreshold) {
		return
	}
	uc.log.Warn("product_low_stock",
		zap.String("product_id", p.ID),
		zap.Int("quantity", p.Quantity),
		zap.Int("threshold", s.opts.lowStockThreshold),
	)
}
