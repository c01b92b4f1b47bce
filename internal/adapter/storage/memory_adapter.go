package storage

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

type productRecord struct {
	keys    domain.RecordKeys
	product domain.Product
}

type orderRecord struct {
	keys  domain.RecordKeys
	order domain.Order
}

// MemoryProductRepository keeps products in process. Its mutex stands in for the
// conditional-write guarantees of a remote store.
type MemoryProductRepository struct {
	mu    sync.RWMutex
	items map[string]*productRecord
	log   *zap.Logger
	newID func() string
}

func NewMemoryProductRepository(logger *zap.Logger) *MemoryProductRepository {
	return &MemoryProductRepository{
		items: make(map[string]*productRecord),
		log:   logger,
		newID: uuid.NewString,
	}
}

func (r *MemoryProductRepository) Create(ctx context.Context, input domain.NewProduct) (*domain.Product, error) {
	ts := now()
	product := domain.Product{
		ID:          r.newID(),
		Name:        input.Name,
		Description: input.Description,
		Category:    input.Category,
		Price:       input.Price,
		Quantity:    input.Quantity,
		SKU:         input.SKU,
		ImageURL:    input.ImageURL,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}
	r.items[product.ID] = &productRecord{
		keys:    domain.ProductKeys(product.ID, product.Category, ts),
		product: product,
	}
	return &product, nil
}

func (r *MemoryProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	product := rec.product
	return &product, nil
}

func (r *MemoryProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.IsEmpty() {
		return nil, domain.Validation("at least one field must be provided for update")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	patch.Apply(&rec.product)
	rec.product.UpdatedAt = now()
	if patch.Category != nil {
		rec.keys.IndexPK = domain.CategoryIndexKey(*patch.Category)
	}
	product := rec.product
	return &product, nil
}

func (r *MemoryProductRepository) DecreaseQuantity(ctx context.Context, id string, amount int) (*domain.Product, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	r.mu.Lock()
	rec, ok := r.items[id]
	if ok && rec.product.Quantity >= amount {
		rec.product.Quantity -= amount
		rec.product.UpdatedAt = now()
		product := rec.product
		r.mu.Unlock()
		return &product, nil
	}
	r.mu.Unlock()

	return nil, resolveDecreaseFailure(ctx, r.Get, id, amount)
}

func (r *MemoryProductRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.NotFound("product", id)
	}
	delete(r.items, id)
	return nil
}

// List scans at most PageSize records; the name filter is applied after the
// scan, so a page may hold fewer items while a cursor is still returned.
func (r *MemoryProductRepository) List(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	limit := pageSize(filter.PageSize)
	start := decodeCursor(r.log, filter.Cursor)

	r.mu.RLock()
	records := make([]productRecord, 0, len(r.items))
	for _, rec := range r.items {
		records = append(records, *rec)
	}
	r.mu.RUnlock()

	var page domain.ProductPage

	if filter.Category != "" {
		indexPK := domain.CategoryIndexKey(filter.Category)
		records = slices.DeleteFunc(records, func(rec productRecord) bool {
			return rec.keys.IndexPK != indexPK
		})
		slices.SortFunc(records, func(a, b productRecord) int { return compareIndexDesc(a.keys, b.keys) })
		if start != nil {
			records = slices.DeleteFunc(records, func(rec productRecord) bool {
				return !afterIndexKey(rec.keys, start.IndexSK, start.PK)
			})
		}
		if len(records) > limit {
			records = records[:limit]
			page.Cursor = indexCursor(records[limit-1].keys)
		}
		for _, rec := range records {
			page.Items = append(page.Items, rec.product)
		}
		return page, nil
	}

	slices.SortFunc(records, func(a, b productRecord) int { return strings.Compare(a.keys.PK, b.keys.PK) })
	if start != nil {
		records = slices.DeleteFunc(records, func(rec productRecord) bool { return rec.keys.PK <= start.PK })
	}
	if len(records) > limit {
		records = records[:limit]
		page.Cursor = primaryCursor(records[limit-1].keys)
	}
	for _, rec := range records {
		if filter.Search != "" && !strings.Contains(rec.product.Name, filter.Search) {
			continue
		}
		page.Items = append(page.Items, rec.product)
	}
	return page, nil
}

// Len reports the number of stored products.
func (r *MemoryProductRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*orderRecord
	log    *zap.Logger
	newID  func() string
}

func NewMemoryOrderRepository(logger *zap.Logger) *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*orderRecord),
		log:    logger,
		newID:  uuid.NewString,
	}
}

func (r *MemoryOrderRepository) Create(ctx context.Context, userID, userEmail string, items []domain.OrderItem, totalAmount int64) (*domain.Order, error) {
	ts := now()
	order := domain.Order{
		ID:          r.newID(),
		UserID:      userID,
		UserEmail:   userEmail,
		Items:       slices.Clone(items),
		TotalAmount: totalAmount,
		Status:      domain.OrderStatusPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}
	r.orders[order.ID] = &orderRecord{
		keys:  domain.OrderKeys(order.ID, userID, ts),
		order: order,
	}
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.orders[id]
	if !ok {
		return nil, domain.NotFound("order", id)
	}
	return cloneOrder(rec.order), nil
}

func (r *MemoryOrderRepository) GetForOwner(ctx context.Context, id, ownerID string) (*domain.Order, error) {
	order, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != ownerID {
		return nil, domain.NotFound("order", id)
	}
	return order, nil
}

func (r *MemoryOrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.orders[id]
	if !ok {
		return nil, domain.NotFound("order", id)
	}
	if rec.order.Status != from {
		return nil, domain.StatusConflict(id, rec.order.Status, from)
	}
	rec.order.Status = to
	rec.order.UpdatedAt = now()
	return cloneOrder(rec.order), nil
}

// ListForOwner scans the owner index newest first; the status filter is applied
// to the scanned page.
func (r *MemoryOrderRepository) ListForOwner(ctx context.Context, ownerID string, filter domain.OrderFilter) (domain.OrderPage, error) {
	limit := pageSize(filter.PageSize)
	start := decodeCursor(r.log, filter.Cursor)
	indexPK := domain.UserIndexKey(ownerID)

	r.mu.RLock()
	records := make([]orderRecord, 0)
	for _, rec := range r.orders {
		if rec.keys.IndexPK == indexPK {
			records = append(records, orderRecord{keys: rec.keys, order: *cloneOrder(rec.order)})
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(records, func(a, b orderRecord) int { return compareIndexDesc(a.keys, b.keys) })
	if start != nil {
		records = slices.DeleteFunc(records, func(rec orderRecord) bool {
			return !afterIndexKey(rec.keys, start.IndexSK, start.PK)
		})
	}

	var page domain.OrderPage
	if len(records) > limit {
		records = records[:limit]
		page.Cursor = indexCursor(records[limit-1].keys)
	}
	for _, rec := range records {
		if filter.Status != "" && rec.order.Status != filter.Status {
			continue
		}
		page.Items = append(page.Items, rec.order)
	}
	return page, nil
}

// CountByProduct reports how many orders reference productID.
func (r *MemoryOrderRepository) CountByProduct(productID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.orders {
		for _, item := range rec.order.Items {
			if item.ProductID == productID {
				n++
				break
			}
		}
	}
	return n
}

func cloneOrder(o domain.Order) *domain.Order {
	o.Items = slices.Clone(o.Items)
	return &o
}

// compareIndexDesc orders by index sort key then primary key, both descending.
func compareIndexDesc(a, b domain.RecordKeys) int {
	if c := strings.Compare(b.IndexSK, a.IndexSK); c != 0 {
		return c
	}
	return strings.Compare(b.PK, a.PK)
}

func afterIndexKey(k domain.RecordKeys, sk, pk string) bool {
	return k.IndexSK < sk || (k.IndexSK == sk && k.PK < pk)
}
