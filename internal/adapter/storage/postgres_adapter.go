package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// pgArgs numbers positional parameters as they are added.
type pgArgs []any

func (a *pgArgs) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

type PostgresProductRepository struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresProductRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresProductRepository {
	return &PostgresProductRepository{pool: pool, log: logger}
}

func (p *PostgresProductRepository) Create(ctx context.Context, input domain.NewProduct) (*domain.Product, error) {
	ts := now()
	product := domain.Product{
		ID:          uuid.NewString(),
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
	keys := domain.ProductKeys(product.ID, product.Category, ts)

	_, err := p.pool.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		keys.PK, keys.SK, keys.IndexPK, keys.IndexSK,
		product.ID, product.Name, product.Description, product.Category, product.Price,
		product.Quantity, product.SKU, product.ImageURL, product.CreatedAt, product.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil {
		return nil, domain.Transient("insert product", err)
	}
	return &product, nil
}

func (p *PostgresProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	rec, err := scanProduct(p.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE pk = $1`, domain.ProductPK(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, domain.Transient("query product", err)
	}
	return &rec.product, nil
}

func (p *PostgresProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.IsEmpty() {
		return nil, domain.Validation("at least one field must be provided for update")
	}

	var args pgArgs
	sets := []string{"updated_at = " + args.add(now())}
	set := func(column string, value any) {
		sets = append(sets, column+" = "+args.add(value))
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
		set("gsi1pk", domain.CategoryIndexKey(*patch.Category))
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.Quantity != nil {
		set("quantity", *patch.Quantity)
	}
	if patch.SKU != nil {
		set("sku", *patch.SKU)
	}
	if patch.ImageURL != nil {
		set("image_url", *patch.ImageURL)
	}

	query := `UPDATE products SET ` + strings.Join(sets, ", ") +
		` WHERE pk = ` + args.add(domain.ProductPK(id)) +
		` RETURNING ` + productColumns

	rec, err := scanProduct(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, domain.Transient("update product", err)
	}
	return &rec.product, nil
}

func (p *PostgresProductRepository) DecreaseQuantity(ctx context.Context, id string, amount int) (*domain.Product, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	rec, err := scanProduct(p.pool.QueryRow(ctx, `
		UPDATE products
		SET quantity = quantity - $1, updated_at = $2
		WHERE pk = $3 AND quantity >= $1
		RETURNING `+productColumns,
		amount, now(), domain.ProductPK(id),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resolveDecreaseFailure(ctx, p.Get, id, amount)
	}
	if err != nil {
		return nil, domain.Transient("decrease quantity", err)
	}
	return &rec.product, nil
}

func (p *PostgresProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM products WHERE pk = $1`, domain.ProductPK(id))
	if err != nil {
		return domain.Transient("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", id)
	}
	return nil
}

func (p *PostgresProductRepository) List(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	limit := pageSize(filter.PageSize)
	start := decodeCursor(p.log, filter.Cursor)

	var (
		args  pgArgs
		conds []string
	)
	indexed := filter.Category != ""
	if indexed {
		conds = append(conds, "gsi1pk = "+args.add(domain.CategoryIndexKey(filter.Category)))
		if start != nil {
			sk, pk := args.add(start.IndexSK), args.add(start.PK)
			conds = append(conds, "(gsi1sk, pk) < ("+sk+", "+pk+")")
		}
	} else if start != nil {
		conds = append(conds, "pk > "+args.add(start.PK))
	}
	if filter.Search != "" {
		conds = append(conds, "name LIKE "+args.add(likePattern(filter.Search)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if indexed {
		query += ` ORDER BY gsi1sk DESC, pk DESC`
	} else {
		query += ` ORDER BY pk ASC`
	}
	query += ` LIMIT ` + args.add(limit+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.ProductPage{}, domain.Transient("list products", err)
	}
	defer rows.Close()

	var records []productRecord
	for rows.Next() {
		rec, err := scanProduct(rows)
		if err != nil {
			return domain.ProductPage{}, domain.Transient("scan product", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return domain.ProductPage{}, domain.Transient("list products", err)
	}

	return productPage(records, limit, indexed), nil
}

type PostgresOrderRepository struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool, log: logger}
}

func (p *PostgresOrderRepository) Create(ctx context.Context, userID, userEmail string, items []domain.OrderItem, totalAmount int64) (*domain.Order, error) {
	ts := now()
	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		UserEmail:   userEmail,
		Items:       items,
		TotalAmount: totalAmount,
		Status:      domain.OrderStatusPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	keys := domain.OrderKeys(order.ID, userID, ts)

	encoded, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		keys.PK, keys.SK, keys.IndexPK, keys.IndexSK,
		order.ID, order.UserID, order.UserEmail, string(encoded), order.TotalAmount,
		string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil {
		return nil, domain.Transient("insert order", err)
	}
	return &order, nil
}

func (p *PostgresOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	rec, err := scanOrder(p.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE pk = $1`, domain.OrderPK(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("order", id)
	}
	if err != nil {
		return nil, domain.Transient("query order", err)
	}
	return &rec.order, nil
}

func (p *PostgresOrderRepository) GetForOwner(ctx context.Context, id, ownerID string) (*domain.Order, error) {
	order, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != ownerID {
		return nil, domain.NotFound("order", id)
	}
	return order, nil
}

func (p *PostgresOrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	rec, err := scanOrder(p.pool.QueryRow(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE pk = $3 AND status = $4
		RETURNING `+orderColumns,
		string(to), now(), domain.OrderPK(id), string(from),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing and moved-on orders both miss the condition; read to tell them apart.
		current, getErr := p.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, domain.StatusConflict(id, current.Status, from)
	}
	if err != nil {
		return nil, domain.Transient("update order status", err)
	}
	return &rec.order, nil
}

func (p *PostgresOrderRepository) ListForOwner(ctx context.Context, ownerID string, filter domain.OrderFilter) (domain.OrderPage, error) {
	limit := pageSize(filter.PageSize)
	start := decodeCursor(p.log, filter.Cursor)

	var args pgArgs
	conds := []string{"gsi1pk = " + args.add(domain.UserIndexKey(ownerID))}
	if start != nil {
		sk, pk := args.add(start.IndexSK), args.add(start.PK)
		conds = append(conds, "(gsi1sk, pk) < ("+sk+", "+pk+")")
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+args.add(string(filter.Status)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY gsi1sk DESC, pk DESC LIMIT ` + args.add(limit+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.OrderPage{}, domain.Transient("list orders", err)
	}
	defer rows.Close()

	var records []orderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return domain.OrderPage{}, domain.Transient("scan order", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return domain.OrderPage{}, domain.Transient("list orders", err)
	}

	return orderPage(records, limit), nil
}
