package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

const productColumns = `pk, sk, gsi1pk, gsi1sk, id, name, description, category, price, quantity, sku, image_url, created_at, updated_at`

const orderColumns = `pk, sk, gsi1pk, gsi1sk, id, user_id, user_email, items, total_amount, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*productRecord, error) {
	var rec productRecord
	p := &rec.product
	err := row.Scan(
		&rec.keys.PK, &rec.keys.SK, &rec.keys.IndexPK, &rec.keys.IndexSK,
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Quantity,
		&p.SKU, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &rec, nil
}

func scanOrder(row rowScanner) (*orderRecord, error) {
	var (
		rec   orderRecord
		items []byte
	)
	o := &rec.order
	err := row.Scan(
		&rec.keys.PK, &rec.keys.SK, &rec.keys.IndexPK, &rec.keys.IndexSK,
		&o.ID, &o.UserID, &o.UserEmail, &items, &o.TotalAmount, &o.Status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &rec, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

type MySQLProductRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewMySQLProductRepository(db *sql.DB, logger *zap.Logger) *MySQLProductRepository {
	return &MySQLProductRepository{db: db, log: logger}
}

func (m *MySQLProductRepository) Create(ctx context.Context, input domain.NewProduct) (*domain.Product, error) {
	ts := now()
	p := domain.Product{
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
	keys := domain.ProductKeys(p.ID, p.Category, ts)

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		keys.PK, keys.SK, keys.IndexPK, keys.IndexSK,
		p.ID, p.Name, p.Description, p.Category, p.Price, p.Quantity,
		p.SKU, p.ImageURL, p.CreatedAt, p.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil {
		return nil, domain.Transient("insert product", err)
	}
	return &p, nil
}

func (m *MySQLProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	return m.get(ctx, m.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLProductRepository) get(ctx context.Context, q queryRower, id string) (*domain.Product, error) {
	rec, err := scanProduct(q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE pk = ?`, domain.ProductPK(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, domain.Transient("query product", err)
	}
	return &rec.product, nil
}

func (m *MySQLProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.IsEmpty() {
		return nil, domain.Validation("at least one field must be provided for update")
	}

	sets := []string{"updated_at = ?"}
	args := []any{now()}
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
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
	args = append(args, domain.ProductPK(id))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Transient("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET `+strings.Join(sets, ", ")+` WHERE pk = ?`, args...); err != nil {
		return nil, domain.Transient("update product", err)
	}

	product, err := m.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.Transient("commit product update", err)
	}
	return product, nil
}

func (m *MySQLProductRepository) DecreaseQuantity(ctx context.Context, id string, amount int) (*domain.Product, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Transient("begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?, updated_at = ?
		WHERE pk = ? AND quantity >= ?`,
		amount, now(), domain.ProductPK(id), amount,
	)
	if err != nil {
		return nil, domain.Transient("decrease quantity", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, domain.Transient("decrease quantity", err)
	}
	if rows == 0 {
		tx.Rollback()
		return nil, resolveDecreaseFailure(ctx, m.Get, id, amount)
	}

	product, err := m.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.Transient("commit decrease", err)
	}
	return product, nil
}

func (m *MySQLProductRepository) Delete(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE pk = ?`, domain.ProductPK(id))
	if err != nil {
		return domain.Transient("delete product", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Transient("delete product", err)
	}
	if rows == 0 {
		return domain.NotFound("product", id)
	}
	return nil
}

func (m *MySQLProductRepository) List(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	limit := pageSize(filter.PageSize)
	start := decodeCursor(m.log, filter.Cursor)

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + productColumns + ` FROM products WHERE 1 = 1`)

	indexed := filter.Category != ""
	if indexed {
		query.WriteString(` AND gsi1pk = ?`)
		args = append(args, domain.CategoryIndexKey(filter.Category))
		if start != nil {
			query.WriteString(` AND (gsi1sk < ? OR (gsi1sk = ? AND pk < ?))`)
			args = append(args, start.IndexSK, start.IndexSK, start.PK)
		}
	} else if start != nil {
		query.WriteString(` AND pk > ?`)
		args = append(args, start.PK)
	}
	if filter.Search != "" {
		query.WriteString(` AND name LIKE ?`)
		args = append(args, likePattern(filter.Search))
	}
	if indexed {
		query.WriteString(` ORDER BY gsi1sk DESC, pk DESC`)
	} else {
		query.WriteString(` ORDER BY pk ASC`)
	}
	query.WriteString(` LIMIT ?`)
	args = append(args, limit+1)

	rows, err := m.db.QueryContext(ctx, query.String(), args...)
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

// productPage trims a limit+1 result set and emits a cursor only when more rows exist.
func productPage(records []productRecord, limit int, indexed bool) domain.ProductPage {
	var page domain.ProductPage
	if len(records) > limit {
		records = records[:limit]
		if indexed {
			page.Cursor = indexCursor(records[limit-1].keys)
		} else {
			page.Cursor = primaryCursor(records[limit-1].keys)
		}
	}
	for _, rec := range records {
		page.Items = append(page.Items, rec.product)
	}
	return page
}

func orderPage(records []orderRecord, limit int) domain.OrderPage {
	var page domain.OrderPage
	if len(records) > limit {
		records = records[:limit]
		page.Cursor = indexCursor(records[limit-1].keys)
	}
	for _, rec := range records {
		page.Items = append(page.Items, rec.order)
	}
	return page
}

type MySQLOrderRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewMySQLOrderRepository(db *sql.DB, logger *zap.Logger) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db, log: logger}
}

func (m *MySQLOrderRepository) Create(ctx context.Context, userID, userEmail string, items []domain.OrderItem, totalAmount int64) (*domain.Order, error) {
	ts := now()
	o := domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		UserEmail:   userEmail,
		Items:       items,
		TotalAmount: totalAmount,
		Status:      domain.OrderStatusPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	keys := domain.OrderKeys(o.ID, userID, ts)

	encoded, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		keys.PK, keys.SK, keys.IndexPK, keys.IndexSK,
		o.ID, o.UserID, o.UserEmail, encoded, o.TotalAmount, o.Status,
		o.CreatedAt, o.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil {
		return nil, domain.Transient("insert order", err)
	}
	return &o, nil
}

func (m *MySQLOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return m.get(ctx, m.db, id)
}

func (m *MySQLOrderRepository) get(ctx context.Context, q queryRower, id string) (*domain.Order, error) {
	rec, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE pk = ?`, domain.OrderPK(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order", id)
	}
	if err != nil {
		return nil, domain.Transient("query order", err)
	}
	return &rec.order, nil
}

func (m *MySQLOrderRepository) GetForOwner(ctx context.Context, id, ownerID string) (*domain.Order, error) {
	order, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != ownerID {
		return nil, domain.NotFound("order", id)
	}
	return order, nil
}

func (m *MySQLOrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Transient("begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE pk = ? AND status = ?`,
		to, now(), domain.OrderPK(id), from)
	if err != nil {
		return nil, domain.Transient("update order status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, domain.Transient("update order status", err)
	}

	order, err := m.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.StatusConflict(id, order.Status, from)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.Transient("commit order status", err)
	}
	return order, nil
}

func (m *MySQLOrderRepository) ListForOwner(ctx context.Context, ownerID string, filter domain.OrderFilter) (domain.OrderPage, error) {
	limit := pageSize(filter.PageSize)
	start := decodeCursor(m.log, filter.Cursor)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE gsi1pk = ?`
	args := []any{domain.UserIndexKey(ownerID)}
	if start != nil {
		query += ` AND (gsi1sk < ? OR (gsi1sk = ? AND pk < ?))`
		args = append(args, start.IndexSK, start.IndexSK, start.PK)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY gsi1sk DESC, pk DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := m.db.QueryContext(ctx, query, args...)
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
