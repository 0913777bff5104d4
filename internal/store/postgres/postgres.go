package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/store"
	"otsopos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	log.Println("[postgres-store] applying schema...")
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	log.Println("[postgres-store] schema ready")
	return nil
}

const catalogSelect = `
	SELECT p.id, p.name, p.description, p.retail_price, p.wholesale_price,
		COALESCE(p.category_id, ''), COALESCE(p.supplier_id, ''),
		COALESCE(i.quantity_in_stock, 0), COALESCE(c.name, ''), COALESCE(sp.name, '')
	FROM products p
	LEFT JOIN inventory i ON i.product_id = p.id
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN suppliers sp ON sp.id = p.supplier_id
`

func scanCatalogItem(row rowScanner) (domain.CatalogItem, error) {
	var item domain.CatalogItem
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.RetailPrice,
		&item.WholesalePrice,
		&item.CategoryID,
		&item.SupplierID,
		&item.Stock,
		&item.CategoryName,
		&item.SupplierName,
	)
	return item, err
}

func (s *Store) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, catalogSelect+` ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0, 128)
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetCatalogItem(ctx context.Context, productID string) (*domain.CatalogItem, error) {
	item, err := scanCatalogItem(s.db.QueryRowContext(ctx, catalogSelect+` WHERE p.id = $1`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateProduct inserts the product and its zero-quantity inventory row.
func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO products (id, name, description, retail_price, wholesale_price, category_id, supplier_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.Name, product.Description, product.RetailPrice, product.WholesalePrice,
		nullIfEmpty(product.CategoryID), nullIfEmpty(product.SupplierID)); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity_in_stock, updated_at) VALUES ($1, 0, now())
	`, product.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, retail_price = $4, wholesale_price = $5, category_id = $6, supplier_id = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.RetailPrice, product.WholesalePrice,
		nullIfEmpty(product.CategoryID), nullIfEmpty(product.SupplierID))
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	return s.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, productID)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description) VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.Description); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = $2, description = $3 WHERE id = $1
	`, category.ID, category.Name, category.Description)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *Store) DeleteCategory(ctx context.Context, categoryID string) error {
	return s.deleteByID(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, contact, address FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Contact, &sp.Address); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, address) VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Address); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers SET name = $2, contact = $3, address = $4 WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Address)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, supplierID string) error {
	return s.deleteByID(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, i.quantity_in_stock, i.updated_at
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.InventoryRecord, 0, 128)
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.ProductID, &rec.ProductName, &rec.QuantityInStock, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) (int, error) {
	var prev int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT quantity_in_stock FROM inventory WHERE product_id = $1 FOR UPDATE
		`, productID).Scan(&prev); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE inventory SET quantity_in_stock = $2, updated_at = now() WHERE product_id = $1
		`, productID, qty)
		return err
	})
	if err != nil {
		return 0, err
	}
	return prev, nil
}

func (s *Store) deleteByID(ctx context.Context, query string, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// txAttempts bounds how often inTx reruns a transaction Postgres aborted
// with a serialization failure or deadlock.
const txAttempts = 3

// inTx runs fn in a read-committed transaction. Rows that must not change
// underneath fn are taken with FOR UPDATE or an advisory lock inside it.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		log.Printf("[postgres-store] WARN: transaction attempt %d/%d aborted: %v", attempt, txAttempts, err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// isRetryable reports serialization failures (40001) and detected
// deadlocks (40P01).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func limitOrDefault(limit int, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
