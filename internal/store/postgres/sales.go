package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/store"
	"otsopos/backend/internal/xid"
)

// CreateSale writes the transaction header, its order details and the stock
// decrements in one transaction. The per-day advisory lock is taken first so
// the idempotency check, the stock check and transaction-number assignment
// all run one settlement at a time.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, opts domain.SaleOptions) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	var saved *domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		saved, err = insertSale(ctx, tx, sale, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale, opts domain.SaleOptions) (*domain.Sale, error) {
	from, to := store.DayBounds(sale.CreatedAt)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "sales_tx_seq:"+from.Format("2006-01-02")); err != nil {
		return nil, err
	}

	if sale.IdempotencyKey != "" {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM sales_transactions WHERE idempotency_key = $1
		`, sale.IdempotencyKey).Scan(&existing)
		if err == nil {
			return nil, domain.ErrDuplicateKey
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	productIDs := uniqueProductIDs(sale.Lines)
	stockRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity_in_stock
		FROM inventory
		WHERE product_id = ANY($1)
		ORDER BY product_id
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	stockMap := make(map[string]int, len(productIDs))
	for stockRows.Next() {
		var productID string
		var qty int
		if err := stockRows.Scan(&productID, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stockMap[productID] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	requested := make(map[string]int, len(productIDs))
	for _, line := range sale.Lines {
		if line.Quantity < 1 {
			return nil, domain.ErrInvalidInput
		}
		requested[line.ProductID] += line.Quantity
	}
	for productID, qty := range requested {
		stock, exists := stockMap[productID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		if !opts.AllowNegativeStock && stock < qty {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrStockLimitExceeded)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sales_transactions WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&count); err != nil {
		return nil, err
	}
	sale.TransactionNumber = store.TransactionNumber(from, count+1)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_transactions (
			id, transaction_number, operator_id, operator_name, shift_id, idempotency_key,
			subtotal, discount_total, total_amount, payment_type,
			cash_received, cash_portion, gcash_amount, gcash_reference, change_due, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, sale.ID, sale.TransactionNumber, sale.OperatorID, sale.OperatorName, nullIfEmpty(sale.ShiftID), nullIfEmpty(sale.IdempotencyKey),
		sale.Subtotal, sale.DiscountTotal, sale.TotalAmount, sale.PaymentType,
		sale.CashReceived, sale.CashPortion, sale.GCashAmount, nullIfEmpty(sale.GCashReference), sale.ChangeDue, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, err
	}

	lines := make([]domain.OrderDetail, 0, len(sale.Lines))
	for i, line := range sale.Lines {
		if line.ID == "" {
			line.ID = xid.New("od")
		}
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_details (
				id, transaction_id, product_id, product_name, quantity,
				unit_price, discount, discount_kind, subtotal, line_no
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, line.ID, sale.ID, line.ProductID, line.ProductName, line.Quantity,
			line.UnitPrice, line.Discount, line.DiscountKind, line.Subtotal, i+1); err != nil {
			return nil, err
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `
			UPDATE inventory
			SET quantity_in_stock = quantity_in_stock - $2, updated_at = now()
			WHERE product_id = $1
			RETURNING quantity_in_stock
		`, line.ProductID, line.Quantity).Scan(&remaining); err != nil {
			return nil, err
		}
		if remaining < 0 {
			log.Printf("[postgres-store] WARN: product %s stock went negative (%d) on sale %s", line.ProductID, remaining, sale.TransactionNumber)
		}
		lines = append(lines, line)
	}
	sale.Lines = lines
	return &sale, nil
}

const saleSelect = `
	SELECT id, transaction_number, operator_id, operator_name, COALESCE(shift_id, ''), COALESCE(idempotency_key, ''),
		subtotal, discount_total, total_amount, payment_type,
		cash_received, cash_portion, gcash_amount, COALESCE(gcash_reference, ''), change_due, created_at
	FROM sales_transactions
`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(
		&sale.ID,
		&sale.TransactionNumber,
		&sale.OperatorID,
		&sale.OperatorName,
		&sale.ShiftID,
		&sale.IdempotencyKey,
		&sale.Subtotal,
		&sale.DiscountTotal,
		&sale.TotalAmount,
		&sale.PaymentType,
		&sale.CashReceived,
		&sale.CashPortion,
		&sale.GCashAmount,
		&sale.GCashReference,
		&sale.ChangeDue,
		&sale.CreatedAt,
	)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", saleID)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, saleSelect+` WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, discount, discount_kind, subtotal
		FROM order_details
		WHERE transaction_id = $1
		ORDER BY line_no
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sale.Lines = make([]domain.OrderDetail, 0, 8)
	for rows.Next() {
		var line domain.OrderDetail
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ProductName, &line.Quantity,
			&line.UnitPrice, &line.Discount, &line.DiscountKind, &line.Subtotal); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, transaction_number DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (s *Store) GetDashboard(ctx context.Context, from time.Time, to time.Time, topN int) (domain.Dashboard, error) {
	report := domain.Dashboard{TopProducts: make([]domain.ProductSales, 0, topN)}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM sales_transactions
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.TodaySales, &report.TransactionCount); err != nil {
		return domain.Dashboard{}, err
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.TodayExpenses); err != nil {
		return domain.Dashboard{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT od.product_id, MAX(od.product_name), SUM(od.quantity) AS sold
		FROM order_details od
		JOIN sales_transactions st ON st.id = od.transaction_id
		WHERE st.created_at >= $1 AND st.created_at < $2
		GROUP BY od.product_id
		ORDER BY sold DESC, MAX(od.product_name)
		LIMIT $3
	`, from, to, limitOrDefault(topN, 5))
	if err != nil {
		return domain.Dashboard{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.ProductSales
		if err := rows.Scan(&p.ProductID, &p.Name, &p.SoldQty); err != nil {
			return domain.Dashboard{}, err
		}
		report.TopProducts = append(report.TopProducts, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Dashboard{}, err
	}
	return report, nil
}

func (s *Store) CreateSuspendedSale(ctx context.Context, suspended domain.SuspendedSale) (*domain.SuspendedSale, error) {
	if len(suspended.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if suspended.ID == "" {
		suspended.ID = xid.New("susp")
	}
	if suspended.CreatedAt.IsZero() {
		suspended.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO suspend_sales (id, operator_id, operator_name, total, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, suspended.ID, suspended.OperatorID, suspended.OperatorName, suspended.Total, suspended.CreatedAt); err != nil {
		return nil, err
	}
	for i, line := range suspended.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO suspend_sale_items (suspend_id, line_no, product_id, name, unit_price, quantity, discount, discount_kind)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, suspended.ID, i+1, line.ProductID, line.Name, line.UnitPrice, line.Quantity, line.Discount, line.DiscountKind); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &suspended, nil
}

func (s *Store) ListSuspendedSales(ctx context.Context, limit int) ([]domain.SuspendedSale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operator_id, operator_name, total, created_at
		FROM suspend_sales
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitOrDefault(limit, 50))
	if err != nil {
		return nil, err
	}
	out := make([]domain.SuspendedSale, 0, 16)
	index := make(map[string]int)
	ids := make([]string, 0, 16)
	for rows.Next() {
		var susp domain.SuspendedSale
		if err := rows.Scan(&susp.ID, &susp.OperatorID, &susp.OperatorName, &susp.Total, &susp.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		susp.CreatedAt = susp.CreatedAt.UTC()
		index[susp.ID] = len(out)
		ids = append(ids, susp.ID)
		out = append(out, susp)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(ids) == 0 {
		return out, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT suspend_id, product_id, name, unit_price, quantity, discount, discount_kind
		FROM suspend_sale_items
		WHERE suspend_id = ANY($1)
		ORDER BY suspend_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var suspendID string
		var line domain.SuspendedSaleLine
		if err := itemRows.Scan(&suspendID, &line.ProductID, &line.Name, &line.UnitPrice, &line.Quantity, &line.Discount, &line.DiscountKind); err != nil {
			return nil, err
		}
		if i, ok := index[suspendID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, itemRows.Err()
}

// PopSuspendedSale locks the header, reads its lines and deletes both in one
// transaction, so a suspended sale resumes at most once.
func (s *Store) PopSuspendedSale(ctx context.Context, suspendID string) (*domain.SuspendedSale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var susp domain.SuspendedSale
	err = tx.QueryRowContext(ctx, `
		SELECT id, operator_id, operator_name, total, created_at
		FROM suspend_sales
		WHERE id = $1
		FOR UPDATE
	`, suspendID).Scan(&susp.ID, &susp.OperatorID, &susp.OperatorName, &susp.Total, &susp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	susp.CreatedAt = susp.CreatedAt.UTC()

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, name, unit_price, quantity, discount, discount_kind
		FROM suspend_sale_items
		WHERE suspend_id = $1
		ORDER BY line_no
	`, suspendID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var line domain.SuspendedSaleLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.UnitPrice, &line.Quantity, &line.Discount, &line.DiscountKind); err != nil {
			_ = rows.Close()
			return nil, err
		}
		susp.Lines = append(susp.Lines, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM suspend_sale_items WHERE suspend_id = $1`, suspendID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM suspend_sales WHERE id = $1`, suspendID)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &susp, nil
}

func uniqueProductIDs(lines []domain.OrderDetail) []string {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			continue
		}
		set[line.ProductID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
