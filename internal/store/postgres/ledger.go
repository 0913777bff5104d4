package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/xid"
)

const shiftColumns = `
	id, opened_by, opened_by_name, COALESCE(closed_by, ''), COALESCE(closed_by_name, ''),
	opening_cash, closing_cash, expected_cash, total_cash_sales, total_split_cash,
	total_split_gcash, total_cash_in, total_cash_out, status, opened_at, closed_at
`

func scanShift(row rowScanner) (domain.Shift, error) {
	var shift domain.Shift
	var closingCash decimal.NullDecimal
	var closedAt sql.NullTime
	err := row.Scan(
		&shift.ID,
		&shift.OpenedBy,
		&shift.OpenedByName,
		&shift.ClosedBy,
		&shift.ClosedByName,
		&shift.OpeningCash,
		&closingCash,
		&shift.ExpectedCash,
		&shift.TotalCashSales,
		&shift.TotalSplitCash,
		&shift.TotalSplitGCash,
		&shift.TotalCashIn,
		&shift.TotalCashOut,
		&shift.Status,
		&shift.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return domain.Shift{}, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closingCash.Valid {
		v := closingCash.Decimal
		shift.ClosingCash = &v
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	return shift, nil
}

// CreateShift relies on the partial unique index over open rows to enforce
// a single open shift.
func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registry (
			id, opened_by, opened_by_name, opening_cash, closing_cash, expected_cash,
			total_cash_sales, total_split_cash, total_split_gcash, total_cash_in, total_cash_out,
			status, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, shift.ID, shift.OpenedBy, shift.OpenedByName, shift.OpeningCash, nullDecimal(shift.ClosingCash), shift.ExpectedCash,
		shift.TotalCashSales, shift.TotalSplitCash, shift.TotalSplitGCash, shift.TotalCashIn, shift.TotalCashOut,
		shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrShiftAlreadyOpen
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM cash_registry WHERE status = 'OPEN'`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoOpenShift
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM cash_registry WHERE id = $1`, shiftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_registry
		ORDER BY opened_at DESC, id DESC
		LIMIT $1
	`, limitOrDefault(limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Shift, 0, 16)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, shift)
	}
	return out, rows.Err()
}

// UpdateOpenShift locks the open row, lets mutate recompute it and writes it
// back together with the optional cash movement. mutate may run more than
// once when the transaction is retried.
func (s *Store) UpdateOpenShift(ctx context.Context, shiftID string, movement *domain.CashMovement, mutate func(*domain.Shift) error) (*domain.Shift, error) {
	var updated domain.Shift
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = updateOpenShift(ctx, tx, shiftID, movement, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func updateOpenShift(ctx context.Context, tx *sql.Tx, shiftID string, movement *domain.CashMovement, mutate func(*domain.Shift) error) (domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM cash_registry WHERE status = 'OPEN'`
	args := []any{}
	if shiftID != "" {
		query += ` AND id = $1`
		args = append(args, shiftID)
	}
	shift, err := scanShift(tx.QueryRowContext(ctx, query+` FOR UPDATE`, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shift{}, domain.ErrNoOpenShift
		}
		return domain.Shift{}, err
	}

	id := shift.ID
	if err := mutate(&shift); err != nil {
		return domain.Shift{}, err
	}
	shift.ID = id

	if _, err := tx.ExecContext(ctx, `
		UPDATE cash_registry
		SET closed_by = $2, closed_by_name = $3, closing_cash = $4, expected_cash = $5,
			total_cash_sales = $6, total_split_cash = $7, total_split_gcash = $8,
			total_cash_in = $9, total_cash_out = $10, status = $11, closed_at = $12
		WHERE id = $1
	`, shift.ID, nullIfEmpty(shift.ClosedBy), nullIfEmpty(shift.ClosedByName), nullDecimal(shift.ClosingCash), shift.ExpectedCash,
		shift.TotalCashSales, shift.TotalSplitCash, shift.TotalSplitGCash,
		shift.TotalCashIn, shift.TotalCashOut, shift.Status, nullTime(shift.ClosedAt)); err != nil {
		return domain.Shift{}, err
	}

	if movement != nil {
		m := *movement
		if m.ID == "" {
			m.ID = xid.New("cm")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cash_movements (id, shift_id, direction, amount, reason, operator_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, m.ID, shift.ID, m.Direction, m.Amount, m.Reason, nullIfEmpty(m.OperatorID), m.CreatedAt); err != nil {
			return domain.Shift{}, err
		}
	}
	return shift, nil
}

func (s *Store) ListCashMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, direction, amount, reason, COALESCE(operator_id, ''), created_at
		FROM cash_movements
		WHERE shift_id = $1
		ORDER BY created_at, id
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CashMovement, 0, 8)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.ShiftID, &m.Direction, &m.Amount, &m.Reason, &m.OperatorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, operator_id, operator_name, action, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, nullIfEmpty(entry.OperatorID), entry.OperatorName, entry.Action, entry.Description, entry.CreatedAt)
	return err
}

func (s *Store) ListActivityLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(operator_id, ''), operator_name, action, description, created_at
		FROM activity_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limitOrDefault(limit, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ActivityLog, 0, 64)
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.OperatorID, &entry.OperatorName, &entry.Action, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}
