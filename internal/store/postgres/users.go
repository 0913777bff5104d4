package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/xid"
)

const userColumns = `id, name, email, role, password_hash, COALESCE(pin_hash, ''), created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.PINHash, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.HasPIN = u.PINHash != ""
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, password_hash, pin_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Name, user.Email, user.Role, user.PasswordHash, nullIfEmpty(user.PINHash), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	user.HasPIN = user.PINHash != ""
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, role = $4, password_hash = $5, pin_hash = $6
		WHERE id = $1
		RETURNING `+userColumns, user.ID, user.Name, user.Email, user.Role, user.PasswordHash, nullIfEmpty(user.PINHash)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.deleteByID(ctx, `DELETE FROM users WHERE id = $1`, userID)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, title, amount, notes, created_at) VALUES ($1,$2,$3,$4,$5)
	`, expense.ID, expense.Title, expense.Amount, expense.Notes, expense.CreatedAt); err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE expenses SET title = $2, amount = $3, notes = $4
		WHERE id = $1
		RETURNING created_at
	`, expense.ID, expense.Title, expense.Amount, expense.Notes).Scan(&expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	expense.CreatedAt = expense.CreatedAt.UTC()
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	return s.deleteByID(ctx, `DELETE FROM expenses WHERE id = $1`, expenseID)
}

func (s *Store) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, amount, notes, created_at
		FROM expenses
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitOrDefault(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Title, &e.Amount, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
