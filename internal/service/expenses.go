package service

import (
	"context"
	"fmt"
	"strings"

	"otsopos/backend/internal/domain"
)

func validateExpense(action string, e *domain.Expense) error {
	e.Title = strings.TrimSpace(e.Title)
	e.Notes = strings.TrimSpace(e.Notes)
	if e.Title == "" {
		return invalid(action, domain.ErrInvalidInput, "title is required")
	}
	if !e.Amount.IsPositive() {
		return invalid(action, domain.ErrInvalidAmount, "amount must be greater than zero")
	}
	return nil
}

func (s *Service) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	out, err := s.repo.ListExpenses(ctx, limit)
	if err != nil {
		return nil, domain.Fail("List Expenses", err)
	}
	return out, nil
}

func (s *Service) CreateExpense(ctx context.Context, op domain.Operator, e domain.Expense) (domain.Expense, error) {
	const action = "Add Expense"
	if err := validateExpense(action, &e); err != nil {
		return domain.Expense{}, err
	}
	e.ID = ""
	e.CreatedAt = s.clock()
	created, err := s.repo.CreateExpense(ctx, e)
	if err != nil {
		return domain.Expense{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("%s: %s", created.Title, peso(created.Amount)))
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, op domain.Operator, e domain.Expense) (domain.Expense, error) {
	const action = "Edit Expense"
	if err := validateExpense(action, &e); err != nil {
		return domain.Expense{}, err
	}
	updated, err := s.repo.UpdateExpense(ctx, e)
	if err != nil {
		return domain.Expense{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("%s: %s", updated.Title, peso(updated.Amount)))
	return *updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, op domain.Operator, expenseID string) error {
	const action = "Delete Expense"
	if err := s.repo.DeleteExpense(ctx, expenseID); err != nil {
		return domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Deleted expense "+expenseID)
	return nil
}
