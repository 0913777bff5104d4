package service

import (
	"context"
	"fmt"

	"otsopos/backend/internal/cart"
	"otsopos/backend/internal/domain"
)

// Suspend parks the cart and empties it.
func (s *Service) Suspend(ctx context.Context, op domain.Operator, c *cart.Cart) (domain.SuspendedSale, error) {
	const action = "Suspend Sale"
	if c.IsEmpty() {
		return domain.SuspendedSale{}, &domain.OpError{Action: action, Err: domain.ErrEmptyCart}
	}

	parked, err := s.repo.CreateSuspendedSale(ctx, domain.SuspendedSale{
		OperatorID:   op.ID,
		OperatorName: op.DisplayName(),
		Total:        c.GrandTotal(),
		CreatedAt:    s.clock(),
		Lines:        c.Snapshot(),
	})
	if err != nil {
		return domain.SuspendedSale{}, domain.Fail(action, err)
	}

	s.logAudit(ctx, op, action, fmt.Sprintf("Suspended %d line(s) worth %s as %s", len(parked.Lines), peso(parked.Total), parked.ID))
	c.Clear()
	return *parked, nil
}

// Resume deletes the parked sale and loads its lines into c, which must be
// empty. The parked sale is left alone when c still holds lines.
func (s *Service) Resume(ctx context.Context, op domain.Operator, suspendID string, c *cart.Cart) (domain.SuspendedSale, error) {
	const action = "Resume Sale"
	if !c.IsEmpty() {
		return domain.SuspendedSale{}, &domain.OpError{Action: action, Err: domain.ErrCartNotEmpty}
	}
	parked, err := s.repo.PopSuspendedSale(ctx, suspendID)
	if err != nil {
		return domain.SuspendedSale{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Resumed %s worth %s", parked.ID, peso(parked.Total)))
	c.Restore(parked.Lines)
	return *parked, nil
}

func (s *Service) ListSuspended(ctx context.Context, limit int) ([]domain.SuspendedSale, error) {
	list, err := s.repo.ListSuspendedSales(ctx, limit)
	if err != nil {
		return nil, domain.Fail("List Suspended Sales", err)
	}
	return list, nil
}
