package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/store"
)

// expectedCash recomputes the drawer balance from every contributing
// stream. GCash received in split sales never enters the drawer.
func expectedCash(sh domain.Shift) decimal.Decimal {
	return sh.OpeningCash.
		Add(sh.TotalCashSales).
		Add(sh.TotalSplitCash).
		Add(sh.TotalCashIn).
		Sub(sh.TotalCashOut)
}

func (s *Service) StartShift(ctx context.Context, op domain.Operator, openingCash decimal.Decimal) (domain.Shift, error) {
	const action = "Start Shift"
	if openingCash.IsNegative() {
		return domain.Shift{}, invalid(action, domain.ErrInvalidAmount, "opening cash must not be negative")
	}

	shift, err := s.repo.CreateShift(ctx, domain.Shift{
		OpenedBy:        op.ID,
		OpenedByName:    op.DisplayName(),
		OpeningCash:     openingCash,
		ExpectedCash:    openingCash,
		TotalCashSales:  decimal.Zero,
		TotalSplitCash:  decimal.Zero,
		TotalSplitGCash: decimal.Zero,
		TotalCashIn:     decimal.Zero,
		TotalCashOut:    decimal.Zero,
		OpenedAt:        s.clock(),
	})
	if err != nil {
		return domain.Shift{}, domain.Fail(action, err)
	}

	s.logAudit(ctx, op, action, fmt.Sprintf("Opened shift with %s", peso(openingCash)))
	return *shift, nil
}

// CurrentOpenShift returns the open shift; ok is false when none is open.
func (s *Service) CurrentOpenShift(ctx context.Context) (shift domain.Shift, ok bool, err error) {
	open, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoOpenShift) {
			return domain.Shift{}, false, nil
		}
		return domain.Shift{}, false, domain.Fail("Current Shift", err)
	}
	return *open, true, nil
}

func (s *Service) RecordCashMovement(ctx context.Context, op domain.Operator, direction string, amount decimal.Decimal, reason string) (domain.Shift, error) {
	action := "Cash In"
	if direction == domain.CashOut {
		action = "Cash Out"
	} else if direction != domain.CashIn {
		return domain.Shift{}, invalid("Cash Movement", domain.ErrInvalidInput, "direction must be IN or OUT")
	}
	if !amount.IsPositive() {
		return domain.Shift{}, invalid(action, domain.ErrInvalidAmount, "amount must be greater than zero")
	}

	movement := &domain.CashMovement{
		Direction:  direction,
		Amount:     amount,
		Reason:     reason,
		OperatorID: op.ID,
		CreatedAt:  s.clock(),
	}
	shift, err := s.repo.UpdateOpenShift(ctx, "", movement, func(sh *domain.Shift) error {
		if direction == domain.CashIn {
			sh.TotalCashIn = sh.TotalCashIn.Add(amount)
		} else {
			sh.TotalCashOut = sh.TotalCashOut.Add(amount)
		}
		sh.ExpectedCash = expectedCash(*sh)
		running := sh.ExpectedCash
		sh.ClosingCash = &running
		return nil
	})
	if err != nil {
		return domain.Shift{}, domain.Fail(action, err)
	}

	desc := fmt.Sprintf("%s %s", action, peso(amount))
	if reason != "" {
		desc += " for " + reason
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("%s. Expected cash %s", desc, peso(shift.ExpectedCash)))
	return *shift, nil
}

// RecordSaleCash adds the cash portion of a cash sale to the open shift.
func (s *Service) RecordSaleCash(ctx context.Context, op domain.Operator, cashPortion decimal.Decimal) (domain.Shift, error) {
	return s.recordSale(ctx, op, "", domain.TenderCash, cashPortion, decimal.Zero)
}

// RecordSaleSplit adds both portions of a split sale. Only the cash part
// changes the expected drawer balance.
func (s *Service) RecordSaleSplit(ctx context.Context, op domain.Operator, cashPortion decimal.Decimal, gcashPortion decimal.Decimal) (domain.Shift, error) {
	return s.recordSale(ctx, op, "", domain.TenderSplit, cashPortion, gcashPortion)
}

func (s *Service) recordSale(ctx context.Context, op domain.Operator, shiftID string, kind string, cashPortion decimal.Decimal, gcashPortion decimal.Decimal) (domain.Shift, error) {
	action := "Record " + kind + " Sale"
	if cashPortion.IsNegative() || gcashPortion.IsNegative() {
		return domain.Shift{}, invalid(action, domain.ErrInvalidAmount, "sale portions must not be negative")
	}

	shift, err := s.repo.UpdateOpenShift(ctx, shiftID, nil, func(sh *domain.Shift) error {
		if kind == domain.TenderSplit {
			sh.TotalSplitCash = sh.TotalSplitCash.Add(cashPortion)
			sh.TotalSplitGCash = sh.TotalSplitGCash.Add(gcashPortion)
		} else {
			sh.TotalCashSales = sh.TotalCashSales.Add(cashPortion)
		}
		sh.ExpectedCash = expectedCash(*sh)
		return nil
	})
	if err != nil {
		return domain.Shift{}, domain.Fail(action, err)
	}

	desc := fmt.Sprintf("Cash %s added to drawer", peso(cashPortion))
	if kind == domain.TenderSplit {
		desc += fmt.Sprintf(", GCash %s recorded", peso(gcashPortion))
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("%s. Expected cash %s", desc, peso(shift.ExpectedCash)))
	return *shift, nil
}

// EndShift closes the open shift against the counted drawer and returns the
// Z-reading. A shortage or overage is reported, never rejected.
func (s *Service) EndShift(ctx context.Context, op domain.Operator, closingCash decimal.Decimal) (domain.ZReading, error) {
	const action = "End Shift"
	if closingCash.IsNegative() {
		return domain.ZReading{}, invalid(action, domain.ErrInvalidAmount, "closing cash must not be negative")
	}

	closedAt := s.clock()
	shift, err := s.repo.UpdateOpenShift(ctx, "", nil, func(sh *domain.Shift) error {
		sh.ExpectedCash = expectedCash(*sh)
		counted := closingCash
		sh.ClosingCash = &counted
		sh.Status = domain.ShiftStatusClosed
		sh.ClosedBy = op.ID
		sh.ClosedByName = op.DisplayName()
		sh.ClosedAt = &closedAt
		return nil
	})
	if err != nil {
		return domain.ZReading{}, domain.Fail(action, err)
	}

	difference := shift.Difference()
	s.logAudit(ctx, op, action, fmt.Sprintf("Closed shift. Expected %s, counted %s, difference %s",
		peso(shift.ExpectedCash), peso(closingCash), peso(difference)))

	// The close has committed; a failed report read must not turn it into an
	// error for the caller.
	sales, err := s.salesOnOpenDay(ctx, *shift)
	if err != nil {
		log.Printf("[service] WARN: shift %s closed but its Z-reading sales could not be read: %v", shift.ID, err)
		return domain.ZReading{
			Shift:      *shift,
			Difference: difference,
			Totals:     tenderTotals(nil),
			Incomplete: true,
		}, nil
	}
	return domain.ZReading{
		Shift:        *shift,
		Difference:   difference,
		Transactions: sales,
		Totals:       tenderTotals(sales),
	}, nil
}

// XReading is the non-destructive interim report. An empty shiftID reads
// the open shift.
func (s *Service) XReading(ctx context.Context, shiftID string) (domain.XReading, error) {
	const action = "X-Reading"
	var shift *domain.Shift
	var err error
	if shiftID == "" {
		shift, err = s.repo.GetOpenShift(ctx)
	} else {
		shift, err = s.repo.GetShift(ctx, shiftID)
	}
	if err != nil {
		return domain.XReading{}, domain.Fail(action, err)
	}

	sales, err := s.salesOnOpenDay(ctx, *shift)
	if err != nil {
		return domain.XReading{}, domain.Fail(action, err)
	}
	return domain.XReading{
		Shift:        *shift,
		Transactions: sales,
		Totals:       tenderTotals(sales),
		GeneratedAt:  s.clock(),
	}, nil
}

func (s *Service) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	shifts, err := s.repo.ListShifts(ctx, limit)
	if err != nil {
		return nil, domain.Fail("List Shifts", err)
	}
	return shifts, nil
}

func (s *Service) ListCashMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error) {
	moves, err := s.repo.ListCashMovements(ctx, shiftID)
	if err != nil {
		return nil, domain.Fail("List Cash Movements", err)
	}
	return moves, nil
}

func (s *Service) salesOnOpenDay(ctx context.Context, shift domain.Shift) ([]domain.Sale, error) {
	from, to := store.DayBounds(shift.OpenedAt.In(s.loc))
	return s.repo.ListSales(ctx, from, to)
}

func tenderTotals(sales []domain.Sale) domain.TenderTotals {
	totals := domain.TenderTotals{Cash: decimal.Zero, GCash: decimal.Zero, Split: decimal.Zero, Gross: decimal.Zero}
	for _, sale := range sales {
		switch sale.PaymentType {
		case domain.TenderCash:
			totals.Cash = totals.Cash.Add(sale.TotalAmount)
		case domain.TenderGCash:
			totals.GCash = totals.GCash.Add(sale.TotalAmount)
		case domain.TenderSplit:
			totals.Split = totals.Split.Add(sale.TotalAmount)
		}
		totals.Gross = totals.Gross.Add(sale.TotalAmount)
		totals.Count++
	}
	return totals
}
