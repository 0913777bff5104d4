package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/cart"
	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/receipt"
)

const minGCashReference = 6

type SettleRequest struct {
	Tender         domain.Tender `json:"tender"`
	IdempotencyKey string        `json:"idempotencyKey"`
}

type Settlement struct {
	Sale      domain.Sale            `json:"sale"`
	Breakdown domain.TenderBreakdown `json:"breakdown"`
	Receipt   receipt.Receipt        `json:"-"`
	// Duplicate is true when the idempotency key matched an earlier sale.
	Duplicate bool `json:"duplicate"`
	// LedgerUpdated is false when no shift was open to take the cash. It is
	// only meaningful for the settlement that stored the sale, so replays
	// leave it unset.
	LedgerUpdated bool `json:"ledgerUpdated"`
}

// ValidateTender checks the tender against the amount due and splits it into
// drawer and non-drawer portions.
func ValidateTender(t domain.Tender, total decimal.Decimal) (domain.TenderBreakdown, error) {
	ref := strings.TrimSpace(t.GCashReference)
	switch t.Kind {
	case domain.TenderCash:
		if t.CashReceived.LessThan(total) {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: cash received %s is less than total %s", domain.ErrInvalidAmount, peso(t.CashReceived), peso(total))
		}
		return domain.TenderBreakdown{
			CashPortion:  total,
			GCashPortion: decimal.Zero,
			Change:       t.CashReceived.Sub(total),
		}, nil

	case domain.TenderGCash:
		if t.GCashAmount.LessThan(total) {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: GCash amount %s is less than total %s", domain.ErrInvalidAmount, peso(t.GCashAmount), peso(total))
		}
		if len(ref) < minGCashReference {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: GCash reference must be at least %d characters", domain.ErrInvalidInput, minGCashReference)
		}
		return domain.TenderBreakdown{CashPortion: decimal.Zero, GCashPortion: total, Change: decimal.Zero}, nil

	case domain.TenderSplit:
		if !t.CashReceived.IsPositive() || !t.GCashAmount.IsPositive() {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: split tender needs both cash and GCash", domain.ErrInvalidAmount)
		}
		if t.GCashAmount.GreaterThan(total) {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: GCash portion exceeds total", domain.ErrInvalidAmount)
		}
		if t.CashReceived.Add(t.GCashAmount).LessThan(total) {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: split tender is short of total %s", domain.ErrInvalidAmount, peso(total))
		}
		if len(ref) < minGCashReference {
			return domain.TenderBreakdown{}, fmt.Errorf("%w: GCash reference must be at least %d characters", domain.ErrInvalidInput, minGCashReference)
		}
		cashPortion := total.Sub(t.GCashAmount)
		return domain.TenderBreakdown{
			CashPortion:  cashPortion,
			GCashPortion: t.GCashAmount,
			Change:       t.CashReceived.Sub(cashPortion),
		}, nil
	}
	return domain.TenderBreakdown{}, fmt.Errorf("%w: unknown tender kind %q", domain.ErrInvalidInput, t.Kind)
}

// Settle turns the cart into a persisted sale. The sale and its stock
// decrements are one unit in the repository; the ledger update, the receipt
// and the audit entry follow it and cannot undo it. The cart is cleared only
// after the sale is stored. A replayed idempotency key leaves the cart as it
// is.
func (s *Service) Settle(ctx context.Context, op domain.Operator, c *cart.Cart, req SettleRequest) (Settlement, error) {
	const action = "Settle Sale"
	key := strings.TrimSpace(req.IdempotencyKey)

	if key != "" {
		if prior, err := s.repo.FindSaleByIdempotency(ctx, key); err == nil {
			return s.replay(*prior), nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return Settlement{}, domain.Fail(action, err)
		}
	}

	if c.IsEmpty() {
		return Settlement{}, &domain.OpError{Action: action, Err: domain.ErrEmptyCart}
	}
	total := c.GrandTotal()
	breakdown, err := ValidateTender(req.Tender, total)
	if err != nil {
		return Settlement{}, &domain.OpError{Action: action, Err: err}
	}

	shiftID := ""
	if open, ok, err := s.CurrentOpenShift(ctx); err != nil {
		return Settlement{}, domain.Fail(action, err)
	} else if ok {
		shiftID = open.ID
	}

	sale := domain.Sale{
		OperatorID:     op.ID,
		OperatorName:   op.DisplayName(),
		ShiftID:        shiftID,
		IdempotencyKey: key,
		Subtotal:       c.Subtotal(),
		DiscountTotal:  c.DiscountTotal(),
		TotalAmount:    total,
		PaymentType:    req.Tender.Kind,
		CashReceived:   req.Tender.CashReceived,
		CashPortion:    breakdown.CashPortion,
		GCashAmount:    breakdown.GCashPortion,
		GCashReference: strings.TrimSpace(req.Tender.GCashReference),
		ChangeDue:      breakdown.Change,
		CreatedAt:      s.clock(),
	}
	if sale.PaymentType == domain.TenderGCash {
		sale.CashReceived = decimal.Zero
	}
	for _, line := range c.Lines() {
		sale.Lines = append(sale.Lines, domain.OrderDetail{
			ProductID:    line.ProductID,
			ProductName:  line.Name,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Discount:     line.Discount,
			DiscountKind: line.DiscountKind,
		})
	}

	saved, err := s.repo.CreateSale(ctx, sale, domain.SaleOptions{AllowNegativeStock: s.allowNegativeStock})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) && key != "" {
			// Lost a race with a concurrent replay of the same key.
			if prior, findErr := s.repo.FindSaleByIdempotency(ctx, key); findErr == nil {
				return s.replay(*prior), nil
			}
		}
		return Settlement{}, domain.Fail(action, err)
	}

	result := Settlement{Sale: *saved, Breakdown: breakdown}
	result.LedgerUpdated = s.postToLedger(ctx, op, *saved, breakdown)

	s.logAudit(ctx, op, "Sale", fmt.Sprintf("Transaction %s settled: %s via %s", saved.TransactionNumber, peso(saved.TotalAmount), saved.PaymentType))

	result.Receipt = receipt.Build(*saved, s.storeName)
	if err := s.printer.Print(ctx, result.Receipt); err != nil {
		log.Printf("[service] WARN: receipt for %s was not printed: %v", saved.TransactionNumber, err)
	}

	c.Clear()
	return result, nil
}

// postToLedger forwards the drawer portions to the shift the sale was
// recorded against. GCash-only sales touch nothing in the drawer.
func (s *Service) postToLedger(ctx context.Context, op domain.Operator, sale domain.Sale, b domain.TenderBreakdown) bool {
	if sale.PaymentType == domain.TenderGCash {
		return sale.ShiftID != ""
	}
	if sale.ShiftID == "" {
		log.Printf("[service] WARN: sale %s settled with no open shift; cash ledger not updated", sale.TransactionNumber)
		s.logAudit(ctx, op, "Unreconciled Sale", fmt.Sprintf("Transaction %s (%s) settled with no open shift", sale.TransactionNumber, peso(sale.TotalAmount)))
		return false
	}

	var err error
	if sale.PaymentType == domain.TenderSplit {
		_, err = s.recordSale(ctx, op, sale.ShiftID, domain.TenderSplit, b.CashPortion, b.GCashPortion)
	} else {
		_, err = s.recordSale(ctx, op, sale.ShiftID, domain.TenderCash, b.CashPortion, decimal.Zero)
	}
	if err != nil {
		log.Printf("[service] WARN: sale %s persisted but ledger update failed: %v", sale.TransactionNumber, err)
		s.logAudit(ctx, op, "Unreconciled Sale", fmt.Sprintf("Transaction %s: ledger update failed", sale.TransactionNumber))
		return false
	}
	return true
}

func (s *Service) replay(prior domain.Sale) Settlement {
	return Settlement{
		Sale: prior,
		Breakdown: domain.TenderBreakdown{
			CashPortion:  prior.CashPortion,
			GCashPortion: prior.GCashAmount,
			Change:       prior.ChangeDue,
		},
		Receipt:   receipt.Build(prior, s.storeName),
		Duplicate: true,
	}
}
