package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
)

func item(id string, price string, stock int) domain.CatalogItem {
	return domain.CatalogItem{
		Product: domain.Product{ID: id, Name: "Item " + id, RetailPrice: decimal.RequireFromString(price)},
		Stock:   stock,
	}
}

func TestAddOutOfStockLeavesCartUnchanged(t *testing.T) {
	c := New()
	if _, err := c.Add(item("p1", "10", 0)); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if !c.IsEmpty() {
		t.Fatalf("expected empty cart, got %d lines", c.Len())
	}
}

func TestAddSameProductIncrementsUpToStock(t *testing.T) {
	c := New()
	p := item("p1", "25.50", 2)

	first, err := c.Add(p)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.Quantity != 1 || first.DiscountKind != domain.DiscountAmount || !first.Discount.IsZero() {
		t.Fatalf("unexpected new line %+v", first)
	}
	second, err := c.Add(p)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if second.LineID != first.LineID || second.Quantity != 2 {
		t.Fatalf("expected same line with qty 2, got %+v", second)
	}
	if _, err := c.Add(p); !errors.Is(err, domain.ErrStockLimitExceeded) {
		t.Fatalf("expected ErrStockLimitExceeded, got %v", err)
	}
	if line, _ := c.Line(first.LineID); line.Quantity != 2 {
		t.Fatalf("quantity changed on rejected add: %d", line.Quantity)
	}
}

func TestAddKeepsInsertionOrder(t *testing.T) {
	c := New()
	for _, id := range []string{"b", "a", "c"} {
		if _, err := c.Add(item(id, "1", 5)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	lines := c.Lines()
	if lines[0].ProductID != "b" || lines[1].ProductID != "a" || lines[2].ProductID != "c" {
		t.Fatalf("unexpected order: %v %v %v", lines[0].ProductID, lines[1].ProductID, lines[2].ProductID)
	}
}

func TestPriceIsSnapshotAtAdd(t *testing.T) {
	c := New()
	p := item("p1", "100", 5)
	line, _ := c.Add(p)
	p.RetailPrice = decimal.NewFromInt(500)
	if _, err := c.Add(p); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ := c.Line(line.LineID)
	if !got.UnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected snapshot price 100, got %s", got.UnitPrice)
	}
}

func TestDecreaseBelowOneRemovesLine(t *testing.T) {
	c := New()
	line, _ := c.Add(item("p1", "10", 5))
	if _, err := c.Increase(line.LineID); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if got, removed, _ := c.Decrease(line.LineID); removed || got.Quantity != 1 {
		t.Fatalf("expected qty 1 and kept, got %+v removed=%t", got, removed)
	}
	if _, removed, _ := c.Decrease(line.LineID); !removed {
		t.Fatalf("expected line removed")
	}
	if !c.IsEmpty() {
		t.Fatalf("expected empty cart")
	}
	if _, _, err := c.Decrease(line.LineID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	a, _ := c.Add(item("a", "1", 5))
	c.Add(item("b", "1", 5))
	if _, err := c.Remove(a.LineID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 line, got %d", c.Len())
	}
	c.Clear()
	if !c.IsEmpty() {
		t.Fatalf("expected empty after clear")
	}
}

func TestPercentDiscountLineTotal(t *testing.T) {
	c := New()
	line, _ := c.Add(item("p1", "100", 10))
	c.Increase(line.LineID)
	c.Increase(line.LineID)
	if _, err := c.ApplyDiscount(line.LineID, decimal.NewFromInt(10), domain.DiscountPercent); err != nil {
		t.Fatalf("discount: %v", err)
	}
	got, _ := c.Line(line.LineID)
	if total := LineTotal(got); !total.Equal(decimal.RequireFromString("270.00")) {
		t.Fatalf("expected 270.00, got %s", total)
	}
	if !c.Subtotal().Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected subtotal 300, got %s", c.Subtotal())
	}
	if !c.DiscountTotal().Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected discount 30, got %s", c.DiscountTotal())
	}
	if !c.GrandTotal().Equal(decimal.NewFromInt(270)) {
		t.Fatalf("expected grand total 270, got %s", c.GrandTotal())
	}
}

func TestApplyDiscountValidation(t *testing.T) {
	c := New()
	line, _ := c.Add(item("p1", "100", 10))

	if _, err := c.ApplyDiscount(line.LineID, decimal.NewFromInt(-1), domain.DiscountAmount); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if _, err := c.ApplyDiscount(line.LineID, decimal.NewFromInt(101), domain.DiscountPercent); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount above 100%%, got %v", err)
	}
	if _, err := c.ApplyDiscount(line.LineID, decimal.NewFromInt(5), "BOGUS"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
	got, _ := c.Line(line.LineID)
	if !got.Discount.IsZero() {
		t.Fatalf("rejected discount mutated the line: %+v", got)
	}
}

func TestLineTotalNeverNegative(t *testing.T) {
	prices := []string{"0", "0.01", "9.99", "100", "12345.67"}
	discounts := []string{"0", "0.5", "50", "100", "1000", "999999"}
	for _, price := range prices {
		for qty := 1; qty <= 4; qty++ {
			for _, d := range discounts {
				for _, kind := range []string{domain.DiscountAmount, domain.DiscountPercent} {
					line := domain.CartLine{
						UnitPrice:    decimal.RequireFromString(price),
						Quantity:     qty,
						Discount:     decimal.RequireFromString(d),
						DiscountKind: kind,
					}
					if LineTotal(line).IsNegative() {
						t.Fatalf("negative line total for price=%s qty=%d discount=%s kind=%s", price, qty, d, kind)
					}
				}
			}
		}
	}
}

func TestAmountDiscountLargerThanLineClampsToZero(t *testing.T) {
	c := New()
	line, _ := c.Add(item("p1", "20", 10))
	c.ApplyDiscount(line.LineID, decimal.NewFromInt(50), domain.DiscountAmount)
	if !c.GrandTotal().IsZero() {
		t.Fatalf("expected grand total 0, got %s", c.GrandTotal())
	}
	if !c.DiscountTotal().Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected discount total capped at 20, got %s", c.DiscountTotal())
	}
}

func TestSnapshotRoundTripRegeneratesIDs(t *testing.T) {
	c := New()
	a, _ := c.Add(item("a", "10", 5))
	c.Increase(a.LineID)
	b, _ := c.Add(item("b", "3.25", 5))
	c.ApplyDiscount(b.LineID, decimal.NewFromInt(15), domain.DiscountPercent)

	restored := New()
	restored.Add(item("stale", "99", 1))
	restored.Restore(c.Snapshot())
	orig, got := c.Lines(), restored.Lines()
	if len(orig) != len(got) {
		t.Fatalf("expected %d lines, got %d", len(orig), len(got))
	}
	for i := range orig {
		if got[i].LineID == orig[i].LineID {
			t.Fatalf("expected regenerated line id for %s", orig[i].ProductID)
		}
		if got[i].ProductID != orig[i].ProductID || got[i].Quantity != orig[i].Quantity ||
			!got[i].UnitPrice.Equal(orig[i].UnitPrice) || !got[i].Discount.Equal(orig[i].Discount) ||
			got[i].DiscountKind != orig[i].DiscountKind {
			t.Fatalf("line %d mismatch: %+v vs %+v", i, got[i], orig[i])
		}
	}
	if !restored.GrandTotal().Equal(c.GrandTotal()) {
		t.Fatalf("grand total changed: %s vs %s", restored.GrandTotal(), c.GrandTotal())
	}
}
