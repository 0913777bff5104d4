// Package cart holds the working set of lines for the sale being rung up.
// A Cart is not safe for concurrent use; the owning session serializes access.
package cart

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{}
}

// Restore replaces the cart's lines with parked ones. Line identities are
// regenerated; everything else is copied as stored.
func (c *Cart) Restore(lines []domain.SuspendedSaleLine) {
	c.lines = make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		c.lines = append(c.lines, domain.CartLine{
			LineID:       newLineID(),
			ProductID:    l.ProductID,
			Name:         l.Name,
			UnitPrice:    l.UnitPrice,
			Quantity:     l.Quantity,
			Discount:     l.Discount,
			DiscountKind: normalizeKind(l.DiscountKind),
		})
	}
}

// Add puts one unit of item into the cart. An existing line for the same
// product is incremented unless that would exceed the item's stock.
func (c *Cart) Add(item domain.CatalogItem) (domain.CartLine, error) {
	if item.Stock <= 0 {
		return domain.CartLine{}, domain.ErrOutOfStock
	}
	for i := range c.lines {
		if c.lines[i].ProductID != item.ID {
			continue
		}
		if c.lines[i].Quantity >= item.Stock {
			return domain.CartLine{}, domain.ErrStockLimitExceeded
		}
		c.lines[i].Quantity++
		return c.lines[i], nil
	}

	line := domain.CartLine{
		LineID:       newLineID(),
		ProductID:    item.ID,
		Name:         item.Name,
		UnitPrice:    item.RetailPrice,
		Quantity:     1,
		Discount:     decimal.Zero,
		DiscountKind: domain.DiscountAmount,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

func (c *Cart) Increase(lineID string) (domain.CartLine, error) {
	i := c.index(lineID)
	if i < 0 {
		return domain.CartLine{}, domain.ErrNotFound
	}
	c.lines[i].Quantity++
	return c.lines[i], nil
}

// Decrease drops one unit. The line is removed when its quantity reaches
// zero; removed reports whether that happened.
func (c *Cart) Decrease(lineID string) (line domain.CartLine, removed bool, err error) {
	i := c.index(lineID)
	if i < 0 {
		return domain.CartLine{}, false, domain.ErrNotFound
	}
	c.lines[i].Quantity--
	line = c.lines[i]
	if line.Quantity < 1 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return line, true, nil
	}
	return line, false, nil
}

func (c *Cart) Remove(lineID string) (domain.CartLine, error) {
	i := c.index(lineID)
	if i < 0 {
		return domain.CartLine{}, domain.ErrNotFound
	}
	line := c.lines[i]
	c.lines = slices.Delete(c.lines, i, i+1)
	return line, nil
}

// ApplyDiscount replaces the line's discount. Percentages must lie in
// [0, 100].
func (c *Cart) ApplyDiscount(lineID string, amount decimal.Decimal, kind string) (domain.CartLine, error) {
	i := c.index(lineID)
	if i < 0 {
		return domain.CartLine{}, domain.ErrNotFound
	}
	if amount.IsNegative() {
		return domain.CartLine{}, domain.ErrInvalidAmount
	}
	switch kind {
	case "", domain.DiscountAmount:
		kind = domain.DiscountAmount
	case domain.DiscountPercent:
		if amount.GreaterThan(hundred) {
			return domain.CartLine{}, domain.ErrInvalidAmount
		}
	default:
		return domain.CartLine{}, fmt.Errorf("%w: discount kind %q", domain.ErrInvalidInput, kind)
	}
	c.lines[i].Discount = amount
	c.lines[i].DiscountKind = kind
	return c.lines[i], nil
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy in display order.
func (c *Cart) Lines() []domain.CartLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Line(lineID string) (domain.CartLine, bool) {
	i := c.index(lineID)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return c.lines[i], true
}

// Subtotal is the pre-discount value of every line.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(GrossValue(l))
	}
	return total
}

func (c *Cart) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(GrossValue(l).Sub(LineTotal(l)))
	}
	return total
}

func (c *Cart) GrandTotal() decimal.Decimal {
	return c.Subtotal().Sub(c.DiscountTotal())
}

func (c *Cart) View() domain.CartView {
	view := domain.CartView{
		Lines:         make([]domain.CartLineView, 0, len(c.lines)),
		Subtotal:      c.Subtotal(),
		DiscountTotal: c.DiscountTotal(),
		GrandTotal:    c.GrandTotal(),
	}
	for _, l := range c.lines {
		view.Lines = append(view.Lines, domain.CartLineView{CartLine: l, LineTotal: LineTotal(l)})
	}
	return view
}

// Snapshot copies the lines into their parked form.
func (c *Cart) Snapshot() []domain.SuspendedSaleLine {
	out := make([]domain.SuspendedSaleLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, domain.SuspendedSaleLine{
			ProductID:    l.ProductID,
			Name:         l.Name,
			UnitPrice:    l.UnitPrice,
			Quantity:     l.Quantity,
			Discount:     l.Discount,
			DiscountKind: l.DiscountKind,
		})
	}
	return out
}

// GrossValue is quantity × unit price.
func GrossValue(l domain.CartLine) decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineTotal is the discounted line value, floored at zero.
func LineTotal(l domain.CartLine) decimal.Decimal {
	gross := GrossValue(l)
	var off decimal.Decimal
	if l.DiscountKind == domain.DiscountPercent {
		off = gross.Mul(l.Discount).Div(hundred)
	} else {
		off = l.Discount
	}
	total := gross.Sub(off)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (c *Cart) index(lineID string) int {
	return slices.IndexFunc(c.lines, func(l domain.CartLine) bool {
		return l.LineID == lineID
	})
}

func newLineID() string {
	return xid.New("line")
}

func normalizeKind(kind string) string {
	if kind == domain.DiscountPercent {
		return domain.DiscountPercent
	}
	return domain.DiscountAmount
}
