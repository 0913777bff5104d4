package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/cart"
	"otsopos/backend/internal/domain"
)

func (s *Service) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	items, err := s.repo.ListCatalog(ctx)
	if err != nil {
		return nil, domain.Fail("List Products", err)
	}
	return items, nil
}

func (s *Service) GetCatalogItem(ctx context.Context, productID string) (domain.CatalogItem, error) {
	item, err := s.repo.GetCatalogItem(ctx, productID)
	if err != nil {
		return domain.CatalogItem{}, domain.Fail("Get Product", err)
	}
	return *item, nil
}

// AddToCart reads live stock before adding so the cart never holds more
// than is on the shelf at the time of the scan.
func (s *Service) AddToCart(ctx context.Context, c *cart.Cart, productID string) (domain.CartLine, error) {
	const action = "Add to Cart"
	item, err := s.repo.GetCatalogItem(ctx, productID)
	if err != nil {
		return domain.CartLine{}, domain.Fail(action, err)
	}
	line, err := c.Add(*item)
	if err != nil {
		return domain.CartLine{}, domain.Fail(action, err)
	}
	return line, nil
}

func (s *Service) IncreaseLine(ctx context.Context, c *cart.Cart, lineID string) (domain.CartLine, error) {
	const action = "Increase Quantity"
	line, ok := c.Line(lineID)
	if !ok {
		return domain.CartLine{}, &domain.OpError{Action: action, Err: domain.ErrNotFound}
	}
	item, err := s.repo.GetCatalogItem(ctx, line.ProductID)
	if err != nil {
		return domain.CartLine{}, domain.Fail(action, err)
	}
	if line.Quantity+1 > item.Stock {
		return domain.CartLine{}, &domain.OpError{Action: action, Err: fmt.Errorf("%w: only %d of %s in stock", domain.ErrStockLimitExceeded, item.Stock, item.Name)}
	}
	updated, err := c.Increase(lineID)
	if err != nil {
		return domain.CartLine{}, domain.Fail(action, err)
	}
	return updated, nil
}

func (s *Service) DecreaseLine(ctx context.Context, op domain.Operator, c *cart.Cart, lineID string) (domain.CartLine, bool, error) {
	line, removed, err := c.Decrease(lineID)
	if err != nil {
		return domain.CartLine{}, false, domain.Fail("Decrease Quantity", err)
	}
	if removed {
		s.logAudit(ctx, op, "Decrease to Zero", fmt.Sprintf("Removed %s from cart", line.Name))
	}
	return line, removed, nil
}

func (s *Service) RemoveLine(ctx context.Context, op domain.Operator, c *cart.Cart, lineID string) (domain.CartLine, error) {
	line, err := c.Remove(lineID)
	if err != nil {
		return domain.CartLine{}, domain.Fail("Remove Item", err)
	}
	s.logAudit(ctx, op, "Remove Item", fmt.Sprintf("Removed %d x %s from cart", line.Quantity, line.Name))
	return line, nil
}

func (s *Service) ClearCart(ctx context.Context, op domain.Operator, c *cart.Cart) {
	if c.IsEmpty() {
		return
	}
	s.logAudit(ctx, op, "Empty Cart", fmt.Sprintf("Cleared %d line(s) worth %s", c.Len(), peso(c.GrandTotal())))
	c.Clear()
}

func (s *Service) ApplyDiscount(ctx context.Context, op domain.Operator, c *cart.Cart, lineID string, amount decimal.Decimal, kind string) (domain.CartLine, error) {
	line, err := c.ApplyDiscount(lineID, amount, kind)
	if err != nil {
		return domain.CartLine{}, domain.Fail("Apply Discount", err)
	}
	label := peso(amount)
	if line.DiscountKind == domain.DiscountPercent {
		label = amount.String() + "%"
	}
	s.logAudit(ctx, op, "Apply Discount", fmt.Sprintf("%s discount on %s", label, line.Name))
	return line, nil
}

func validateProduct(action string, p domain.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid(action, domain.ErrInvalidInput, "product name is required")
	}
	if p.RetailPrice.IsNegative() || p.WholesalePrice.IsNegative() {
		return invalid(action, domain.ErrInvalidAmount, "prices must not be negative")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, op domain.Operator, p domain.Product) (domain.Product, error) {
	const action = "Add Product"
	p.Name = strings.TrimSpace(p.Name)
	if err := validateProduct(action, p); err != nil {
		return domain.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Added %s at %s", created.Name, peso(created.RetailPrice)))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, op domain.Operator, p domain.Product) (domain.Product, error) {
	const action = "Edit Product"
	p.Name = strings.TrimSpace(p.Name)
	if err := validateProduct(action, p); err != nil {
		return domain.Product{}, err
	}
	updated, err := s.repo.UpdateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Updated %s", updated.Name))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, op domain.Operator, productID string) error {
	const action = "Delete Product"
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Deleted product "+productID)
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	out, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, domain.Fail("List Categories", err)
	}
	return out, nil
}

func (s *Service) CreateCategory(ctx context.Context, op domain.Operator, c domain.Category) (domain.Category, error) {
	const action = "Add Category"
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Category{}, invalid(action, domain.ErrInvalidInput, "category name is required")
	}
	created, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return domain.Category{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Added category "+created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, op domain.Operator, c domain.Category) (domain.Category, error) {
	const action = "Edit Category"
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Category{}, invalid(action, domain.ErrInvalidInput, "category name is required")
	}
	updated, err := s.repo.UpdateCategory(ctx, c)
	if err != nil {
		return domain.Category{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Updated category "+updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, op domain.Operator, categoryID string) error {
	const action = "Delete Category"
	if err := s.repo.DeleteCategory(ctx, categoryID); err != nil {
		return domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Deleted category "+categoryID)
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	out, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, domain.Fail("List Suppliers", err)
	}
	return out, nil
}

func (s *Service) CreateSupplier(ctx context.Context, op domain.Operator, sup domain.Supplier) (domain.Supplier, error) {
	const action = "Add Supplier"
	sup.Name = strings.TrimSpace(sup.Name)
	if sup.Name == "" {
		return domain.Supplier{}, invalid(action, domain.ErrInvalidInput, "supplier name is required")
	}
	created, err := s.repo.CreateSupplier(ctx, sup)
	if err != nil {
		return domain.Supplier{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Added supplier "+created.Name)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, op domain.Operator, sup domain.Supplier) (domain.Supplier, error) {
	const action = "Edit Supplier"
	sup.Name = strings.TrimSpace(sup.Name)
	if sup.Name == "" {
		return domain.Supplier{}, invalid(action, domain.ErrInvalidInput, "supplier name is required")
	}
	updated, err := s.repo.UpdateSupplier(ctx, sup)
	if err != nil {
		return domain.Supplier{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Updated supplier "+updated.Name)
	return *updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, op domain.Operator, supplierID string) error {
	const action = "Delete Supplier"
	if err := s.repo.DeleteSupplier(ctx, supplierID); err != nil {
		return domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, "Deleted supplier "+supplierID)
	return nil
}

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	out, err := s.repo.ListInventory(ctx)
	if err != nil {
		return nil, domain.Fail("List Inventory", err)
	}
	return out, nil
}

// SetStock overwrites the on-hand quantity for a manual count.
func (s *Service) SetStock(ctx context.Context, op domain.Operator, productID string, qty int) (domain.InventoryRecord, error) {
	const action = "Inventory Override"
	if qty < 0 {
		return domain.InventoryRecord{}, invalid(action, domain.ErrInvalidAmount, "quantity must not be negative")
	}
	prev, err := s.repo.SetStock(ctx, productID, qty)
	if err != nil {
		return domain.InventoryRecord{}, domain.Fail(action, err)
	}

	record := domain.InventoryRecord{ProductID: productID, QuantityInStock: qty, UpdatedAt: s.clock()}
	name := productID
	if item, err := s.repo.GetCatalogItem(ctx, productID); err == nil {
		name = item.Name
		record.ProductName = item.Name
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Stock of %s changed from %d to %d", name, prev, qty))
	return record, nil
}
