package store

import (
	"context"
	"fmt"
	"time"

	"otsopos/backend/internal/domain"
)

type CatalogRepository interface {
	ListCatalog(ctx context.Context) ([]domain.CatalogItem, error)
	GetCatalogItem(ctx context.Context, productID string) (*domain.CatalogItem, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, supplierID string) error
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
	// SetStock overwrites the quantity and returns the previous one.
	SetStock(ctx context.Context, productID string, qty int) (int, error)
}

type SaleRepository interface {
	// CreateSale persists the header, every order detail and the stock
	// decrements as one unit, assigning the daily transaction number.
	CreateSale(ctx context.Context, sale domain.Sale, opts domain.SaleOptions) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	GetDashboard(ctx context.Context, from time.Time, to time.Time, topN int) (domain.Dashboard, error)
}

type ShiftRepository interface {
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetOpenShift(ctx context.Context) (*domain.Shift, error)
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	ListShifts(ctx context.Context, limit int) ([]domain.Shift, error)
	// UpdateOpenShift reads the open shift, applies mutate and writes it
	// back as one unit. A non-nil movement is appended in the same unit.
	// An empty shiftID targets whichever shift is open.
	UpdateOpenShift(ctx context.Context, shiftID string, movement *domain.CashMovement, mutate func(*domain.Shift) error) (*domain.Shift, error)
	ListCashMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error)
}

type SuspendRepository interface {
	CreateSuspendedSale(ctx context.Context, suspended domain.SuspendedSale) (*domain.SuspendedSale, error)
	ListSuspendedSales(ctx context.Context, limit int) ([]domain.SuspendedSale, error)
	// PopSuspendedSale returns the sale and deletes it with its lines.
	PopSuspendedSale(ctx context.Context, suspendID string) (*domain.SuspendedSale, error)
}

type AuditRepository interface {
	CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error
	ListActivityLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type ExpenseRepository interface {
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, expenseID string) error
	ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error)
}

type Repository interface {
	CatalogRepository
	SaleRepository
	ShiftRepository
	SuspendRepository
	AuditRepository
	UserRepository
	ExpenseRepository
}

// TransactionNumber formats the MMDDYYYY-NNN receipt number.
func TransactionNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%02d%02d%04d-%03d", int(day.Month()), day.Day(), day.Year(), seq)
}

// DayBounds returns the start of t's calendar day and of the next one, in
// t's own location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
