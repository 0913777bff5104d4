package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "Admin"
	RoleCashier = "Cashier"
	RoleManager = "Manager"
	RoleOwner   = "Owner"
)

const (
	DiscountAmount  = "AMOUNT"
	DiscountPercent = "PERCENT"
)

const (
	TenderCash  = "Cash"
	TenderGCash = "GCash"
	TenderSplit = "Split"
)

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	CashIn  = "IN"
	CashOut = "OUT"
)

// Operator is the authenticated person acting on the register. The owner
// identity lives outside the Users table and has an empty ID.
type Operator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (o Operator) IsOwner() bool {
	return o.Role == RoleOwner
}

// DisplayName falls back to "system" for unattributed actions.
func (o Operator) DisplayName() string {
	if o.Name == "" {
		return "system"
	}
	return o.Name
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	PINHash      string    `json:"-"`
	HasPIN       bool      `json:"hasPin"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) Operator() Operator {
	return Operator{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

type UserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Address string `json:"address"`
}

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	RetailPrice    decimal.Decimal `json:"retailPrice"`
	WholesalePrice decimal.Decimal `json:"wholesalePrice"`
	CategoryID     string          `json:"categoryId,omitempty"`
	SupplierID     string          `json:"supplierId,omitempty"`
}

// CatalogItem is the Product + Stock join the cart reads from.
type CatalogItem struct {
	Product
	Stock        int    `json:"stock"`
	CategoryName string `json:"categoryName,omitempty"`
	SupplierName string `json:"supplierName,omitempty"`
}

type InventoryRecord struct {
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName"`
	QuantityInStock int       `json:"quantityInStock"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CartLine struct {
	LineID       string          `json:"lineId"`
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountKind string          `json:"discountKind"`
}

// CartView is a read-only rendering of a cart with its computed totals.
type CartView struct {
	Lines         []CartLineView  `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
}

type CartLineView struct {
	CartLine
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Tender is the structured payment for a settlement. Amount fields that do
// not apply to Kind are ignored.
type Tender struct {
	Kind           string          `json:"kind" binding:"required"`
	CashReceived   decimal.Decimal `json:"cashReceived"`
	GCashAmount    decimal.Decimal `json:"gcashAmount"`
	GCashReference string          `json:"gcashReference"`
}

// TenderBreakdown is how a validated tender lands in the drawer.
type TenderBreakdown struct {
	CashPortion  decimal.Decimal `json:"cashPortion"`
	GCashPortion decimal.Decimal `json:"gcashPortion"`
	Change       decimal.Decimal `json:"change"`
}

type Sale struct {
	ID                string          `json:"id"`
	TransactionNumber string          `json:"transactionNumber"`
	OperatorID        string          `json:"operatorId"`
	OperatorName      string          `json:"operatorName"`
	ShiftID           string          `json:"shiftId,omitempty"`
	IdempotencyKey    string          `json:"idempotencyKey,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountTotal     decimal.Decimal `json:"discountTotal"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	PaymentType       string          `json:"paymentType"`
	CashReceived      decimal.Decimal `json:"cashReceived"`
	CashPortion       decimal.Decimal `json:"cashPortion"`
	GCashAmount       decimal.Decimal `json:"gcashAmount"`
	GCashReference    string          `json:"gcashReference,omitempty"`
	ChangeDue         decimal.Decimal `json:"changeDue"`
	CreatedAt         time.Time       `json:"createdAt"`
	Lines             []OrderDetail   `json:"lines,omitempty"`
}

type OrderDetail struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountKind string          `json:"discountKind"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// SaleOptions tune how a repository persists a sale.
type SaleOptions struct {
	AllowNegativeStock bool
}

// Shift is one cash-drawer session. Split tenders post their cash part to
// TotalSplitCash and their GCash part to TotalSplitGCash; only the cash part
// counts toward ExpectedCash.
type Shift struct {
	ID              string           `json:"id"`
	OpenedBy        string           `json:"openedBy"`
	OpenedByName    string           `json:"openedByName"`
	ClosedBy        string           `json:"closedBy,omitempty"`
	ClosedByName    string           `json:"closedByName,omitempty"`
	OpeningCash     decimal.Decimal  `json:"openingCash"`
	ClosingCash     *decimal.Decimal `json:"closingCash,omitempty"`
	ExpectedCash    decimal.Decimal  `json:"expectedCash"`
	TotalCashSales  decimal.Decimal  `json:"totalCashSales"`
	TotalSplitCash  decimal.Decimal  `json:"totalSplitCash"`
	TotalSplitGCash decimal.Decimal  `json:"totalSplitGcash"`
	TotalCashIn     decimal.Decimal  `json:"totalCashIn"`
	TotalCashOut    decimal.Decimal  `json:"totalCashOut"`
	Status          string           `json:"status"`
	OpenedAt        time.Time        `json:"openedAt"`
	ClosedAt        *time.Time       `json:"closedAt,omitempty"`
}

// Difference is closing minus expected; zero while the shift has no
// closing figure.
func (s Shift) Difference() decimal.Decimal {
	if s.ClosingCash == nil {
		return decimal.Zero
	}
	return s.ClosingCash.Sub(s.ExpectedCash)
}

type CashMovement struct {
	ID         string          `json:"id"`
	ShiftID    string          `json:"shiftId"`
	Direction  string          `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	OperatorID string          `json:"operatorId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type ActivityLog struct {
	ID           string    `json:"id"`
	OperatorID   string    `json:"operatorId,omitempty"`
	OperatorName string    `json:"operatorName"`
	Action       string    `json:"action"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SuspendedSale struct {
	ID           string              `json:"id"`
	OperatorID   string              `json:"operatorId,omitempty"`
	OperatorName string              `json:"operatorName,omitempty"`
	Total        decimal.Decimal     `json:"total"`
	CreatedAt    time.Time           `json:"createdAt"`
	Lines        []SuspendedSaleLine `json:"lines"`
}

type SuspendedSaleLine struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountKind string          `json:"discountKind"`
}

type Expense struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ProductSales struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	SoldQty   int    `json:"soldQty"`
}

type Dashboard struct {
	Date             string          `json:"date"`
	TodaySales       decimal.Decimal `json:"todaySales"`
	TodayExpenses    decimal.Decimal `json:"todayExpenses"`
	TransactionCount int             `json:"transactionCount"`
	TopProducts      []ProductSales  `json:"topProducts"`
}

// TenderTotals sums settled transactions per tender kind.
type TenderTotals struct {
	Cash  decimal.Decimal `json:"cash"`
	GCash decimal.Decimal `json:"gcash"`
	Split decimal.Decimal `json:"split"`
	Gross decimal.Decimal `json:"gross"`
	Count int             `json:"count"`
}

type XReading struct {
	Shift        Shift        `json:"shift"`
	Transactions []Sale       `json:"transactions"`
	Totals       TenderTotals `json:"totals"`
	GeneratedAt  time.Time    `json:"generatedAt"`
}

type ZReading struct {
	Shift        Shift           `json:"shift"`
	Difference   decimal.Decimal `json:"difference"`
	Transactions []Sale          `json:"transactions"`
	Totals       TenderTotals    `json:"totals"`
	// Incomplete is set when the shift closed but its sales could not be
	// read back; Transactions and Totals are then empty.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Grant is the first half of a two-phase authorization.
type Grant struct {
	Token      string    `json:"token"`
	Action     string    `json:"action"`
	ApprovedBy string    `json:"approvedBy"`
	IssuedTo   string    `json:"issuedTo"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string   `json:"accessToken"`
	SessionID   string   `json:"sessionId"`
	Operator    Operator `json:"operator"`
	ExpiresAt   string   `json:"expiresAt"`
}
