package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/store"
	"otsopos/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	inventory      map[string]int
	stockUpdatedAt map[string]time.Time
	categories     map[string]domain.Category
	suppliers      map[string]domain.Supplier
	sales          []*domain.Sale
	salesByIdem    map[string]*domain.Sale
	shiftsByID     map[string]domain.Shift
	openShiftID    string
	movements      []domain.CashMovement
	suspended      map[string]domain.SuspendedSale
	activityLogs   []domain.ActivityLog
	usersByID      map[string]domain.User
	expenses       map[string]domain.Expense
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:       make(map[string]domain.Product),
		inventory:      make(map[string]int),
		stockUpdatedAt: make(map[string]time.Time),
		categories:     make(map[string]domain.Category),
		suppliers:      make(map[string]domain.Supplier),
		sales:          make([]*domain.Sale, 0, 64),
		salesByIdem:    make(map[string]*domain.Sale),
		shiftsByID:     make(map[string]domain.Shift),
		movements:      make([]domain.CashMovement, 0, 32),
		suspended:      make(map[string]domain.SuspendedSale),
		activityLogs:   make([]domain.ActivityLog, 0, 128),
		usersByID:      make(map[string]domain.User),
		expenses:       make(map[string]domain.Expense),
	}
}

// seedUsers builds the dev/demo accounts. Passwords and PINs come from
// SEED_ADMIN_PASSWORD, SEED_CASHIER_PASSWORD and SEED_ADMIN_PIN; unset
// values fall back to dev defaults with a warning.
func seedUsers() []domain.User {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	adminPIN := envOr("SEED_ADMIN_PIN", "482913")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.User, 0, 2)
	for _, u := range []struct {
		id, name, email, role, password, pin string
	}{
		{"user-admin", "Store Admin", "admin@otsopos.local", domain.RoleAdmin, adminPwd, adminPIN},
		{"user-cashier", "Front Cashier", "cashier@otsopos.local", domain.RoleCashier, cashierPwd, ""},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		user := domain.User{
			ID:           u.id,
			Name:         u.name,
			Email:        u.email,
			Role:         u.role,
			PasswordHash: string(hash),
			CreatedAt:    now,
		}
		if u.pin != "" {
			pinHash, err := bcrypt.GenerateFromPassword([]byte(u.pin), bcrypt.DefaultCost)
			if err != nil {
				log.Fatalf("[memory-store] failed to hash seed PIN for %s: %v", u.email, err)
			}
			user.PINHash = string(pinHash)
			user.HasPIN = true
		}
		users = append(users, user)
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()

	categories := []domain.Category{
		{ID: "cat-beverage", Name: "Beverages", Description: "Drinks and coffee"},
		{ID: "cat-snack", Name: "Snacks", Description: "Chips, biscuits, candy"},
		{ID: "cat-grocery", Name: "Grocery", Description: "Canned goods and staples"},
		{ID: "cat-household", Name: "Household", Description: "Soap and cleaning"},
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}
	s.suppliers["sup-metro"] = domain.Supplier{ID: "sup-metro", Name: "Metro Wholesale", Contact: "0917-000-0000"}

	seed := []struct {
		id, name, category string
		retail, wholesale  string
		stock              int
	}{
		{"prod-coke-330", "Coke 330ml", "cat-beverage", "25.00", "20.50", 48},
		{"prod-kopiko-3in1", "Kopiko 3-in-1", "cat-beverage", "12.00", "9.75", 120},
		{"prod-nova-78", "Nova Cheddar 78g", "cat-snack", "24.00", "19.00", 36},
		{"prod-skyflakes", "SkyFlakes Crackers", "cat-snack", "8.50", "6.90", 60},
		{"prod-lucky-me", "Lucky Me Pancit Canton", "cat-grocery", "16.00", "13.25", 80},
		{"prod-century-tuna", "Century Tuna 155g", "cat-grocery", "42.00", "36.00", 40},
		{"prod-rice-1kg", "Dinorado Rice 1kg", "cat-grocery", "68.00", "58.00", 25},
		{"prod-safeguard", "Safeguard Bar Soap", "cat-household", "45.00", "38.50", 30},
		{"prod-zonrox", "Zonrox 250ml", "cat-household", "22.00", "18.00", 0},
	}
	now := time.Now().UTC()
	for _, p := range seed {
		s.products[p.id] = domain.Product{
			ID:             p.id,
			Name:           p.name,
			RetailPrice:    decimal.RequireFromString(p.retail),
			WholesalePrice: decimal.RequireFromString(p.wholesale),
			CategoryID:     p.category,
			SupplierID:     "sup-metro",
		}
		s.inventory[p.id] = p.stock
		s.stockUpdatedAt[p.id] = now
	}

	for _, u := range seedUsers() {
		s.usersByID[u.ID] = u
	}
	return s
}

func (s *Store) ListCatalog(_ context.Context) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.CatalogItem, 0, len(s.products))
	for _, p := range s.products {
		items = append(items, s.catalogItem(p))
	}
	slices.SortFunc(items, func(a, b domain.CatalogItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) GetCatalogItem(_ context.Context, productID string) (*domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	item := s.catalogItem(p)
	return &item, nil
}

func (s *Store) catalogItem(p domain.Product) domain.CatalogItem {
	item := domain.CatalogItem{Product: p, Stock: s.inventory[p.ID]}
	if c, ok := s.categories[p.CategoryID]; ok {
		item.CategoryName = c.Name
	}
	if sup, ok := s.suppliers[p.SupplierID]; ok {
		item.SupplierName = sup.Name
	}
	return item
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, domain.ErrDuplicateKey
	}
	s.products[product.ID] = product
	s.inventory[product.ID] = 0
	s.stockUpdatedAt[product.ID] = time.Now().UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, domain.ErrNotFound
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return domain.ErrNotFound
	}
	delete(s.products, productID)
	delete(s.inventory, productID)
	delete(s.stockUpdatedAt, productID)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[category.ID]; !exists {
		return nil, domain.ErrNotFound
	}
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[categoryID]; !exists {
		return domain.ErrNotFound
	}
	delete(s.categories, categoryID)
	for id, p := range s.products {
		if p.CategoryID == categoryID {
			p.CategoryID = ""
			s.products[id] = p
		}
	}
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		out = append(out, sup)
	}
	slices.SortFunc(out, func(a, b domain.Supplier) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliers[supplier.ID]; !exists {
		return nil, domain.ErrNotFound
	}
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) DeleteSupplier(_ context.Context, supplierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliers[supplierID]; !exists {
		return domain.ErrNotFound
	}
	delete(s.suppliers, supplierID)
	for id, p := range s.products {
		if p.SupplierID == supplierID {
			p.SupplierID = ""
			s.products[id] = p
		}
	}
	return nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryRecord, 0, len(s.inventory))
	for id, qty := range s.inventory {
		out = append(out, domain.InventoryRecord{
			ProductID:       id,
			ProductName:     s.products[id].Name,
			QuantityInStock: qty,
			UpdatedAt:       s.stockUpdatedAt[id],
		})
	}
	slices.SortFunc(out, func(a, b domain.InventoryRecord) int {
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return out, nil
}

func (s *Store) SetStock(_ context.Context, productID string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.inventory[productID]
	if !exists {
		return 0, domain.ErrNotFound
	}
	s.inventory[productID] = qty
	s.stockUpdatedAt[productID] = time.Now().UTC()
	return prev, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, opts domain.SaleOptions) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return nil, domain.ErrDuplicateKey
		}
	}

	// Validate every line before touching stock so a rejection leaves no trace.
	requested := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Quantity < 1 {
			return nil, domain.ErrInvalidInput
		}
		requested[line.ProductID] += line.Quantity
	}
	for productID, qty := range requested {
		stock, exists := s.inventory[productID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		if !opts.AllowNegativeStock && stock < qty {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrStockLimitExceeded)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	from, to := store.DayBounds(sale.CreatedAt)
	count := 0
	for _, existing := range s.sales {
		if !existing.CreatedAt.Before(from) && existing.CreatedAt.Before(to) {
			count++
		}
	}
	sale.TransactionNumber = store.TransactionNumber(from, count+1)

	lines := make([]domain.OrderDetail, 0, len(sale.Lines))
	now := time.Now().UTC()
	for _, line := range sale.Lines {
		if line.ID == "" {
			line.ID = xid.New("od")
		}
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lines = append(lines, line)

		s.inventory[line.ProductID] -= line.Quantity
		s.stockUpdatedAt[line.ProductID] = now
		if s.inventory[line.ProductID] < 0 {
			log.Printf("[memory-store] WARN: product %s stock went negative (%d) on sale %s", line.ProductID, s.inventory[line.ProductID], sale.TransactionNumber)
		}
	}
	sale.Lines = lines

	saved := cloneSale(&sale)
	s.sales = append(s.sales, saved)
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = saved
	}
	return cloneSale(saved), nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ID == saleID {
			return cloneSale(sale), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		header := *sale
		header.Lines = nil
		out = append(out, header)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.TransactionNumber, a.TransactionNumber)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) GetDashboard(_ context.Context, from time.Time, to time.Time, topN int) (domain.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.Dashboard{TodaySales: decimal.Zero, TodayExpenses: decimal.Zero}
	sold := make(map[string]*domain.ProductSales)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.TodaySales = report.TodaySales.Add(sale.TotalAmount)
		report.TransactionCount++
		for _, line := range sale.Lines {
			entry, ok := sold[line.ProductID]
			if !ok {
				entry = &domain.ProductSales{ProductID: line.ProductID, Name: line.ProductName}
				sold[line.ProductID] = entry
			}
			entry.SoldQty += line.Quantity
		}
	}
	for _, e := range s.expenses {
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		report.TodayExpenses = report.TodayExpenses.Add(e.Amount)
	}

	top := make([]domain.ProductSales, 0, len(sold))
	for _, entry := range sold {
		top = append(top, *entry)
	}
	slices.SortFunc(top, func(a, b domain.ProductSales) int {
		if a.SoldQty == b.SoldQty {
			return strings.Compare(a.Name, b.Name)
		}
		return b.SoldQty - a.SoldQty
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	report.TopProducts = top
	return report, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID != "" {
		return nil, domain.ErrShiftAlreadyOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	s.shiftsByID[shift.ID] = shift
	s.openShiftID = shift.ID
	saved := cloneShift(shift)
	return &saved, nil
}

func (s *Store) GetOpenShift(_ context.Context) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openShiftID == "" {
		return nil, domain.ErrNoOpenShift
	}
	shift := cloneShift(s.shiftsByID[s.openShiftID])
	return &shift, nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	shift = cloneShift(shift)
	return &shift, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		out = append(out, cloneShift(shift))
	}
	slices.SortFunc(out, func(a, b domain.Shift) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateOpenShift(_ context.Context, shiftID string, movement *domain.CashMovement, mutate func(*domain.Shift) error) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID == "" || (shiftID != "" && shiftID != s.openShiftID) {
		return nil, domain.ErrNoOpenShift
	}
	working := cloneShift(s.shiftsByID[s.openShiftID])
	if err := mutate(&working); err != nil {
		return nil, err
	}
	working.ID = s.openShiftID

	if movement != nil {
		m := *movement
		if m.ID == "" {
			m.ID = xid.New("cm")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		m.ShiftID = working.ID
		s.movements = append(s.movements, m)
	}

	s.shiftsByID[working.ID] = working
	if working.Status != domain.ShiftStatusOpen {
		s.openShiftID = ""
	}
	saved := cloneShift(working)
	return &saved, nil
}

func (s *Store) ListCashMovements(_ context.Context, shiftID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashMovement, 0, 8)
	for _, m := range s.movements {
		if m.ShiftID == shiftID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) CreateSuspendedSale(_ context.Context, suspended domain.SuspendedSale) (*domain.SuspendedSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(suspended.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if suspended.ID == "" {
		suspended.ID = xid.New("susp")
	}
	if suspended.CreatedAt.IsZero() {
		suspended.CreatedAt = time.Now().UTC()
	}
	s.suspended[suspended.ID] = cloneSuspended(suspended)
	saved := cloneSuspended(suspended)
	return &saved, nil
}

func (s *Store) ListSuspendedSales(_ context.Context, limit int) ([]domain.SuspendedSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SuspendedSale, 0, len(s.suspended))
	for _, susp := range s.suspended {
		out = append(out, cloneSuspended(susp))
	}
	slices.SortFunc(out, func(a, b domain.SuspendedSale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PopSuspendedSale(_ context.Context, suspendID string) (*domain.SuspendedSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	susp, ok := s.suspended[suspendID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.suspended, suspendID)
	result := cloneSuspended(susp)
	return &result, nil
}

func (s *Store) CreateActivityLog(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.activityLogs = append(s.activityLogs, entry)
	return nil
}

func (s *Store) ListActivityLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ActivityLog, 0, 64)
	for _, entry := range s.activityLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	// Append order breaks ties between entries written in the same instant.
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b domain.ActivityLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if s.emailTaken(user.Email, "") {
		return nil, domain.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.HasPIN = user.PINHash != ""
	s.usersByID[user.ID] = user
	return &user, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[user.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if s.emailTaken(user.Email, user.ID) {
		return nil, domain.ErrDuplicateEmail
	}
	user.CreatedAt = existing.CreatedAt
	user.HasPIN = user.PINHash != ""
	s.usersByID[user.ID] = user
	return &user, nil
}

func (s *Store) emailTaken(email string, exceptID string) bool {
	for id, u := range s.usersByID {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.usersByID, userID)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.usersByID {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.Name, b.Name)
	})
	return users, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expenses[expense.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	expense.CreatedAt = existing.CreatedAt
	s.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[expenseID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.expenses, expenseID)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Lines = slices.Clone(src.Lines)
	return &dst
}

func cloneShift(src domain.Shift) domain.Shift {
	dst := src
	if src.ClosingCash != nil {
		v := *src.ClosingCash
		dst.ClosingCash = &v
	}
	if src.ClosedAt != nil {
		v := *src.ClosedAt
		dst.ClosedAt = &v
	}
	return dst
}

func cloneSuspended(src domain.SuspendedSale) domain.SuspendedSale {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}
