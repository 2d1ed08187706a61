package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"konterhp/backend/internal/domain"
	"konterhp/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	nextID          map[string]int64
	productsByID    map[int64]domain.Product
	customersByID   map[int64]domain.Customer
	salesByID       map[int64]*domain.Sale
	repairsByID     map[int64]domain.Repair
	sessionsByID    map[int64]domain.CashSession
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		nextID:          map[string]int64{},
		productsByID:    make(map[int64]domain.Product),
		customersByID:   make(map[int64]domain.Customer),
		salesByID:       make(map[int64]*domain.Sale),
		repairsByID:     make(map[int64]domain.Repair),
		sessionsByID:    make(map[int64]domain.CashSession),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded builds a store pre-loaded with demo catalog data and dev user
// accounts for running without PostgreSQL. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_AGENT_PASSWORD, with warned-about defaults.
func NewSeeded() *Store {
	s := New()

	now := time.Now().UTC()
	products := []domain.Product{
		{SKU: "HP-SM-A16", Name: "Samsung Galaxy A16", Category: domain.CategoryPhone, PriceCents: 2_499_000_00, Stock: 8, AlertThreshold: 2, Active: true},
		{SKU: "HP-XI-R13", Name: "Xiaomi Redmi 13", Category: domain.CategoryPhone, PriceCents: 1_899_000_00, Stock: 12, AlertThreshold: 3, Active: true},
		{SKU: "HP-IP-13", Name: "iPhone 13 128GB", Category: domain.CategoryPhone, PriceCents: 9_499_000_00, Stock: 3, AlertThreshold: 1, Active: true},
		{SKU: "ACC-CASE-A16", Name: "Softcase Galaxy A16", Category: domain.CategoryAccessory, PriceCents: 35_000_00, Stock: 60, AlertThreshold: 10, Active: true},
		{SKU: "ACC-TG-UNI", Name: "Tempered Glass Universal", Category: domain.CategoryAccessory, PriceCents: 25_000_00, Stock: 80, AlertThreshold: 15, Active: true},
		{SKU: "ACC-CHG-20W", Name: "Charger USB-C 20W", Category: domain.CategoryAccessory, PriceCents: 89_000_00, Stock: 40, AlertThreshold: 8, Active: true},
		{SKU: "CMP-LCD-A16", Name: "LCD Galaxy A16", Category: domain.CategoryComponent, PriceCents: 450_000_00, Stock: 6, AlertThreshold: 2, Active: true},
		{SKU: "CMP-BAT-R13", Name: "Baterai Redmi 13", Category: domain.CategoryComponent, PriceCents: 185_000_00, Stock: 10, AlertThreshold: 3, Active: true},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.ID = s.allocate("product")
		s.productsByID[p.ID] = p
	}

	for username, account := range seedUsers() {
		s.usersByUsername[username] = account
	}

	return s
}

func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	agentPwd := envOr("SEED_AGENT_PASSWORD", "agent123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_AGENT_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_AGENT_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"agent", agentPwd, domain.RoleAgent},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// allocate hands out the next id for the given table. Callers must hold mu.
func (s *Store) allocate(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *Store) ListProducts(_ context.Context, lowStockOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		if lowStockOnly && !p.LowStock() {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.Stock < 0 || product.AlertThreshold < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.productsByID {
		if existing.SKU == product.SKU {
			return nil, store.ErrConflict
		}
	}

	product.ID = s.allocate("product")
	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.Stock < 0 || product.AlertThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	product.SKU = existing.SKU
	product.CreatedAt = existing.CreatedAt
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.productsByID, id)
	return nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.customersByID {
		if existing.Phone == customer.Phone {
			return nil, store.ErrConflict
		}
	}

	customer.ID = s.allocate("customer")
	customer.TotalSpentCents = 0
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customersByID[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for id, other := range s.customersByID {
		if id != customer.ID && other.Phone == customer.Phone {
			return nil, store.ErrConflict
		}
	}

	// The running total is only ever changed by completed sales.
	customer.TotalSpentCents = existing.TotalSpentCents
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		if sale.CustomerID != nil && *sale.CustomerID == id {
			return store.ErrConflict
		}
	}
	for _, repair := range s.repairsByID {
		if repair.CustomerID != nil && *repair.CustomerID == id {
			return store.ErrConflict
		}
	}
	delete(s.customersByID, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	if sale.CustomerID != nil {
		if _, exists := s.customersByID[*sale.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	totalCents := int64(0)
	needed := make(map[int64]int, len(sale.Items))
	resolved := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.productsByID[item.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		unitPrice := item.UnitPriceCents
		if unitPrice < 1 {
			unitPrice = product.PriceCents
		}
		// Aggregate per product so repeated lines cannot oversell.
		needed[item.ProductID] += item.Qty
		if product.Stock < needed[item.ProductID] {
			return nil, store.ErrInsufficientStock
		}
		resolved = append(resolved, domain.SaleItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: unitPrice,
			SubtotalCents:  unitPrice * int64(item.Qty),
		})
		totalCents += unitPrice * int64(item.Qty)
	}

	if sale.DiscountCents < 0 || sale.DiscountCents > totalCents {
		return nil, store.ErrInvalidInput
	}

	// All checks passed; apply the stock decrements.
	for productID, qty := range needed {
		product := s.productsByID[productID]
		product.Stock -= qty
		s.productsByID[productID] = product
	}

	sale.ID = s.allocate("sale")
	sale.TotalCents = totalCents - sale.DiscountCents
	sale.Status = domain.SaleStatusCompleted
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	for i := range resolved {
		resolved[i].ID = s.allocate("sale_item")
		resolved[i].SaleID = sale.ID
	}
	sale.Items = resolved

	if sale.CustomerID != nil {
		customer := s.customersByID[*sale.CustomerID]
		customer.TotalSpentCents += sale.TotalCents
		s.customersByID[*sale.CustomerID] = customer
	}

	stored := sale
	s.salesByID[sale.ID] = &stored
	created := cloneSale(&stored)
	return created, nil
}

func (s *Store) CancelSale(_ context.Context, id int64, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidState
	}

	for _, item := range sale.Items {
		product, ok := s.productsByID[item.ProductID]
		if !ok {
			continue
		}
		product.Stock += item.Qty
		s.productsByID[item.ProductID] = product
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	sale.Status = domain.SaleStatusCancelled
	cancelledAt := at
	sale.CancelledAt = &cancelledAt

	return cloneSale(sale), nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ListRepairs(_ context.Context, status string, limit int) ([]domain.Repair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repairs := make([]domain.Repair, 0, len(s.repairsByID))
	for _, repair := range s.repairsByID {
		if status != "" && repair.Status != status {
			continue
		}
		repairs = append(repairs, repair)
	}
	slices.SortFunc(repairs, func(a, b domain.Repair) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(repairs) > limit {
		repairs = repairs[:limit]
	}
	return repairs, nil
}

func (s *Store) CreateRepair(_ context.Context, repair domain.Repair) (*domain.Repair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if repair.Device == "" || repair.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if repair.CustomerID != nil {
		if _, exists := s.customersByID[*repair.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	repair.ID = s.allocate("repair")
	if repair.Status == "" {
		repair.Status = domain.RepairStatusReceived
	}
	now := time.Now().UTC()
	if repair.CreatedAt.IsZero() {
		repair.CreatedAt = now
	}
	repair.UpdatedAt = repair.CreatedAt
	s.repairsByID[repair.ID] = repair
	created := repair
	return &created, nil
}

func (s *Store) GetRepairByID(_ context.Context, id int64) (*domain.Repair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repair, exists := s.repairsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyRepair := repair
	return &copyRepair, nil
}

func (s *Store) UpdateRepair(_ context.Context, repair domain.Repair) (*domain.Repair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.repairsByID[repair.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if repair.Device == "" || repair.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	repair.CustomerID = existing.CustomerID
	repair.CreatedAt = existing.CreatedAt
	repair.UpdatedAt = time.Now().UTC()
	s.repairsByID[repair.ID] = repair
	updated := repair
	return &updated, nil
}

func (s *Store) DeleteRepair(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.repairsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.repairsByID, id)
	return nil
}

func (s *Store) OpenCashSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.OpeningCents < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.sessionsByID {
		if existing.Open() {
			return nil, store.ErrConflict
		}
	}

	session.ID = s.allocate("cash_session")
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.ClosingCents = nil
	session.ExpectedCents = nil
	session.DifferenceCents = nil
	session.ClosedAt = nil
	s.sessionsByID[session.ID] = session
	created := session
	return &created, nil
}

func (s *Store) CloseCashSession(_ context.Context, id int64, closingCents int64, notes string, closedAt time.Time) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !session.Open() {
		return nil, store.ErrInvalidState
	}

	cashSalesTotal := int64(0)
	for _, sale := range s.salesByID {
		if sale.PaymentMethod != "cash" || sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.CreatedAt.Before(session.OpenedAt) {
			continue
		}
		cashSalesTotal += sale.TotalCents
	}

	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	expected := session.OpeningCents + cashSalesTotal
	difference := closingCents - expected

	session.ClosingCents = &closingCents
	session.ExpectedCents = &expected
	session.DifferenceCents = &difference
	session.ClosedAt = &closedAt
	if notes != "" {
		session.Notes = notes
	}
	s.sessionsByID[id] = session
	closed := session
	return &closed, nil
}

func (s *Store) GetCurrentCashSession(_ context.Context) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessionsByID {
		if session.Open() {
			copySession := session
			return &copySession, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetCashSessionByID(_ context.Context, id int64) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) ListCashSessions(_ context.Context, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.CashSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b domain.CashSession) int {
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) GetDashboardSummary(_ context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.DashboardSummary
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		summary.TodaySalesCount++
		summary.TodaySalesTotalCents += sale.TotalCents
	}

	byStatus := map[string]int64{}
	for _, repair := range s.repairsByID {
		byStatus[repair.Status]++
	}
	statuses := make([]string, 0, len(byStatus))
	for status := range byStatus {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)
	for _, status := range statuses {
		summary.RepairsByStatus = append(summary.RepairsByStatus, domain.RepairStatusCount{
			Status: status,
			Count:  byStatus[status],
		})
	}

	for _, product := range s.productsByID {
		if !product.Active {
			continue
		}
		summary.ActiveProductCount++
		if product.LowStock() {
			summary.LowStockCount++
		}
	}

	return summary, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) CreateFirstAdmin(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	for _, existing := range s.usersByUsername {
		if existing.Role == domain.RoleAdmin {
			return store.ErrConflict
		}
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}

	user.Role = domain.RoleAdmin
	user.Active = true
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserRole(_ context.Context, username string, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Role = role
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copySale := *sale
	copySale.Items = slices.Clone(sale.Items)
	if sale.CancelledAt != nil {
		at := *sale.CancelledAt
		copySale.CancelledAt = &at
	}
	if sale.CustomerID != nil {
		id := *sale.CustomerID
		copySale.CustomerID = &id
	}
	return &copySale
}
