package store

import (
	"context"
	"errors"
	"time"

	"konterhp/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error

	// CreateSale persists the sale and its items, decrements product stock
	// and adds the final total to the customer's running total, all within
	// one transaction. Short stock fails the whole sale.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	// CancelSale restores the stock of every item and marks the sale
	// cancelled. Only completed sales can be cancelled.
	CancelSale(ctx context.Context, id int64, at time.Time) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)

	ListRepairs(ctx context.Context, status string, limit int) ([]domain.Repair, error)
	CreateRepair(ctx context.Context, repair domain.Repair) (*domain.Repair, error)
	GetRepairByID(ctx context.Context, id int64) (*domain.Repair, error)
	UpdateRepair(ctx context.Context, repair domain.Repair) (*domain.Repair, error)
	DeleteRepair(ctx context.Context, id int64) error

	// OpenCashSession inserts a new open session. The store guarantees at
	// most one session with closed_at = NULL and returns ErrConflict when
	// one is already open.
	OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	// CloseCashSession computes the expected amount (opening float plus
	// completed cash sales since opening) and the signed difference, and
	// persists them together with the closing amount.
	CloseCashSession(ctx context.Context, id int64, closingCents int64, notes string, closedAt time.Time) (*domain.CashSession, error)
	GetCurrentCashSession(ctx context.Context) (*domain.CashSession, error)
	GetCashSessionByID(ctx context.Context, id int64) (*domain.CashSession, error)
	ListCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error)

	GetDashboardSummary(ctx context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	// CreateFirstAdmin inserts the admin account only when no admin exists
	// yet; a second call returns ErrConflict.
	CreateFirstAdmin(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserRole(ctx context.Context, username string, role string) error
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
