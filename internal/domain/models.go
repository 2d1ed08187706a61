package domain

import "time"

type Product struct {
	ID             int64     `json:"id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	PriceCents     int64     `json:"price_cents"`
	Stock          int       `json:"stock"`
	AlertThreshold int       `json:"alert_threshold"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// LowStock reports whether the product is at or below its alert threshold.
func (p Product) LowStock() bool {
	return p.Stock <= p.AlertThreshold
}

type ProductCreateRequest struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	PriceCents     int64  `json:"price_cents"`
	Stock          int    `json:"stock"`
	AlertThreshold int    `json:"alert_threshold"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	Stock          *int    `json:"stock,omitempty"`
	AlertThreshold *int    `json:"alert_threshold,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type Customer struct {
	ID              int64     `json:"id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name"`
	TotalSpentCents int64     `json:"total_spent_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type CustomerUpdateRequest struct {
	Phone *string `json:"phone,omitempty"`
	Name  *string `json:"name,omitempty"`
}

type SaleItem struct {
	ID             int64 `json:"id"`
	SaleID         int64 `json:"sale_id"`
	ProductID      int64 `json:"product_id"`
	Qty            int   `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	SubtotalCents  int64 `json:"subtotal_cents"`
}

type Sale struct {
	ID            int64      `json:"id"`
	CustomerID    *int64     `json:"customer_id,omitempty"`
	TotalCents    int64      `json:"total_cents"`
	DiscountCents int64      `json:"discount_cents"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	Items         []SaleItem `json:"items,omitempty"`
}

type SaleItemRequest struct {
	ProductID      int64 `json:"product_id"`
	Qty            int   `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID    *int64            `json:"customer_id,omitempty"`
	Items         []SaleItemRequest `json:"items"`
	DiscountCents int64             `json:"discount_cents"`
	PaymentMethod string            `json:"payment_method"`
}

type Repair struct {
	ID         int64     `json:"id"`
	CustomerID *int64    `json:"customer_id,omitempty"`
	Device     string    `json:"device"`
	Issue      string    `json:"issue"`
	Status     string    `json:"status"`
	CostCents  int64     `json:"cost_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RepairCreateRequest struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
	Device     string `json:"device"`
	Issue      string `json:"issue"`
	CostCents  int64  `json:"cost_cents"`
}

type RepairUpdateRequest struct {
	Device    *string `json:"device,omitempty"`
	Issue     *string `json:"issue,omitempty"`
	Status    *string `json:"status,omitempty"`
	CostCents *int64  `json:"cost_cents,omitempty"`
}

type CashSession struct {
	ID              int64      `json:"id"`
	OpenedBy        string     `json:"opened_by"`
	OpeningCents    int64      `json:"opening_cents"`
	Notes           string     `json:"notes,omitempty"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosingCents    *int64     `json:"closing_cents,omitempty"`
	ExpectedCents   *int64     `json:"expected_cents,omitempty"`
	DifferenceCents *int64     `json:"difference_cents,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s CashSession) Open() bool {
	return s.ClosedAt == nil
}

type CashSessionOpenRequest struct {
	OpeningCents int64  `json:"opening_cents"`
	Notes        string `json:"notes,omitempty"`
}

type CashSessionCloseRequest struct {
	ClosingCents int64  `json:"closing_cents"`
	Notes        string `json:"notes,omitempty"`
}

type RepairStatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type DashboardSummary struct {
	TodaySalesCount      int64               `json:"today_sales_count"`
	TodaySalesTotalCents int64               `json:"today_sales_total_cents"`
	RepairsByStatus      []RepairStatusCount `json:"repairs_by_status"`
	LowStockCount        int64               `json:"low_stock_count"`
	ActiveProductCount   int64               `json:"active_product_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type SetupAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RoleAssignRequest struct {
	Role string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	RepairStatusReceived   = "received"
	RepairStatusInProgress = "in_progress"
	RepairStatusReady      = "ready"
	RepairStatusDelivered  = "delivered"
	RepairStatusCancelled  = "cancelled"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleAgent   = "agent"
)

const (
	CategoryPhone     = "phone"
	CategoryAccessory = "accessory"
	CategoryComponent = "component"
)
