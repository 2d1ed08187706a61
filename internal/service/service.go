package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"konterhp/backend/internal/cache"
	"konterhp/backend/internal/domain"
	"konterhp/backend/internal/store"
	"konterhp/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	dashCache    cache.DashboardCache
	dashboardTTL time.Duration
}

func New(repo store.Repository, dashCache cache.DashboardCache, dashboardTTL time.Duration) *Service {
	if dashCache == nil {
		dashCache = cache.NoopDashboardCache{}
	}
	if dashboardTTL < time.Second {
		dashboardTTL = 30 * time.Second
	}

	return &Service{
		repo:         repo,
		dashCache:    dashCache,
		dashboardTTL: dashboardTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, lowStockOnly)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if !isSupportedCategory(req.Category) {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 1 || req.Stock < 0 || req.AlertThreshold < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		SKU:            req.SKU,
		Name:           req.Name,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		Stock:          req.Stock,
		AlertThreshold: req.AlertThreshold,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", fmt.Sprintf("%d", created.ID), fmt.Sprintf("sku=%s,price=%d,stock=%d", created.SKU, created.PriceCents, created.Stock))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if !isSupportedCategory(category) {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.AlertThreshold != nil {
		if *req.AlertThreshold < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.AlertThreshold = *req.AlertThreshold
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", fmt.Sprintf("%d", saved.ID), fmt.Sprintf("sku=%s,price=%d,stock=%d,active=%t", saved.SKU, saved.PriceCents, saved.Stock, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)
	if req.Phone == "" || req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Phone:     req.Phone,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", fmt.Sprintf("%d", created.ID), fmt.Sprintf("phone=%s", created.Phone))
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Phone = phone
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Name = name
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", fmt.Sprintf("%d", saved.ID), fmt.Sprintf("phone=%s", saved.Phone))
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.DiscountCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID < 1 || item.Qty < 1 || item.UnitPriceCents < 0 {
			return domain.Sale{}, store.ErrInvalidInput
		}
		items = append(items, domain.SaleItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		CustomerID:    req.CustomerID,
		DiscountCents: req.DiscountCents,
		PaymentMethod: req.PaymentMethod,
		CreatedBy:     actor.Username,
		CreatedAt:     time.Now().UTC(),
		Items:         items,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", fmt.Sprintf("%d", created.ID), fmt.Sprintf("total=%d,method=%s,items=%d", created.TotalCents, created.PaymentMethod, len(created.Items)))
	return *created, nil
}

// CancelSale restores stock for every item. The customer's running total
// keeps the original sale amount.
func (s *Service) CancelSale(ctx context.Context, id int64) (domain.Sale, error) {
	cancelled, err := s.repo.CancelSale(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_cancel", "sale", fmt.Sprintf("%d", cancelled.ID), fmt.Sprintf("total=%d", cancelled.TotalCents))
	return *cancelled, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) ListRepairs(ctx context.Context, status string, limit int) ([]domain.Repair, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !isSupportedRepairStatus(status) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListRepairs(ctx, status, limit)
}

func (s *Service) CreateRepair(ctx context.Context, req domain.RepairCreateRequest) (domain.Repair, error) {
	req.Device = strings.TrimSpace(req.Device)
	req.Issue = strings.TrimSpace(req.Issue)
	if req.Device == "" || req.CostCents < 0 {
		return domain.Repair{}, store.ErrInvalidInput
	}
	if req.CustomerID != nil {
		if _, err := s.repo.GetCustomerByID(ctx, *req.CustomerID); err != nil {
			return domain.Repair{}, err
		}
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateRepair(ctx, domain.Repair{
		CustomerID: req.CustomerID,
		Device:     req.Device,
		Issue:      req.Issue,
		Status:     domain.RepairStatusReceived,
		CostCents:  req.CostCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Repair{}, err
	}

	s.logAudit(ctx, "repair_create", "repair", fmt.Sprintf("%d", created.ID), fmt.Sprintf("device=%s", created.Device))
	return *created, nil
}

func (s *Service) GetRepair(ctx context.Context, id int64) (domain.Repair, error) {
	repair, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return domain.Repair{}, err
	}
	return *repair, nil
}

func (s *Service) UpdateRepair(ctx context.Context, id int64, req domain.RepairUpdateRequest) (domain.Repair, error) {
	existing, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return domain.Repair{}, err
	}

	updated := *existing
	if req.Device != nil {
		device := strings.TrimSpace(*req.Device)
		if device == "" {
			return domain.Repair{}, store.ErrInvalidInput
		}
		updated.Device = device
	}
	if req.Issue != nil {
		updated.Issue = strings.TrimSpace(*req.Issue)
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if !isSupportedRepairStatus(status) {
			return domain.Repair{}, store.ErrInvalidInput
		}
		updated.Status = status
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Repair{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}

	saved, err := s.repo.UpdateRepair(ctx, updated)
	if err != nil {
		return domain.Repair{}, err
	}

	s.logAudit(ctx, "repair_update", "repair", fmt.Sprintf("%d", saved.ID), fmt.Sprintf("status=%s", saved.Status))
	return *saved, nil
}

func (s *Service) DeleteRepair(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRepair(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "repair_delete", "repair", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) OpenCashSession(ctx context.Context, req domain.CashSessionOpenRequest) (domain.CashSession, error) {
	if req.OpeningCents < 0 {
		return domain.CashSession{}, store.ErrInvalidInput
	}

	actor, _ := ActorFromContext(ctx)
	opened, err := s.repo.OpenCashSession(ctx, domain.CashSession{
		OpenedBy:     actor.Username,
		OpeningCents: req.OpeningCents,
		Notes:        strings.TrimSpace(req.Notes),
		OpenedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	s.logAudit(ctx, "cash_session_open", "cash_session", fmt.Sprintf("%d", opened.ID), fmt.Sprintf("opening=%d", opened.OpeningCents))
	return *opened, nil
}

func (s *Service) CloseCashSession(ctx context.Context, id int64, req domain.CashSessionCloseRequest) (domain.CashSession, error) {
	if req.ClosingCents < 0 {
		return domain.CashSession{}, store.ErrInvalidInput
	}

	closed, err := s.repo.CloseCashSession(ctx, id, req.ClosingCents, strings.TrimSpace(req.Notes), time.Now().UTC())
	if err != nil {
		return domain.CashSession{}, err
	}

	s.logAudit(ctx, "cash_session_close", "cash_session", fmt.Sprintf("%d", closed.ID), fmt.Sprintf("closing=%d,expected=%d,difference=%d", req.ClosingCents, derefInt64(closed.ExpectedCents), derefInt64(closed.DifferenceCents)))
	return *closed, nil
}

func (s *Service) GetCurrentCashSession(ctx context.Context) (domain.CashSession, error) {
	session, err := s.repo.GetCurrentCashSession(ctx)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) GetCashSession(ctx context.Context, id int64) (domain.CashSession, error) {
	session, err := s.repo.GetCashSessionByID(ctx, id)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) ListCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	return s.repo.ListCashSessions(ctx, limit)
}

// DashboardSummary aggregates today's numbers, with a short-lived cache in
// front of the store.
func (s *Service) DashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	key := "dashboard:" + from.Format("2006-01-02")

	if cached, hit, err := s.dashCache.Get(ctx, key); err != nil {
		log.Printf("[dashboard] WARN: cache read failed: %v", err)
	} else if hit {
		return *cached, nil
	}

	summary, err := s.repo.GetDashboardSummary(ctx, from, to)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	if err := s.dashCache.Set(ctx, key, &summary, s.dashboardTTL); err != nil {
		log.Printf("[dashboard] WARN: cache write failed: %v", err)
	}

	return summary, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func derefInt64(val *int64) int64 {
	if val == nil {
		return 0
	}
	return *val
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "transfer":
		return true
	}
	return false
}

func isSupportedCategory(category string) bool {
	switch category {
	case domain.CategoryPhone, domain.CategoryAccessory, domain.CategoryComponent:
		return true
	}
	return false
}

func isSupportedRepairStatus(status string) bool {
	switch status {
	case domain.RepairStatusReceived, domain.RepairStatusInProgress, domain.RepairStatusReady,
		domain.RepairStatusDelivered, domain.RepairStatusCancelled:
		return true
	}
	return false
}
