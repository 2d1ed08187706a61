package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"konterhp/backend/internal/domain"
	"konterhp/backend/internal/store"
	"konterhp/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	query := `
		SELECT id, sku, name, category, price_cents, stock, alert_threshold, active, created_at
		FROM products
		WHERE active = true
	`
	if lowStockOnly {
		query += ` AND stock <= alert_threshold`
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.AlertThreshold, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.Stock < 0 || product.AlertThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, category, price_cents, stock, alert_threshold, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.Stock,
		product.AlertThreshold, product.Active, product.CreatedAt).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, price_cents, stock, alert_threshold, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.SKU, &product.Name, &product.Category, &product.PriceCents,
		&product.Stock, &product.AlertThreshold, &product.Active, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.Stock < 0 || product.AlertThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, stock = $5, alert_threshold = $6, active = $7
		WHERE id = $1
		RETURNING id, sku, name, category, price_cents, stock, alert_threshold, active, created_at
	`, product.ID, product.Name, product.Category, product.PriceCents, product.Stock,
		product.AlertThreshold, product.Active).Scan(
		&product.ID, &product.SKU, &product.Name, &product.Category, &product.PriceCents,
		&product.Stock, &product.AlertThreshold, &product.Active, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, name, total_spent_cents, created_at
		FROM customers
		ORDER BY name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Phone, &c.Name, &c.TotalSpentCents, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	customer.TotalSpentCents = 0
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (phone, name, total_spent_cents, created_at)
		VALUES ($1,$2,0,$3)
		RETURNING id
	`, customer.Phone, customer.Name, customer.CreatedAt).Scan(&customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, name, total_spent_cents, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Phone, &customer.Name, &customer.TotalSpentCents, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET phone = $2, name = $3
		WHERE id = $1
		RETURNING id, phone, name, total_spent_cents, created_at
	`, customer.ID, customer.Phone, customer.Name).Scan(
		&customer.ID, &customer.Phone, &customer.Name, &customer.TotalSpentCents, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.CustomerID != nil {
		var customerID int64
		err := pgTx.QueryRowContext(ctx, `
			SELECT id FROM customers WHERE id = $1 FOR UPDATE
		`, *sale.CustomerID).Scan(&customerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	totalCents := int64(0)
	resolved := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}

		var priceCents int64
		var stock int
		err := pgTx.QueryRowContext(ctx, `
			SELECT price_cents, stock
			FROM products
			WHERE id = $1 AND active = true
			FOR UPDATE
		`, item.ProductID).Scan(&priceCents, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}

		unitPrice := item.UnitPriceCents
		if unitPrice < 1 {
			unitPrice = priceCents
		}
		if stock < item.Qty {
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

	for _, item := range resolved {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1
			WHERE id = $2 AND stock >= $1
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	sale.TotalCents = totalCents - sale.DiscountCents
	sale.Status = domain.SaleStatusCompleted
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (customer_id, total_cents, discount_cents, payment_method, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, nullInt64(sale.CustomerID), sale.TotalCents, sale.DiscountCents, sale.PaymentMethod,
		sale.Status, sale.CreatedBy, sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		return nil, err
	}

	for i := range resolved {
		resolved[i].SaleID = sale.ID
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, qty, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, resolved[i].SaleID, resolved[i].ProductID, resolved[i].Qty,
			resolved[i].UnitPriceCents, resolved[i].SubtotalCents).Scan(&resolved[i].ID)
		if err != nil {
			return nil, err
		}
	}
	sale.Items = resolved

	if sale.CustomerID != nil {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE customers
			SET total_spent_cents = total_spent_cents + $1
			WHERE id = $2
		`, sale.TotalCents, *sale.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) CancelSale(ctx context.Context, id int64, at time.Time) (*domain.Sale, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sale domain.Sale
	var customerID sql.NullInt64
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, customer_id, total_cents, discount_cents, payment_method, status, created_by, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&sale.ID, &customerID, &sale.TotalCents, &sale.DiscountCents,
		&sale.PaymentMethod, &sale.Status, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidState
	}
	if customerID.Valid {
		cid := customerID.Int64
		sale.CustomerID = &cid
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT id, sale_id, product_id, qty, unit_price_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	items := make([]domain.SaleItem, 0, 8)
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, item := range items {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1
			WHERE id = $2
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.SaleStatusCancelled, at, domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &at
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.Items = items
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullInt64
	var cancelledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, total_cents, discount_cents, payment_method, status, created_by, created_at, cancelled_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &customerID, &sale.TotalCents, &sale.DiscountCents,
		&sale.PaymentMethod, &sale.Status, &sale.CreatedBy, &sale.CreatedAt, &cancelledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if customerID.Valid {
		cid := customerID.Int64
		sale.CustomerID = &cid
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, qty, unit_price_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, total_cents, discount_cents, payment_method, status, created_by, created_at, cancelled_at
		FROM sales
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var customerID sql.NullInt64
		var cancelledAt sql.NullTime
		if err := rows.Scan(&sale.ID, &customerID, &sale.TotalCents, &sale.DiscountCents,
			&sale.PaymentMethod, &sale.Status, &sale.CreatedBy, &sale.CreatedAt, &cancelledAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		if customerID.Valid {
			cid := customerID.Int64
			sale.CustomerID = &cid
		}
		if cancelledAt.Valid {
			at := cancelledAt.Time.UTC()
			sale.CancelledAt = &at
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

func (s *Store) ListRepairs(ctx context.Context, status string, limit int) ([]domain.Repair, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, device, issue, status, cost_cents, created_at, updated_at
		FROM repairs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	repairs := make([]domain.Repair, 0, limit)
	for rows.Next() {
		repair, err := scanRepair(rows)
		if err != nil {
			return nil, err
		}
		repairs = append(repairs, repair)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return repairs, nil
}

func (s *Store) CreateRepair(ctx context.Context, repair domain.Repair) (*domain.Repair, error) {
	if repair.Device == "" || repair.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if repair.Status == "" {
		repair.Status = domain.RepairStatusReceived
	}
	now := time.Now().UTC()
	if repair.CreatedAt.IsZero() {
		repair.CreatedAt = now
	}
	repair.UpdatedAt = repair.CreatedAt

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO repairs (customer_id, device, issue, status, cost_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, nullInt64(repair.CustomerID), repair.Device, repair.Issue, repair.Status,
		repair.CostCents, repair.CreatedAt, repair.UpdatedAt).Scan(&repair.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := repair
	return &created, nil
}

func (s *Store) GetRepairByID(ctx context.Context, id int64) (*domain.Repair, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, device, issue, status, cost_cents, created_at, updated_at
		FROM repairs
		WHERE id = $1
	`, id)
	repair, err := scanRepair(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &repair, nil
}

func (s *Store) UpdateRepair(ctx context.Context, repair domain.Repair) (*domain.Repair, error) {
	if repair.Device == "" || repair.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	repair.UpdatedAt = time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		UPDATE repairs
		SET device = $2, issue = $3, status = $4, cost_cents = $5, updated_at = $6
		WHERE id = $1
		RETURNING id, customer_id, device, issue, status, cost_cents, created_at, updated_at
	`, repair.ID, repair.Device, repair.Issue, repair.Status, repair.CostCents, repair.UpdatedAt)
	updated, err := scanRepair(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteRepair(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repairs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if session.OpeningCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.ClosingCents = nil
	session.ExpectedCents = nil
	session.DifferenceCents = nil
	session.ClosedAt = nil

	// The insert only lands when no session is currently open. A partial
	// unique index on (closed_at IS NULL) backstops concurrent openers.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cash_sessions (opened_by, opening_cents, notes, opened_at)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (SELECT 1 FROM cash_sessions WHERE closed_at IS NULL)
		RETURNING id
	`, session.OpenedBy, session.OpeningCents, session.Notes, session.OpenedAt).Scan(&session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := session
	return &created, nil
}

func (s *Store) CloseCashSession(ctx context.Context, id int64, closingCents int64, notes string, closedAt time.Time) (*domain.CashSession, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var session domain.CashSession
	var closedAtNull sql.NullTime
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, opened_by, opening_cents, notes, opened_at, closed_at
		FROM cash_sessions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&session.ID, &session.OpenedBy, &session.OpeningCents, &session.Notes,
		&session.OpenedAt, &closedAtNull)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closedAtNull.Valid {
		return nil, store.ErrInvalidState
	}
	session.OpenedAt = session.OpenedAt.UTC()

	var cashSalesTotal int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE payment_method = 'cash' AND status = $1 AND created_at >= $2
	`, domain.SaleStatusCompleted, session.OpenedAt).Scan(&cashSalesTotal)
	if err != nil {
		return nil, err
	}

	expected := session.OpeningCents + cashSalesTotal
	difference := closingCents - expected
	if notes == "" {
		notes = session.Notes
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET closing_cents = $2, expected_cents = $3, difference_cents = $4, notes = $5, closed_at = $6
		WHERE id = $1
	`, id, closingCents, expected, difference, notes, closedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	session.ClosingCents = &closingCents
	session.ExpectedCents = &expected
	session.DifferenceCents = &difference
	session.Notes = notes
	session.ClosedAt = &closedAt
	return &session, nil
}

func (s *Store) GetCurrentCashSession(ctx context.Context) (*domain.CashSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, opened_by, opening_cents, notes, opened_at, closing_cents, expected_cents, difference_cents, closed_at
		FROM cash_sessions
		WHERE closed_at IS NULL
		ORDER BY opened_at DESC
		LIMIT 1
	`)
	session, err := scanCashSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetCashSessionByID(ctx context.Context, id int64) (*domain.CashSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, opened_by, opening_cents, notes, opened_at, closing_cents, expected_cents, difference_cents, closed_at
		FROM cash_sessions
		WHERE id = $1
	`, id)
	session, err := scanCashSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) ListCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opened_by, opening_cents, notes, opened_at, closing_cents, expected_cents, difference_cents, closed_at
		FROM cash_sessions
		ORDER BY opened_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, limit)
	for rows.Next() {
		session, err := scanCashSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (s *Store) GetDashboardSummary(ctx context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	var summary domain.DashboardSummary

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`, domain.SaleStatusCompleted, from, to).Scan(&summary.TodaySalesCount, &summary.TodaySalesTotalCents)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	statusRows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM repairs
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var entry domain.RepairStatusCount
		if err := statusRows.Scan(&entry.Status, &entry.Count); err != nil {
			return domain.DashboardSummary{}, err
		}
		summary.RepairsByStatus = append(summary.RepairsByStatus, entry)
	}
	if err := statusRows.Err(); err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE stock <= alert_threshold)
		FROM products
		WHERE active = true
	`).Scan(&summary.ActiveProductCount, &summary.LowStockCount)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	return summary, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) CreateFirstAdmin(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	var username string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		SELECT $1, $2, $3, true, $4
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE role = $3)
		RETURNING username
	`, user.Username, user.Password, domain.RoleAdmin, user.CreatedAt).Scan(&username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, username string, role string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $2 WHERE username = $1
	`, username, role)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepair(row rowScanner) (domain.Repair, error) {
	var repair domain.Repair
	var customerID sql.NullInt64
	err := row.Scan(&repair.ID, &customerID, &repair.Device, &repair.Issue,
		&repair.Status, &repair.CostCents, &repair.CreatedAt, &repair.UpdatedAt)
	if err != nil {
		return domain.Repair{}, err
	}
	repair.CreatedAt = repair.CreatedAt.UTC()
	repair.UpdatedAt = repair.UpdatedAt.UTC()
	if customerID.Valid {
		cid := customerID.Int64
		repair.CustomerID = &cid
	}
	return repair, nil
}

func scanCashSession(row rowScanner) (domain.CashSession, error) {
	var session domain.CashSession
	var closingCents, expectedCents, differenceCents sql.NullInt64
	var closedAt sql.NullTime
	err := row.Scan(&session.ID, &session.OpenedBy, &session.OpeningCents, &session.Notes,
		&session.OpenedAt, &closingCents, &expectedCents, &differenceCents, &closedAt)
	if err != nil {
		return domain.CashSession{}, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	if closingCents.Valid {
		v := closingCents.Int64
		session.ClosingCents = &v
	}
	if expectedCents.Valid {
		v := expectedCents.Int64
		session.ExpectedCents = &v
	}
	if differenceCents.Valid {
		v := differenceCents.Int64
		session.DifferenceCents = &v
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return session, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
