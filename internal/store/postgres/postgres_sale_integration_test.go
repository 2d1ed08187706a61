package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"konterhp/backend/internal/domain"
	"konterhp/backend/internal/store"
)

func TestCreateAndCancelSaleRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("KONTERHP_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KONTERHP_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	sku := fmt.Sprintf("ACC-IT-%d", stamp)
	phone := fmt.Sprintf("08-it-%d", stamp)

	product, err := s.CreateProduct(ctx, domain.Product{
		SKU:            sku,
		Name:           "Kabel Integrasi",
		Category:       domain.CategoryAccessory,
		PriceCents:     25_000,
		Stock:          10,
		AlertThreshold: 2,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	customer, err := s.CreateCustomer(ctx, domain.Customer{Phone: phone, Name: "Pelanggan Integrasi"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_id = $1`, customer.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customer.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	sale, err := s.CreateSale(ctx, domain.Sale{
		CustomerID:    &customer.ID,
		DiscountCents: 5_000,
		PaymentMethod: "cash",
		CreatedBy:     "it-test",
		Items: []domain.SaleItem{
			{ProductID: product.ID, Qty: 3},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalCents != 3*25_000-5_000 {
		t.Fatalf("expected total %d, got %d", 3*25_000-5_000, sale.TotalCents)
	}

	got, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", got.Stock)
	}

	gotCustomer, err := s.GetCustomerByID(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if gotCustomer.TotalSpentCents != sale.TotalCents {
		t.Fatalf("expected total spent %d, got %d", sale.TotalCents, gotCustomer.TotalSpentCents)
	}

	if _, err := s.CancelSale(ctx, sale.ID, time.Now().UTC()); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	got, err = s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got.Stock)
	}

	if _, err := s.CancelSale(ctx, sale.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second cancel, got %v", err)
	}
}
