package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"resalewallet/backend/internal/domain"
	"resalewallet/backend/internal/store"
)

func TestRecordSaleTransactionUpdatesStock(t *testing.T) {
	databaseURL := os.Getenv("RESALEWALLET_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RESALEWALLET_TEST_DATABASE_URL to run postgres integration test")
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
	userID := fmt.Sprintf("usr-sale-it-%d", stamp)
	productID := fmt.Sprintf("prd-sale-it-%d", stamp)
	variantID := fmt.Sprintf("var-sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE user_id = $1`, userID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, variantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password, created_at)
		VALUES ($1, $2, 'x', now())
	`, userID, fmt.Sprintf("sale-it-%d@example.test", stamp)); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, user_id, name, brand, category, purchase_price_cents, purchased_at, status, created_at, updated_at)
		VALUES ($1, $2, 'Integration Sneaker', 'TestBrand', 'Shoes', 4500, now(), 'active', now(), now())
	`, productID, userID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, size, total_qty, sold_qty, created_at, updated_at)
		VALUES ($1, $2, '42', 2, 0, now(), now())
	`, variantID, productID); err != nil {
		t.Fatalf("insert variant: %v", err)
	}

	created, err := s.RecordSale(ctx, domain.Sale{
		UserID:     userID,
		ProductID:  productID,
		VariantID:  variantID,
		Qty:        2,
		PriceCents: 8500,
		SoldAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated sale id")
	}

	var soldQty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT sold_qty FROM variants WHERE id = $1
	`, variantID).Scan(&soldQty); err != nil {
		t.Fatalf("query variant: %v", err)
	}
	if soldQty != 2 {
		t.Fatalf("expected sold_qty 2 after sale, got %d", soldQty)
	}

	_, err = s.RecordSale(ctx, domain.Sale{
		UserID:     userID,
		ProductID:  productID,
		VariantID:  variantID,
		Qty:        1,
		PriceCents: 8500,
		SoldAt:     time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on sold-out variant, got %v", err)
	}

	var saleCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sales WHERE user_id = $1
	`, userID).Scan(&saleCount); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 1 {
		t.Fatalf("expected rejected sale to leave no row, got %d sales", saleCount)
	}
}
