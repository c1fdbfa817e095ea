package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"resalewallet/backend/internal/domain"
	"resalewallet/backend/internal/store"
	"resalewallet/backend/internal/xid"
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

func (s *Store) ListProducts(ctx context.Context, userID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, brand, category, purchase_price_cents, purchased_at,
		       COALESCE(image_url, ''), COALESCE(notes, ''), status, created_at, updated_at
		FROM products
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Brand, &p.Category, &p.PurchasePriceCents,
			&p.PurchasedAt, &p.ImageURL, &p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Variants = []domain.Variant{}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variantRows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.product_id, v.size, v.total_qty, v.sold_qty, v.created_at, v.updated_at
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE p.user_id = $1
		ORDER BY v.created_at, v.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer variantRows.Close()

	for variantRows.Next() {
		var v domain.Variant
		if err := variantRows.Scan(&v.ID, &v.ProductID, &v.Size, &v.TotalQty, &v.SoldQty, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	if err := variantRows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, userID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, brand, category, purchase_price_cents, purchased_at,
		       COALESCE(image_url, ''), COALESCE(notes, ''), status, created_at, updated_at
		FROM products
		WHERE id = $1 AND user_id = $2
	`, productID, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.Brand, &p.Category, &p.PurchasePriceCents,
		&p.PurchasedAt, &p.ImageURL, &p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, size, total_qty, sold_qty, created_at, updated_at
		FROM variants
		WHERE product_id = $1
		ORDER BY created_at, id
	`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.Variants = []domain.Variant{}
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.TotalQty, &v.SoldQty, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		p.Variants = append(p.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Status = domain.ProductStatusActive

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (id, user_id, name, brand, category, purchase_price_cents, purchased_at, image_url, notes, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING created_at, updated_at
	`, product.ID, product.UserID, product.Name, product.Brand, product.Category, product.PurchasePriceCents,
		product.PurchasedAt, nullIfEmpty(product.ImageURL), nullIfEmpty(product.Notes), product.Status,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for i := range product.Variants {
		variant := &product.Variants[i]
		if variant.ID == "" {
			variant.ID = xid.New("var")
		}
		variant.ProductID = product.ID
		variant.SoldQty = 0
		err = tx.QueryRowContext(ctx, `
			INSERT INTO variants (id, product_id, size, total_qty, sold_qty, created_at, updated_at)
			VALUES ($1,$2,$3,$4,0,now(),now())
			RETURNING created_at, updated_at
		`, variant.ID, product.ID, variant.Size, variant.TotalQty).Scan(&variant.CreatedAt, &variant.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, brand = $4, category = $5, purchase_price_cents = $6, purchased_at = $7,
		    image_url = $8, notes = $9, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, product.ID, product.UserID, product.Name, product.Brand, product.Category,
		product.PurchasePriceCents, product.PurchasedAt, nullIfEmpty(product.ImageURL), nullIfEmpty(product.Notes))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.UserID, product.ID)
}

func (s *Store) RemoveProduct(ctx context.Context, userID string, productID string) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET status = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status <> $3
	`, productID, userID, domain.ProductStatusRemoved)
	if err != nil {
		return nil, err
	}
	if _, err := res.RowsAffected(); err != nil {
		return nil, err
	}

	// Zero rows affected is fine: removing an already-removed product
	// is a no-op, but the product must at least exist.
	return s.GetProduct(ctx, userID, productID)
}

func (s *Store) GetVariant(ctx context.Context, userID string, variantID string) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT v.id, v.product_id, v.size, v.total_qty, v.sold_qty, v.created_at, v.updated_at
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.user_id = $2
	`, variantID, userID).Scan(&v.ID, &v.ProductID, &v.Size, &v.TotalQty, &v.SoldQty, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) AddVariant(ctx context.Context, userID string, variant domain.Variant) (*domain.Variant, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM products WHERE id = $1 AND user_id = $2
	`, variant.ProductID, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.ProductStatusActive {
		return nil, store.ErrConflict
	}

	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	variant.SoldQty = 0
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO variants (id, product_id, size, total_qty, sold_qty, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,now(),now())
		RETURNING created_at, updated_at
	`, variant.ID, variant.ProductID, variant.Size, variant.TotalQty).Scan(&variant.CreatedAt, &variant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := variant
	return &created, nil
}

func (s *Store) AddStock(ctx context.Context, userID string, variantID string, qty int) (*domain.Variant, error) {
	if qty < 1 {
		return nil, store.ErrValidation
	}

	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		UPDATE variants v
		SET total_qty = v.total_qty + $3, updated_at = now()
		FROM products p
		WHERE v.id = $1 AND p.id = v.product_id AND p.user_id = $2
		RETURNING v.id, v.product_id, v.size, v.total_qty, v.sold_qty, v.created_at, v.updated_at
	`, variantID, userID, qty).Scan(&v.ID, &v.ProductID, &v.Size, &v.TotalQty, &v.SoldQty, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) SetVariantTotal(ctx context.Context, userID string, variantID string, totalQty int) (*domain.Variant, error) {
	if totalQty < 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	v, err := lockVariant(ctx, tx, userID, variantID)
	if err != nil {
		return nil, err
	}
	if totalQty < v.SoldQty {
		return nil, fmt.Errorf("variant %s: total %d below sold %d: %w", variantID, totalQty, v.SoldQty, store.ErrConflict)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE variants
		SET total_qty = $2, updated_at = now()
		WHERE id = $1
		RETURNING total_qty, updated_at
	`, variantID, totalQty).Scan(&v.TotalQty, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) DeleteVariant(ctx context.Context, userID string, variantID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	v, err := lockVariant(ctx, tx, userID, variantID)
	if err != nil {
		return err
	}
	if v.SoldQty > 0 {
		return fmt.Errorf("variant %s: %d units sold: %w", variantID, v.SoldQty, store.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, variantID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) RecordSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	v, err := lockVariant(ctx, tx, sale.UserID, sale.VariantID)
	if err != nil {
		return nil, err
	}
	if v.ProductID != sale.ProductID {
		return nil, store.ErrNotFound
	}

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM products WHERE id = $1`, v.ProductID).Scan(&status); err != nil {
		return nil, err
	}
	if status != domain.ProductStatusActive {
		return nil, store.ErrConflict
	}

	if v.AvailableQty() < sale.Qty {
		return nil, store.ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE variants
		SET sold_qty = sold_qty + $2, updated_at = now()
		WHERE id = $1
	`, sale.VariantID, sale.Qty); err != nil {
		return nil, err
	}

	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (id, user_id, product_id, variant_id, qty, price_cents, notes, sold_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		RETURNING created_at
	`, sale.ID, sale.UserID, sale.ProductID, sale.VariantID, sale.Qty, sale.PriceCents, nullIfEmpty(sale.Notes), sale.SoldAt).Scan(&sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, userID string) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, user_id, product_id, variant_id, qty, price_cents, COALESCE(notes, ''), sold_at, created_at
		FROM sales
		WHERE user_id = $1
		ORDER BY sold_at DESC, id
	`, userID)
}

func (s *Store) ListSalesBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, user_id, product_id, variant_id, qty, price_cents, COALESCE(notes, ''), sold_at, created_at
		FROM sales
		WHERE user_id = $1 AND sold_at >= $2 AND sold_at < $3
		ORDER BY sold_at DESC, id
	`, userID, from, to)
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.UserID, &sale.ProductID, &sale.VariantID,
			&sale.Qty, &sale.PriceCents, &sale.Notes, &sale.SoldAt, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	var settings domain.UserSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, starting_budget_cents, updated_at
		FROM user_settings
		WHERE user_id = $1
	`, userID).Scan(&settings.UserID, &settings.StartingBudgetCents, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) PutSettings(ctx context.Context, settings domain.UserSettings) (*domain.UserSettings, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_settings (user_id, starting_budget_cents, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (user_id) DO UPDATE SET starting_budget_cents = $2, updated_at = now()
		RETURNING updated_at
	`, settings.UserID, settings.StartingBudgetCents).Scan(&settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	dup := settings
	return &dup, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING created_at
	`, user.ID, user.Email, user.Password).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE id = $1
	`, userID, password)
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

// lockVariant fetches a variant row FOR UPDATE inside tx so stock
// checks and the following write see the same state.
func lockVariant(ctx context.Context, tx *sql.Tx, userID string, variantID string) (*domain.Variant, error) {
	var v domain.Variant
	err := tx.QueryRowContext(ctx, `
		SELECT v.id, v.product_id, v.size, v.total_qty, v.sold_qty, v.created_at, v.updated_at
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.user_id = $2
		FOR UPDATE OF v
	`, variantID, userID).Scan(&v.ID, &v.ProductID, &v.Size, &v.TotalQty, &v.SoldQty, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
