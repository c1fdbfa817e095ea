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

	"golang.org/x/crypto/bcrypt"

	"resalewallet/backend/internal/domain"
	"resalewallet/backend/internal/store"
	"resalewallet/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	variantOwner   map[string]string
	sales          map[string]domain.Sale
	settingsByUser map[string]domain.UserSettings
	usersByID      map[string]domain.UserAccount
	userIDByEmail  map[string]string
}

func New() *Store {
	return &Store{
		products:       make(map[string]domain.Product),
		variantOwner:   make(map[string]string),
		sales:          make(map[string]domain.Sale),
		settingsByUser: make(map[string]domain.UserSettings),
		usersByID:      make(map[string]domain.UserAccount),
		userIDByEmail:  make(map[string]string),
	}
}

// DemoEmail is the account NewSeeded provisions for dev/demo mode.
const DemoEmail = "demo@resalewallet.app"

// seedDemoUser builds the demo account. The password comes from
// SEED_DEMO_PASSWORD; if unset a hardcoded dev default is used with a
// warning. This account is never provisioned in production (the backend
// uses PostgreSQL when DATABASE_URL is set).
func seedDemoUser() domain.UserAccount {
	password := envOr("SEED_DEMO_PASSWORD", "demo1234")
	if os.Getenv("SEED_DEMO_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_DEMO_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return domain.UserAccount{
		ID:        xid.New("usr"),
		Email:     DemoEmail,
		Password:  string(hash),
		CreatedAt: time.Now().UTC(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store pre-filled with the demo account and a
// small second-hand catalogue so the app is usable without a database.
func NewSeeded() *Store {
	s := New()
	user := seedDemoUser()
	s.usersByID[user.ID] = user
	s.userIDByEmail[user.Email] = user.ID

	now := time.Now().UTC()
	s.settingsByUser[user.ID] = domain.UserSettings{
		UserID:              user.ID,
		StartingBudgetCents: 50000,
		UpdatedAt:           now,
	}

	daysAgo := func(n int) time.Time { return now.AddDate(0, 0, -n) }

	type seedVariant struct {
		size  string
		total int
		sold  int
	}
	type seedSale struct {
		size       string
		qty        int
		priceCents int64
		soldAt     time.Time
	}
	type seedProduct struct {
		name        string
		brand       string
		category    string
		priceCents  int64
		purchasedAt time.Time
		variants    []seedVariant
		sales       []seedSale
	}

	catalogue := []seedProduct{
		{
			name: "Nike Air Max 90", brand: "Nike", category: "Shoes",
			priceCents: 4500, purchasedAt: daysAgo(40),
			variants: []seedVariant{{"42", 1, 1}},
			sales:    []seedSale{{"42", 1, 8500, daysAgo(35)}},
		},
		{
			name: "Zara Blazer", brand: "Zara", category: "Clothing",
			priceCents: 2500, purchasedAt: daysAgo(10),
			variants: []seedVariant{{"S", 1, 0}, {"M", 1, 0}, {"L", 1, 0}},
		},
		{
			name: "H&M Hoodie", brand: "H&M", category: "Clothing",
			priceCents: 1500, purchasedAt: daysAgo(25),
			variants: []seedVariant{{"M", 2, 0}, {"L", 1, 0}},
		},
		{
			name: "Levi's Riem", brand: "Levi's", category: "Accessories",
			priceCents: 800, purchasedAt: daysAgo(35),
			variants: []seedVariant{{"One Size", 1, 1}},
			sales:    []seedSale{{"One Size", 1, 2200, daysAgo(8)}},
		},
		{
			name: "The North Face Jas", brand: "The North Face", category: "Clothing",
			priceCents: 6500, purchasedAt: daysAgo(5),
			variants: []seedVariant{{"M", 1, 1}, {"L", 1, 0}},
			sales:    []seedSale{{"M", 1, 12500, daysAgo(2)}},
		},
		{
			name: "Adidas Superstar", brand: "Adidas", category: "Shoes",
			priceCents: 3500, purchasedAt: daysAgo(27),
			variants: []seedVariant{{"40", 1, 0}, {"41", 1, 0}},
		},
	}

	for _, sp := range catalogue {
		product := domain.Product{
			ID:                 xid.New("prd"),
			UserID:             user.ID,
			Name:               sp.name,
			Brand:              sp.brand,
			Category:           sp.category,
			PurchasePriceCents: sp.priceCents,
			PurchasedAt:        sp.purchasedAt,
			Status:             domain.ProductStatusActive,
			CreatedAt:          sp.purchasedAt,
			UpdatedAt:          sp.purchasedAt,
		}
		variantBySize := make(map[string]string, len(sp.variants))
		for _, sv := range sp.variants {
			variant := domain.Variant{
				ID:        xid.New("var"),
				ProductID: product.ID,
				Size:      sv.size,
				TotalQty:  sv.total,
				SoldQty:   sv.sold,
				CreatedAt: sp.purchasedAt,
				UpdatedAt: sp.purchasedAt,
			}
			product.Variants = append(product.Variants, variant)
			variantBySize[sv.size] = variant.ID
			s.variantOwner[variant.ID] = product.ID
		}
		s.products[product.ID] = product

		for _, ss := range sp.sales {
			sale := domain.Sale{
				ID:         xid.New("sal"),
				UserID:     user.ID,
				ProductID:  product.ID,
				VariantID:  variantBySize[ss.size],
				Qty:        ss.qty,
				PriceCents: ss.priceCents,
				SoldAt:     ss.soldAt,
				CreatedAt:  ss.soldAt,
			}
			s.sales[sale.ID] = sale
		}
	}

	return s
}

func (s *Store) ListProducts(_ context.Context, userID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.UserID != userID {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, userID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists || product.UserID != userID {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Status = domain.ProductStatusActive

	for i := range product.Variants {
		variant := &product.Variants[i]
		if variant.ID == "" {
			variant.ID = xid.New("var")
		}
		variant.ProductID = product.ID
		variant.SoldQty = 0
		variant.CreatedAt = now
		variant.UpdatedAt = now
		s.variantOwner[variant.ID] = product.ID
	}

	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.ID]
	if !exists || current.UserID != product.UserID {
		return nil, store.ErrNotFound
	}

	// Metadata only; variants and status are managed through their own
	// operations.
	current.Name = product.Name
	current.Brand = product.Brand
	current.Category = product.Category
	current.PurchasePriceCents = product.PurchasePriceCents
	current.PurchasedAt = product.PurchasedAt
	current.ImageURL = product.ImageURL
	current.Notes = product.Notes
	current.UpdatedAt = time.Now().UTC()

	s.products[current.ID] = current
	updated := cloneProduct(current)
	return &updated, nil
}

func (s *Store) RemoveProduct(_ context.Context, userID string, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists || product.UserID != userID {
		return nil, store.ErrNotFound
	}

	// Idempotent: removing twice leaves the product removed.
	if product.Status != domain.ProductStatusRemoved {
		product.Status = domain.ProductStatusRemoved
		product.UpdatedAt = time.Now().UTC()
		s.products[productID] = product
	}

	removed := cloneProduct(product)
	return &removed, nil
}

func (s *Store) GetVariant(_ context.Context, userID string, variantID string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variant, _, err := s.findVariant(userID, variantID)
	if err != nil {
		return nil, err
	}
	dup := *variant
	return &dup, nil
}

func (s *Store) AddVariant(_ context.Context, userID string, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[variant.ProductID]
	if !exists || product.UserID != userID {
		return nil, store.ErrNotFound
	}
	if product.Status != domain.ProductStatusActive {
		return nil, store.ErrConflict
	}
	for _, existing := range product.Variants {
		if strings.EqualFold(existing.Size, variant.Size) {
			return nil, store.ErrConflict
		}
	}

	now := time.Now().UTC()
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	variant.SoldQty = 0
	variant.CreatedAt = now
	variant.UpdatedAt = now

	product.Variants = append(product.Variants, variant)
	s.products[product.ID] = product
	s.variantOwner[variant.ID] = product.ID

	created := variant
	return &created, nil
}

func (s *Store) AddStock(_ context.Context, userID string, variantID string, qty int) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return nil, store.ErrValidation
	}
	variant, product, err := s.findVariant(userID, variantID)
	if err != nil {
		return nil, err
	}

	variant.TotalQty += qty
	variant.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = *product

	updated := *variant
	return &updated, nil
}

func (s *Store) SetVariantTotal(_ context.Context, userID string, variantID string, totalQty int) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if totalQty < 0 {
		return nil, store.ErrValidation
	}
	variant, product, err := s.findVariant(userID, variantID)
	if err != nil {
		return nil, err
	}
	if totalQty < variant.SoldQty {
		return nil, fmt.Errorf("variant %s: total %d below sold %d: %w", variantID, totalQty, variant.SoldQty, store.ErrConflict)
	}

	variant.TotalQty = totalQty
	variant.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = *product

	updated := *variant
	return &updated, nil
}

func (s *Store) DeleteVariant(_ context.Context, userID string, variantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	variant, product, err := s.findVariant(userID, variantID)
	if err != nil {
		return err
	}
	if variant.SoldQty > 0 {
		return fmt.Errorf("variant %s: %d units sold: %w", variantID, variant.SoldQty, store.ErrConflict)
	}

	kept := product.Variants[:0]
	for _, v := range product.Variants {
		if v.ID != variantID {
			kept = append(kept, v)
		}
	}
	product.Variants = kept
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = *product
	delete(s.variantOwner, variantID)
	return nil
}

func (s *Store) RecordSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	variant, product, err := s.findVariant(sale.UserID, sale.VariantID)
	if err != nil {
		return nil, err
	}
	if product.ID != sale.ProductID {
		return nil, store.ErrNotFound
	}
	if product.Status != domain.ProductStatusActive {
		return nil, store.ErrConflict
	}

	// Stock check and decrement happen under the same lock so a failed
	// sale never leaves partial state behind.
	if variant.AvailableQty() < sale.Qty {
		return nil, store.ErrInsufficientStock
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = now
	}
	sale.CreatedAt = now

	variant.SoldQty += sale.Qty
	variant.UpdatedAt = now
	s.products[product.ID] = *product
	s.sales[sale.ID] = sale

	created := sale
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, userID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.UserID != userID {
			continue
		}
		sales = append(sales, sale)
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SoldAt.Equal(b.SoldAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.SoldAt.After(b.SoldAt) {
			return -1
		}
		return 1
	})

	return sales, nil
}

func (s *Store) ListSalesBetween(_ context.Context, userID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	all, err := s.ListSales(context.Background(), userID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Sale, 0, len(all))
	for _, sale := range all {
		at := sale.SoldAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		result = append(result, sale)
	}
	return result, nil
}

func (s *Store) GetSettings(_ context.Context, userID string) (*domain.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, exists := s.settingsByUser[userID]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := settings
	return &dup, nil
}

func (s *Store) PutSettings(_ context.Context, settings domain.UserSettings) (*domain.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.settingsByUser[settings.UserID] = settings
	dup := settings
	return &dup, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.userIDByEmail[email]; exists {
		return nil, store.ErrConflict
	}

	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.usersByID[user.ID] = user
	s.userIDByEmail[email] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.userIDByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	dup := user
	return &dup, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[userID]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := user
	return &dup, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, userID string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByID[userID]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByID[userID] = user
	return nil
}

// findVariant resolves a variant and its owning product. Callers hold
// the lock; the returned pointers alias a product copy that the caller
// must write back to s.products after mutating.
func (s *Store) findVariant(userID string, variantID string) (*domain.Variant, *domain.Product, error) {
	productID, exists := s.variantOwner[variantID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	product, exists := s.products[productID]
	if !exists || product.UserID != userID {
		return nil, nil, store.ErrNotFound
	}
	dup := cloneProduct(product)
	for i := range dup.Variants {
		if dup.Variants[i].ID == variantID {
			return &dup.Variants[i], &dup, nil
		}
	}
	return nil, nil, store.ErrNotFound
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	variants := make([]domain.Variant, len(src.Variants))
	copy(variants, src.Variants)
	dup.Variants = variants
	return dup
}
