package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"resalewallet/backend/internal/cache"
	"resalewallet/backend/internal/domain"
	"resalewallet/backend/internal/returns"
	"resalewallet/backend/internal/stats"
	"resalewallet/backend/internal/store"
)

type userContextKey struct{}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userContextKey{}).(string)
	return userID, ok && userID != ""
}

const defaultStatsTTL = 20 * time.Second

type Service struct {
	repo       store.Repository
	statsCache cache.StatsCache
	statsTTL   time.Duration
}

func New(repo store.Repository, statsCache cache.StatsCache, statsTTL time.Duration) *Service {
	if statsCache == nil {
		statsCache = cache.NoopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = defaultStatsTTL
	}

	return &Service{
		repo:       repo,
		statsCache: statsCache,
		statsTTL:   statsTTL,
	}
}

func (s *Service) requireUser(ctx context.Context) (string, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("authenticated user required")
	}
	return userID, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx, userID)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, userID)
	if err != nil {
		return nil, err
	}
	averages := stats.ProductAvgSalePrices(sales)

	active := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if product.Status != domain.ProductStatusActive {
			continue
		}
		if avg, ok := averages[product.ID]; ok {
			product.AvgSalePriceCents = &avg
		}
		active = append(active, product)
	}
	return active, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.GetProduct(ctx, userID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	sales, err := s.repo.ListSales(ctx, userID)
	if err != nil {
		return domain.Product{}, err
	}
	if avg, ok := stats.ProductAvgSalePrices(sales)[product.ID]; ok {
		product.AvgSalePriceCents = &avg
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.PurchasePriceCents <= 0 {
		return domain.Product{}, store.ErrValidation
	}
	if len(req.Variants) == 0 {
		return domain.Product{}, store.ErrValidation
	}

	seenSizes := make(map[string]bool, len(req.Variants))
	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		size := strings.TrimSpace(v.Size)
		if size == "" || v.TotalQty < 0 {
			return domain.Product{}, store.ErrValidation
		}
		key := strings.ToLower(size)
		if seenSizes[key] {
			return domain.Product{}, store.ErrValidation
		}
		seenSizes[key] = true
		variants = append(variants, domain.Variant{Size: size, TotalQty: v.TotalQty})
	}

	purchasedAt := time.Now().UTC()
	if req.PurchasedAt != nil {
		purchasedAt = req.PurchasedAt.UTC()
	}

	product := domain.Product{
		UserID:             userID,
		Name:               req.Name,
		Brand:              req.Brand,
		Category:           req.Category,
		PurchasePriceCents: req.PurchasePriceCents,
		PurchasedAt:        purchasedAt,
		ImageURL:           strings.TrimSpace(req.ImageURL),
		Notes:              strings.TrimSpace(req.Notes),
		Variants:           variants,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateStats(ctx, userID)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, userID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Brand != nil {
		existing.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.PurchasePriceCents != nil {
		existing.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.PurchasedAt != nil {
		existing.PurchasedAt = req.PurchasedAt.UTC()
	}
	if req.ImageURL != nil {
		existing.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.Notes != nil {
		existing.Notes = strings.TrimSpace(*req.Notes)
	}

	if existing.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if existing.PurchasePriceCents <= 0 {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateStats(ctx, userID)
	return *updated, nil
}

// RemoveProduct soft-deletes: the product drops out of inventory and
// stats, but its sales keep counting toward earnings.
func (s *Service) RemoveProduct(ctx context.Context, productID string) (domain.Product, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	removed, err := s.repo.RemoveProduct(ctx, userID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateStats(ctx, userID)
	return *removed, nil
}

func (s *Service) AddVariant(ctx context.Context, productID string, req domain.VariantCreateRequest) (domain.Variant, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Variant{}, err
	}

	size := strings.TrimSpace(req.Size)
	if size == "" || req.TotalQty < 0 {
		return domain.Variant{}, store.ErrValidation
	}

	created, err := s.repo.AddVariant(ctx, userID, domain.Variant{
		ProductID: productID,
		Size:      size,
		TotalQty:  req.TotalQty,
	})
	if err != nil {
		return domain.Variant{}, err
	}

	s.invalidateStats(ctx, userID)
	return *created, nil
}

func (s *Service) AddStock(ctx context.Context, variantID string, qty int) (domain.Variant, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Variant{}, err
	}
	if qty < 1 {
		return domain.Variant{}, store.ErrValidation
	}

	updated, err := s.repo.AddStock(ctx, userID, variantID, qty)
	if err != nil {
		return domain.Variant{}, err
	}

	s.invalidateStats(ctx, userID)
	return *updated, nil
}

func (s *Service) SetVariantTotal(ctx context.Context, variantID string, totalQty int) (domain.Variant, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Variant{}, err
	}
	if totalQty < 0 {
		return domain.Variant{}, store.ErrValidation
	}

	updated, err := s.repo.SetVariantTotal(ctx, userID, variantID, totalQty)
	if err != nil {
		return domain.Variant{}, err
	}

	s.invalidateStats(ctx, userID)
	return *updated, nil
}

func (s *Service) DeleteVariant(ctx context.Context, variantID string) error {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteVariant(ctx, userID, variantID); err != nil {
		return err
	}

	s.invalidateStats(ctx, userID)
	return nil
}

func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.Sale, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if req.ProductID == "" || req.VariantID == "" {
		return domain.Sale{}, store.ErrValidation
	}
	if req.Qty < 1 || req.PriceCents <= 0 {
		return domain.Sale{}, store.ErrValidation
	}

	sale := domain.Sale{
		UserID:     userID,
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		Qty:        req.Qty,
		PriceCents: req.PriceCents,
		Notes:      strings.TrimSpace(req.Notes),
	}
	if req.SoldAt != nil {
		sale.SoldAt = req.SoldAt.UTC()
	}

	created, err := s.repo.RecordSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateStats(ctx, userID)
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, userID)
}

// OverviewStats computes the wallet aggregates, serving from the cache
// when a recent copy exists. Every mutation invalidates the cached
// entry, so a hit is never stale by more than the TTL.
func (s *Service) OverviewStats(ctx context.Context) (domain.Stats, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.Stats{}, err
	}

	key := statsCacheKey(userID)
	if cached, ok, err := s.statsCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: stats cache read failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx, userID)
	if err != nil {
		return domain.Stats{}, err
	}
	sales, err := s.repo.ListSales(ctx, userID)
	if err != nil {
		return domain.Stats{}, err
	}
	settings, err := s.settingsOrDefault(ctx, userID)
	if err != nil {
		return domain.Stats{}, err
	}

	computed := stats.Compute(products, sales, settings.StartingBudgetCents)
	if err := s.statsCache.Set(ctx, key, &computed, s.statsTTL); err != nil {
		log.Printf("[service] WARN: stats cache write failed: %v", err)
	}

	return computed, nil
}

// PeriodStats sums earnings for one week/month/year window. Offsets
// count backwards from the current period and never go positive. A
// store failure degrades to an empty period with HasData false rather
// than an error, so the dashboard keeps rendering.
func (s *Service) PeriodStats(ctx context.Context, periodType string, offset int) (domain.PeriodStats, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.PeriodStats{}, err
	}

	switch periodType {
	case domain.PeriodWeek, domain.PeriodMonth, domain.PeriodYear:
	default:
		return domain.PeriodStats{}, store.ErrValidation
	}
	offset = stats.ClampOffset(offset, 0)

	start, end := stats.PeriodWindow(periodType, offset, time.Now().UTC())
	empty := domain.PeriodStats{
		PeriodType: periodType,
		Offset:     offset,
		Start:      start,
		End:        end,
	}

	sales, err := s.repo.ListSalesBetween(ctx, userID, start, end)
	if err != nil {
		log.Printf("[service] WARN: period sales unavailable type=%s offset=%d: %v", periodType, offset, err)
		return empty, nil
	}
	products, err := s.repo.ListProducts(ctx, userID)
	if err != nil {
		log.Printf("[service] WARN: period cost basis unavailable type=%s offset=%d: %v", periodType, offset, err)
		return empty, nil
	}

	return stats.PeriodEarnings(products, sales, periodType, offset, start, end), nil
}

// ReturnOverview reports the purchase-return window of every active
// product and the buyer-return window of every sale.
func (s *Service) ReturnOverview(ctx context.Context) (domain.ReturnOverview, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.ReturnOverview{}, err
	}

	products, err := s.repo.ListProducts(ctx, userID)
	if err != nil {
		return domain.ReturnOverview{}, err
	}
	sales, err := s.repo.ListSales(ctx, userID)
	if err != nil {
		return domain.ReturnOverview{}, err
	}

	now := time.Now().UTC()
	overview := domain.ReturnOverview{
		Purchases: make([]domain.ReturnStatus, 0, len(products)),
		Sales:     make([]domain.ReturnStatus, 0, len(sales)),
	}
	for _, product := range products {
		if product.Status != domain.ProductStatusActive {
			continue
		}
		overview.Purchases = append(overview.Purchases, returns.ForPurchase(product, now))
	}
	for _, sale := range sales {
		overview.Sales = append(overview.Sales, returns.ForSale(sale, now))
	}

	return overview, nil
}

func (s *Service) Settings(ctx context.Context) (domain.UserSettings, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.UserSettings{}, err
	}

	settings, err := s.settingsOrDefault(ctx, userID)
	if err != nil {
		return domain.UserSettings{}, err
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.UserSettings, error) {
	userID, err := s.requireUser(ctx)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if req.StartingBudgetCents < 0 {
		return domain.UserSettings{}, store.ErrValidation
	}

	saved, err := s.repo.PutSettings(ctx, domain.UserSettings{
		UserID:              userID,
		StartingBudgetCents: req.StartingBudgetCents,
	})
	if err != nil {
		return domain.UserSettings{}, err
	}

	s.invalidateStats(ctx, userID)
	return *saved, nil
}

func (s *Service) settingsOrDefault(ctx context.Context, userID string) (*domain.UserSettings, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &domain.UserSettings{UserID: userID}, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *Service) invalidateStats(ctx context.Context, userID string) {
	if err := s.statsCache.Invalidate(ctx, statsCacheKey(userID)); err != nil {
		log.Printf("[service] WARN: stats cache invalidation failed: %v", err)
	}
}

func statsCacheKey(userID string) string {
	return "stats:" + userID
}
