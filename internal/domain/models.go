package domain

import "time"

const (
	ProductStatusActive  = "active"
	ProductStatusRemoved = "removed"
)

const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

const (
	ReturnKindPurchase = "purchase"
	ReturnKindSale     = "sale"
)

type Product struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"-"`
	Name               string    `json:"name"`
	Brand              string    `json:"brand"`
	Category           string    `json:"category"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	PurchasedAt        time.Time `json:"purchased_at"`
	ImageURL           string    `json:"image_url,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Variants           []Variant `json:"variants"`

	// AvgSalePriceCents is derived from sale history by the service
	// layer; stores leave it nil.
	AvgSalePriceCents *int64 `json:"avg_sale_price_cents,omitempty"`
}

type Variant struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Size      string    `json:"size"`
	TotalQty  int       `json:"total_qty"`
	SoldQty   int       `json:"sold_qty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailableQty is the sellable remainder; never negative for a valid variant.
func (v Variant) AvailableQty() int {
	return v.TotalQty - v.SoldQty
}

type Sale struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	ProductID  string    `json:"product_id"`
	VariantID  string    `json:"variant_id"`
	Qty        int       `json:"qty"`
	PriceCents int64     `json:"price_cents"`
	Notes      string    `json:"notes,omitempty"`
	SoldAt     time.Time `json:"sold_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type UserAccount struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type UserSettings struct {
	UserID              string    `json:"-"`
	StartingBudgetCents int64     `json:"starting_budget_cents"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Stats struct {
	TotalInvestedCents  int64  `json:"total_invested_cents"`
	TotalEarnedCents    int64  `json:"total_earned_cents"`
	InventoryValueCents int64  `json:"inventory_value_cents"`
	NetProfitCents      int64  `json:"net_profit_cents"`
	WalletBalanceCents  int64  `json:"wallet_balance_cents"`
	ItemsInStock        int    `json:"items_in_stock"`
	ItemsSold           int    `json:"items_sold"`
	AvgSalePriceCents   *int64 `json:"avg_sale_price_cents"`
	ActiveProducts      int    `json:"active_products"`
}

type PeriodStats struct {
	PeriodType  string    `json:"period_type"`
	Offset      int       `json:"offset"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	EarnedCents int64     `json:"earned_cents"`
	ProfitCents int64     `json:"profit_cents"`
	SalesCount  int       `json:"sales_count"`
	HasData     bool      `json:"has_data"`
}

type ReturnStatus struct {
	Kind      string    `json:"kind"`
	ProductID string    `json:"product_id"`
	SaleID    string    `json:"sale_id,omitempty"`
	Deadline  time.Time `json:"deadline"`
	DaysLeft  int       `json:"days_left"`
	IsExpired bool      `json:"is_expired"`
	IsWarning bool      `json:"is_warning"`
}

type ReturnOverview struct {
	Purchases []ReturnStatus `json:"purchases"`
	Sales     []ReturnStatus `json:"sales"`
}

type VariantCreateRequest struct {
	Size     string `json:"size"`
	TotalQty int    `json:"total_qty"`
}

type ProductCreateRequest struct {
	Name               string                 `json:"name"`
	Brand              string                 `json:"brand"`
	Category           string                 `json:"category"`
	PurchasePriceCents int64                  `json:"purchase_price_cents"`
	PurchasedAt        *time.Time             `json:"purchased_at,omitempty"`
	ImageURL           string                 `json:"image_url,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	Variants           []VariantCreateRequest `json:"variants"`
}

type ProductUpdateRequest struct {
	Name               *string    `json:"name,omitempty"`
	Brand              *string    `json:"brand,omitempty"`
	Category           *string    `json:"category,omitempty"`
	PurchasePriceCents *int64     `json:"purchase_price_cents,omitempty"`
	PurchasedAt        *time.Time `json:"purchased_at,omitempty"`
	ImageURL           *string    `json:"image_url,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

type AddStockRequest struct {
	Qty int `json:"qty"`
}

type SetVariantTotalRequest struct {
	TotalQty int `json:"total_qty"`
}

type RecordSaleRequest struct {
	ProductID  string     `json:"product_id"`
	VariantID  string     `json:"variant_id"`
	Qty        int        `json:"qty"`
	PriceCents int64      `json:"price_cents"`
	Notes      string     `json:"notes,omitempty"`
	SoldAt     *time.Time `json:"sold_at,omitempty"`
}

type SettingsUpdateRequest struct {
	StartingBudgetCents int64 `json:"starting_budget_cents"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}
