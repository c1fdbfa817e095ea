package store

import (
	"context"
	"errors"
	"time"

	"resalewallet/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

// Repository is the persistence contract shared by the Postgres and
// in-memory backends. All product, variant, sale and settings methods
// are scoped to a single user.
type Repository interface {
	ListProducts(ctx context.Context, userID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, userID string, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	RemoveProduct(ctx context.Context, userID string, productID string) (*domain.Product, error)

	GetVariant(ctx context.Context, userID string, variantID string) (*domain.Variant, error)
	AddVariant(ctx context.Context, userID string, variant domain.Variant) (*domain.Variant, error)
	AddStock(ctx context.Context, userID string, variantID string, qty int) (*domain.Variant, error)
	SetVariantTotal(ctx context.Context, userID string, variantID string, totalQty int) (*domain.Variant, error)
	DeleteVariant(ctx context.Context, userID string, variantID string) error

	RecordSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, userID string) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]domain.Sale, error)

	GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	PutSettings(ctx context.Context, settings domain.UserSettings) (*domain.UserSettings, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUser(ctx context.Context, userID string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, userID string, password string) error
}
