// Package returns tracks the return windows that matter to a reseller:
// how long a purchase can still go back to the shop, and how long a
// buyer can still send a sold item back.
package returns

import (
	"time"

	"resalewallet/backend/internal/domain"
)

const (
	// PurchaseWindowDays is how long shops commonly accept returns.
	PurchaseWindowDays = 30
	// PurchaseWarningDays marks the last stretch of the purchase window.
	PurchaseWarningDays = 7
	// SaleWindowDays is the buyer-protection window after a sale.
	SaleWindowDays = 14
)

// ForPurchase reports the purchase-return state of a product on the
// given day. Day counting is calendar based: a purchase made 30 days
// ago is still returnable, 31 days ago is not.
func ForPurchase(product domain.Product, today time.Time) domain.ReturnStatus {
	purchased := startOfDay(product.PurchasedAt.UTC())
	today = startOfDay(today.UTC())

	daysSince := int(today.Sub(purchased).Hours() / 24)
	status := domain.ReturnStatus{
		Kind:      domain.ReturnKindPurchase,
		ProductID: product.ID,
		Deadline:  purchased.AddDate(0, 0, PurchaseWindowDays),
	}

	if daysSince > PurchaseWindowDays {
		status.IsExpired = true
		return status
	}

	status.DaysLeft = PurchaseWindowDays - daysSince
	status.IsWarning = status.DaysLeft <= PurchaseWarningDays
	return status
}

// ForSale reports the buyer-return state of a sale. The deadline counts
// calendar days from the sale date, so a sale late in the evening gets
// no extra day. DaysLeft rounds up and never goes below zero even once
// the window has passed.
func ForSale(sale domain.Sale, now time.Time) domain.ReturnStatus {
	deadline := startOfDay(sale.SoldAt.UTC()).AddDate(0, 0, SaleWindowDays)

	remaining := deadline.Sub(now.UTC())
	daysLeft := int(remaining.Hours() / 24)
	if remaining > 0 && remaining%(24*time.Hour) != 0 {
		daysLeft++
	}

	status := domain.ReturnStatus{
		Kind:      domain.ReturnKindSale,
		ProductID: sale.ProductID,
		SaleID:    sale.ID,
		Deadline:  deadline,
	}

	if daysLeft < 0 {
		status.IsExpired = true
		return status
	}
	status.DaysLeft = daysLeft
	return status
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
