// Package stats computes the wallet's accounting aggregates from the
// raw product and sale records. Everything here is pure: callers pass
// the data in, nothing touches the store or the clock.
package stats

import (
	"time"

	"resalewallet/backend/internal/domain"
)

// Compute derives the overview aggregates.
//
// Sales of removed products keep counting toward earnings: money that
// came in stays earned even after the product leaves the inventory.
// Everything stock-related only looks at active products.
//
// The average sale price is integer division in cents: any sub-cent
// remainder truncates toward zero.
func Compute(products []domain.Product, sales []domain.Sale, startingBudgetCents int64) domain.Stats {
	var out domain.Stats

	for _, product := range products {
		if product.Status != domain.ProductStatusActive {
			continue
		}
		out.ActiveProducts++
		for _, variant := range product.Variants {
			out.TotalInvestedCents += int64(variant.TotalQty) * product.PurchasePriceCents
			out.InventoryValueCents += int64(variant.AvailableQty()) * product.PurchasePriceCents
			out.ItemsInStock += variant.AvailableQty()
			out.ItemsSold += variant.SoldQty
		}
	}

	var soldUnits int
	for _, sale := range sales {
		out.TotalEarnedCents += int64(sale.Qty) * sale.PriceCents
		soldUnits += sale.Qty
	}

	out.NetProfitCents = out.TotalEarnedCents - (out.TotalInvestedCents - out.InventoryValueCents)
	out.WalletBalanceCents = startingBudgetCents - out.TotalInvestedCents + out.TotalEarnedCents

	if soldUnits > 0 {
		avg := out.TotalEarnedCents / int64(soldUnits)
		out.AvgSalePriceCents = &avg
	}

	return out
}

// ClampOffset steps a period offset in the given direction without ever
// letting it go positive: the current period is the newest one visible.
func ClampOffset(current int, direction int) int {
	return min(0, current+direction)
}

// PeriodWindow returns the [start, end) UTC window for the requested
// period. Weeks run Monday through Sunday; months and years follow the
// calendar. Offset 0 is the current period, -1 the previous, and so on.
func PeriodWindow(periodType string, offset int, now time.Time) (time.Time, time.Time) {
	now = now.UTC()

	switch periodType {
	case domain.PeriodMonth:
		start := time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case domain.PeriodYear:
		start := time.Date(now.Year()+offset, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		// Week. Walk back to Monday midnight, then shift whole weeks.
		daysFromMonday := int(now.Weekday()+6) % 7
		monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -daysFromMonday+offset*7)
		return monday, monday.AddDate(0, 0, 7)
	}
}

// PeriodEarnings sums the sales that fall inside the window. SalesCount
// is units sold, not sale records, so a single sale of three units
// counts as three. Profit is sale price minus the product's purchase
// price per unit; products is the full catalogue, removed ones
// included, so old sales keep a cost basis.
func PeriodEarnings(products []domain.Product, sales []domain.Sale, periodType string, offset int, start time.Time, end time.Time) domain.PeriodStats {
	out := domain.PeriodStats{
		PeriodType: periodType,
		Offset:     offset,
		Start:      start,
		End:        end,
	}

	costBasis := make(map[string]int64, len(products))
	for _, product := range products {
		costBasis[product.ID] = product.PurchasePriceCents
	}

	for _, sale := range sales {
		at := sale.SoldAt.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		out.EarnedCents += int64(sale.Qty) * sale.PriceCents
		out.ProfitCents += int64(sale.Qty) * (sale.PriceCents - costBasis[sale.ProductID])
		out.SalesCount += sale.Qty
	}

	out.HasData = true
	return out
}

// ProductAvgSalePrices derives the quantity-weighted average sale price
// per product, truncating sub-cent remainders toward zero. Products
// without sales are absent from the result.
func ProductAvgSalePrices(sales []domain.Sale) map[string]int64 {
	type tally struct {
		earned int64
		units  int64
	}

	tallies := make(map[string]tally)
	for _, sale := range sales {
		t := tallies[sale.ProductID]
		t.earned += int64(sale.Qty) * sale.PriceCents
		t.units += int64(sale.Qty)
		tallies[sale.ProductID] = t
	}

	averages := make(map[string]int64, len(tallies))
	for productID, t := range tallies {
		if t.units > 0 {
			averages[productID] = t.earned / t.units
		}
	}
	return averages
}
