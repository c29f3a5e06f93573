package reconcile

import (
	"kasbuku/backend/internal/domain"
)

// Totals computes the chargeable subtotal, treat value, discount and
// final amount for one grouped sale.
func (e *Engine) Totals(sale domain.GroupedSale) domain.TotalsResult {
	return e.TotalsForItems(sale.Items, sale.CardDiscountCount)
}

// TotalsForItems is the underlying calculation. Deleted items contribute
// nothing. Treat items are excluded from the chargeable subtotal and
// valued separately at unit price times quantity. The discount is the
// nominal coupon value and may exceed the subtotal; only the final
// amount is clamped at zero.
func (e *Engine) TotalsForItems(items []domain.SaleLineItem, cardDiscountCount int) domain.TotalsResult {
	var subtotal, treats int64
	for _, item := range items {
		if item.IsDeleted {
			continue
		}
		if item.IsTreat {
			treats += item.UnitPriceCents * int64(item.Quantity)
			continue
		}
		subtotal += item.TotalPriceCents
	}

	if cardDiscountCount < 0 {
		cardDiscountCount = 0
	}
	discount := int64(cardDiscountCount) * e.pricing.CardDiscountCents

	final := subtotal - discount
	if final < 0 {
		final = 0
	}

	return domain.TotalsResult{
		NonTreatSubtotalCents: subtotal,
		TreatsValueCents:      treats,
		DiscountAmountCents:   discount,
		FinalAmountCents:      final,
	}
}
