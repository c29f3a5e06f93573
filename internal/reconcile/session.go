package reconcile

import (
	"kasbuku/backend/internal/domain"
)

// Stats rolls grouped sales up into session-level statistics. An order is
// classified as a card payment when it carries at least one card-discount
// coupon, otherwise as cash. Voided orders contribute nothing.
func (e *Engine) Stats(sales []domain.GroupedSale) domain.SessionStats {
	var stats domain.SessionStats
	for _, sale := range sales {
		if sale.IsVoided {
			continue
		}
		totals := e.Totals(sale)
		if sale.CardDiscountCount > 0 {
			stats.TotalCardCents += totals.FinalAmountCents
			stats.CardCount += sale.CardDiscountCount
		} else {
			stats.TotalCashCents += totals.FinalAmountCents
		}
		stats.TreatsCount += treatQuantity(sale.Items)
	}
	return stats
}

// ClosingSnapshot derives the frozen aggregate written onto a register
// session at the moment it closes.
func (e *Engine) ClosingSnapshot(sales []domain.GroupedSale) domain.ClosingSnapshot {
	stats := e.Stats(sales)
	snapshot := domain.ClosingSnapshot{
		CouponsUsed:      stats.CardCount,
		TreatItemsSold:   stats.TreatsCount,
		TotalAmountCents: stats.TotalCashCents + stats.TotalCardCents,
	}
	for _, sale := range sales {
		if sale.IsVoided {
			continue
		}
		for _, item := range sale.Items {
			if item.IsDeleted || item.IsTreat {
				continue
			}
			snapshot.ItemsSold += item.Quantity
		}
	}
	return snapshot
}
