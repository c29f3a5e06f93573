package reconcile

import (
	"fmt"

	"kasbuku/backend/internal/domain"
)

// ProductSummary rolls grouped sales up into per-product totals. Live
// entries follow a create-if-absent-then-update merge keyed by product
// id. Deleted line items never merge into a live entry; each one yields
// a synthetic entry keyed deleted-{productId}-{lineItemId} so the audit
// trail stays visible without corrupting running totals.
func (e *Engine) ProductSummary(sales []domain.GroupedSale) domain.ProductSummary {
	summary := make(domain.ProductSummary)
	for _, sale := range sales {
		if sale.IsVoided {
			continue
		}
		for _, item := range sale.Items {
			if item.IsDeleted {
				key := fmt.Sprintf("deleted-%s-%s", item.ProductID, item.ID)
				summary[key] = domain.ProductSummaryEntry{
					ProductID:           item.ProductID,
					ProductName:         item.ProductName,
					Quantity:            item.Quantity,
					TotalAmountCents:    item.TotalPriceCents,
					IsEdited:            item.IsEdited,
					IsDeleted:           true,
					OriginalProductName: item.OriginalProductName,
					OriginalQuantity:    item.OriginalQuantity,
				}
				continue
			}

			entry, ok := summary[item.ProductID]
			if !ok {
				entry = domain.ProductSummaryEntry{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
				}
			}
			entry.Quantity += item.Quantity
			if item.IsTreat {
				entry.TreatCount += item.Quantity
			} else {
				entry.TotalAmountCents += item.TotalPriceCents
			}
			if item.IsEdited {
				entry.IsEdited = true
				entry.OriginalProductName = item.OriginalProductName
				entry.OriginalQuantity = item.OriginalQuantity
			}
			summary[item.ProductID] = entry
		}
	}
	return summary
}
