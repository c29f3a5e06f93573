package reconcile

import (
	"log"
	"sort"

	"kasbuku/backend/internal/domain"
)

// Group folds canonical line items into one GroupedSale per distinct
// order. Item order within a group is preserved; groups are sorted by
// descending order creation time (most recent first). A line item whose
// order reference is empty or does not resolve against the supplied
// orders is excluded from every group. Every resolvable line item lands
// in exactly one group.
func (e *Engine) Group(items []domain.SaleLineItem, orders []domain.Order) []domain.GroupedSale {
	ordersByID := make(map[string]domain.Order, len(orders))
	for _, order := range orders {
		ordersByID[order.ID] = order
	}

	groupsByID := make(map[string]*domain.GroupedSale, len(orders))
	groupOrder := make([]string, 0, len(orders))

	for _, item := range items {
		if item.OrderID == "" {
			log.Printf("[reconcile] WARN: excluding line item %s: no order reference", item.ID)
			continue
		}
		order, ok := ordersByID[item.OrderID]
		if !ok {
			log.Printf("[reconcile] WARN: excluding line item %s: order %s not in snapshot", item.ID, item.OrderID)
			continue
		}

		group, ok := groupsByID[item.OrderID]
		if !ok {
			group = &domain.GroupedSale{
				ID:                order.ID,
				Items:             make([]domain.SaleLineItem, 0, 4),
				CardDiscountCount: order.CardDiscountCount,
				IsCardPayment:     order.CardDiscountCount > 0,
				IsVoided:          order.IsVoided,
				CreatedAt:         order.CreatedAt,
			}
			groupsByID[item.OrderID] = group
			groupOrder = append(groupOrder, item.OrderID)
		}
		group.Items = append(group.Items, item)
	}

	grouped := make([]domain.GroupedSale, 0, len(groupOrder))
	for _, id := range groupOrder {
		group := groupsByID[id]
		totals := e.TotalsForItems(group.Items, group.CardDiscountCount)
		group.TotalCents = totals.NonTreatSubtotalCents
		group.FinalAmountCents = totals.FinalAmountCents
		group.TreatsCount = treatQuantity(group.Items)
		grouped = append(grouped, *group)
	}

	sort.SliceStable(grouped, func(i, j int) bool {
		return grouped[i].CreatedAt.After(grouped[j].CreatedAt)
	})

	return grouped
}

func treatQuantity(items []domain.SaleLineItem) int {
	count := 0
	for _, item := range items {
		if item.IsTreat && !item.IsDeleted {
			count += item.Quantity
		}
	}
	return count
}
