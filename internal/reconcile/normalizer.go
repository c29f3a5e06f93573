package reconcile

import (
	"log"
	"strings"
	"time"

	"kasbuku/backend/internal/domain"
)

// Normalize converts raw joined sale rows into canonical line items.
// Missing optional price and date fields default to zero values; a row
// missing its order or product reference is skipped with a warning.
// It fails only for whole-collection problems: a nil collection, or a
// non-empty collection in which no row references any order.
func (e *Engine) Normalize(rows []domain.RawSaleRow) ([]domain.SaleLineItem, error) {
	if rows == nil {
		return nil, ErrNoInput
	}
	if len(rows) == 0 {
		return []domain.SaleLineItem{}, nil
	}

	sawOrderRef := false
	for _, row := range rows {
		if row.OrderID != nil && strings.TrimSpace(*row.OrderID) != "" {
			sawOrderRef = true
			break
		}
	}
	if !sawOrderRef {
		return nil, ErrNoOrderRefs
	}

	items := make([]domain.SaleLineItem, 0, len(rows))
	for _, row := range rows {
		orderID := derefString(row.OrderID)
		if strings.TrimSpace(orderID) == "" {
			log.Printf("[reconcile] WARN: skipping sale row %s: missing order reference", row.ID)
			continue
		}
		productID := derefString(row.ProductID)
		if strings.TrimSpace(productID) == "" {
			log.Printf("[reconcile] WARN: skipping sale row %s: missing product reference", row.ID)
			continue
		}

		quantity := derefInt(row.Quantity)
		if quantity < 1 {
			quantity = 1
		}
		unitPrice := derefInt64(row.UnitPriceCents)
		totalPrice := derefInt64(row.TotalPriceCents)
		if totalPrice == 0 && unitPrice > 0 {
			totalPrice = unitPrice * int64(quantity)
		}

		items = append(items, domain.SaleLineItem{
			ID:                  row.ID,
			OrderID:             orderID,
			ProductID:           productID,
			ProductName:         derefString(row.ProductName),
			Quantity:            quantity,
			UnitPriceCents:      unitPrice,
			TotalPriceCents:     totalPrice,
			IsTreat:             derefBool(row.IsTreat),
			IsDeleted:           derefBool(row.IsDeleted),
			IsEdited:            derefBool(row.IsEdited),
			OriginalProductName: derefString(row.OriginalProductName),
			OriginalQuantity:    derefInt(row.OriginalQuantity),
			CreatedAt:           derefTime(row.CreatedAt),
		})
	}

	return items, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefBool(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}

func derefTime(v *time.Time) time.Time {
	if v == nil {
		return time.Time{}
	}
	return v.UTC()
}
