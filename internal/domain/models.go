package domain

import "time"

// RawSaleRow is one row of the joined sale/order/product query exactly as
// the persistence layer returns it. Optional join columns are pointers so
// the normalizer can tell "missing" apart from zero.
type RawSaleRow struct {
	ID                  string     `json:"id"`
	OrderID             *string    `json:"order_id,omitempty"`
	ProductID           *string    `json:"product_id,omitempty"`
	ProductName         *string    `json:"product_name,omitempty"`
	Quantity            *int       `json:"quantity,omitempty"`
	UnitPriceCents      *int64     `json:"unit_price_cents,omitempty"`
	TotalPriceCents     *int64     `json:"total_price_cents,omitempty"`
	IsTreat             *bool      `json:"is_treat,omitempty"`
	IsDeleted           *bool      `json:"is_deleted,omitempty"`
	IsEdited            *bool      `json:"is_edited,omitempty"`
	OriginalProductName *string    `json:"original_product_name,omitempty"`
	OriginalQuantity    *int       `json:"original_quantity,omitempty"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
}

// SaleLineItem is the canonical, fully-typed line item every component
// downstream of the normalizer can rely on.
type SaleLineItem struct {
	ID                  string    `json:"id"`
	OrderID             string    `json:"order_id"`
	ProductID           string    `json:"product_id"`
	ProductName         string    `json:"product_name"`
	Quantity            int       `json:"quantity"`
	UnitPriceCents      int64     `json:"unit_price_cents"`
	TotalPriceCents     int64     `json:"total_price_cents"`
	IsTreat             bool      `json:"is_treat"`
	IsDeleted           bool      `json:"is_deleted"`
	IsEdited            bool      `json:"is_edited"`
	OriginalProductName string    `json:"original_product_name,omitempty"`
	OriginalQuantity    int       `json:"original_quantity,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type Order struct {
	ID                string    `json:"id"`
	RegisterSessionID string    `json:"register_session_id"`
	TotalAmountCents  int64     `json:"total_amount_cents"`
	FinalAmountCents  int64     `json:"final_amount_cents"`
	CardDiscountCount int       `json:"card_discount_count"`
	IsVoided          bool      `json:"is_voided"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

// ClosingSnapshot is frozen onto a RegisterSession exactly once, at closure.
type ClosingSnapshot struct {
	ItemsSold        int   `json:"items_sold"`
	CouponsUsed      int   `json:"coupons_used"`
	TreatItemsSold   int   `json:"treat_items_sold"`
	TotalAmountCents int64 `json:"total_amount_cents"`
}

type RegisterSession struct {
	ID       string           `json:"id"`
	Status   string           `json:"status"`
	OpenedAt time.Time        `json:"opened_at"`
	ClosedAt *time.Time       `json:"closed_at,omitempty"`
	OpenedBy string           `json:"opened_by"`
	ClosedBy string           `json:"closed_by,omitempty"`
	Notes    string           `json:"notes,omitempty"`
	Snapshot *ClosingSnapshot `json:"snapshot,omitempty"`
}

// GroupedSale is the derived per-order aggregate. It is never persisted.
type GroupedSale struct {
	ID                string         `json:"id"`
	Items             []SaleLineItem `json:"items"`
	TotalCents        int64          `json:"total_cents"`
	TreatsCount       int            `json:"treats_count"`
	CardDiscountCount int            `json:"card_discount_count"`
	FinalAmountCents  int64          `json:"final_amount_cents"`
	IsCardPayment     bool           `json:"is_card_payment"`
	IsVoided          bool           `json:"is_voided"`
	CreatedAt         time.Time      `json:"created_at"`
}

type TotalsResult struct {
	NonTreatSubtotalCents int64 `json:"non_treat_subtotal_cents"`
	TreatsValueCents      int64 `json:"treats_value_cents"`
	DiscountAmountCents   int64 `json:"discount_amount_cents"`
	FinalAmountCents      int64 `json:"final_amount_cents"`
}

type SessionStats struct {
	TotalCashCents int64 `json:"total_cash_cents"`
	TotalCardCents int64 `json:"total_card_cents"`
	TreatsCount    int   `json:"treats_count"`
	CardCount      int   `json:"card_count"`
}

// ProductSummaryEntry is one row of the per-product report. Deleted line
// items get their own synthetic entries so live totals stay untouched.
type ProductSummaryEntry struct {
	ProductID           string `json:"product_id"`
	ProductName         string `json:"product_name"`
	Quantity            int    `json:"quantity"`
	TotalAmountCents    int64  `json:"total_amount_cents"`
	TreatCount          int    `json:"treat_count"`
	IsEdited            bool   `json:"is_edited"`
	IsDeleted           bool   `json:"is_deleted"`
	OriginalProductName string `json:"original_product_name,omitempty"`
	OriginalQuantity    int    `json:"original_quantity,omitempty"`
}

type ProductSummary map[string]ProductSummaryEntry

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type OrderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	IsTreat   bool   `json:"is_treat"`
}

type RecordOrderRequest struct {
	RegisterSessionID string             `json:"register_session_id"`
	CardDiscountCount int                `json:"card_discount_count"`
	Lines             []OrderLineRequest `json:"lines"`
}

type RecordOrderResponse struct {
	Order  Order          `json:"order"`
	Items  []SaleLineItem `json:"items"`
	Totals TotalsResult   `json:"totals"`
}

type EditSaleLineItemRequest struct {
	ProductID *string `json:"product_id,omitempty"`
	Quantity  *int    `json:"quantity,omitempty"`
}

type VoidOrderRequest struct {
	Reason string `json:"reason"`
}

type VoidOrderResponse struct {
	OrderID  string `json:"order_id"`
	IsVoided bool   `json:"is_voided"`
	VoidedAt string `json:"voided_at"`
}

type SessionOpenRequest struct {
	Notes string `json:"notes,omitempty"`
}

type SessionCloseRequest struct {
	SessionID string `json:"session_id"`
	Notes     string `json:"notes,omitempty"`
}

type SessionResponse struct {
	Session RegisterSession `json:"session"`
}

type SessionCloseResponse struct {
	Session RegisterSession `json:"session"`
	Stats   SessionStats    `json:"stats"`
}

type OverviewSale struct {
	Sale   GroupedSale  `json:"sale"`
	Totals TotalsResult `json:"totals"`
}

type OverviewResponse struct {
	Sales []OverviewSale `json:"sales"`
	Stats SessionStats   `json:"stats"`
}

type StatsResponse struct {
	From  string       `json:"from"`
	To    string       `json:"to"`
	Stats SessionStats `json:"stats"`
}

type ProductSummaryResponse struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Summary ProductSummary `json:"summary"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)
