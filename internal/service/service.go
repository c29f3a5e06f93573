package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"kasbuku/backend/internal/cache"
	"kasbuku/backend/internal/domain"
	"kasbuku/backend/internal/reconcile"
	"kasbuku/backend/internal/store"
	"kasbuku/backend/internal/xid"
)

var ErrEditWindowExpired = errors.New("edit window expired")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	engine     *reconcile.Engine
	statsCache cache.StatsCache
	editWindow time.Duration
	statsTTL   time.Duration
}

func New(repo store.Repository, engine *reconcile.Engine, statsCache cache.StatsCache, editWindow time.Duration, statsTTL time.Duration) *Service {
	if statsCache == nil {
		statsCache = cache.NoopStatsCache{}
	}
	if editWindow <= 0 {
		editWindow = 15 * time.Minute
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		engine:     engine,
		statsCache: statsCache,
		editWindow: editWindow,
		statsTTL:   statsTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// sessionSales runs the full reconciliation pipeline for one register
// session: raw rows out of the store, normalized, then grouped per order.
func (s *Service) sessionSales(ctx context.Context, sessionID string) ([]domain.GroupedSale, error) {
	rows, err := s.repo.ListSaleRowsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	items, err := s.engine.Normalize(rows)
	if err != nil {
		return nil, err
	}
	return s.engine.Group(items, orders), nil
}

func (s *Service) rangeSales(ctx context.Context, from time.Time, to time.Time) ([]domain.GroupedSale, error) {
	rows, err := s.repo.ListSaleRowsByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrdersByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	items, err := s.engine.Normalize(rows)
	if err != nil {
		return nil, err
	}
	return s.engine.Group(items, orders), nil
}

func (s *Service) Overview(ctx context.Context, sessionID string) (domain.OverviewResponse, error) {
	if sessionID == "" {
		active, err := s.repo.GetActiveSession(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.OverviewResponse{Sales: []domain.OverviewSale{}}, nil
			}
			return domain.OverviewResponse{}, err
		}
		sessionID = active.ID
	} else if _, err := s.repo.GetSessionByID(ctx, sessionID); err != nil {
		return domain.OverviewResponse{}, err
	}

	sales, err := s.sessionSales(ctx, sessionID)
	if err != nil {
		return domain.OverviewResponse{}, err
	}

	overview := domain.OverviewResponse{
		Sales: make([]domain.OverviewSale, 0, len(sales)),
		Stats: s.engine.Stats(sales),
	}
	for _, sale := range sales {
		overview.Sales = append(overview.Sales, domain.OverviewSale{
			Sale:   sale,
			Totals: s.engine.Totals(sale),
		})
	}
	return overview, nil
}

func (s *Service) OverviewByRange(ctx context.Context, fromDate string, toDate string) (domain.OverviewResponse, error) {
	from, to, err := parseDayRange(fromDate, toDate)
	if err != nil {
		return domain.OverviewResponse{}, err
	}

	sales, err := s.rangeSales(ctx, from, to)
	if err != nil {
		return domain.OverviewResponse{}, err
	}

	overview := domain.OverviewResponse{
		Sales: make([]domain.OverviewSale, 0, len(sales)),
		Stats: s.engine.Stats(sales),
	}
	for _, sale := range sales {
		overview.Sales = append(overview.Sales, domain.OverviewSale{
			Sale:   sale,
			Totals: s.engine.Totals(sale),
		})
	}
	return overview, nil
}

func (s *Service) SessionStats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	if _, err := s.repo.GetSessionByID(ctx, sessionID); err != nil {
		return domain.SessionStats{}, err
	}

	sales, err := s.sessionSales(ctx, sessionID)
	if err != nil {
		return domain.SessionStats{}, err
	}
	return s.engine.Stats(sales), nil
}

func (s *Service) RangeStats(ctx context.Context, fromDate string, toDate string) (domain.StatsResponse, error) {
	from, to, err := parseDayRange(fromDate, toDate)
	if err != nil {
		return domain.StatsResponse{}, err
	}

	key := statsCacheKey(from, to)
	if cached, ok, err := s.statsCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: stats cache get failed key=%s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	sales, err := s.rangeSales(ctx, from, to)
	if err != nil {
		return domain.StatsResponse{}, err
	}

	resp := domain.StatsResponse{
		From:  from.Format("2006-01-02"),
		To:    to.Format("2006-01-02"),
		Stats: s.engine.Stats(sales),
	}
	if err := s.statsCache.Set(ctx, key, &resp, s.statsTTL); err != nil {
		log.Printf("[service] WARN: stats cache set failed key=%s: %v", key, err)
	}
	return resp, nil
}

func (s *Service) ProductSummaryReport(ctx context.Context, fromDate string, toDate string) (domain.ProductSummaryResponse, error) {
	from, to, err := parseDayRange(fromDate, toDate)
	if err != nil {
		return domain.ProductSummaryResponse{}, err
	}

	sales, err := s.rangeSales(ctx, from, to)
	if err != nil {
		return domain.ProductSummaryResponse{}, err
	}

	return domain.ProductSummaryResponse{
		From:    from.Format("2006-01-02"),
		To:      to.Format("2006-01-02"),
		Summary: s.engine.ProductSummary(sales),
	}, nil
}

func (s *Service) OpenRegisterSession(ctx context.Context, req domain.SessionOpenRequest) (domain.SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}

	session := domain.RegisterSession{
		ID:       xid.New("sess"),
		Status:   domain.SessionStatusOpen,
		OpenedAt: time.Now().UTC(),
		OpenedBy: actor.Username,
		Notes:    strings.TrimSpace(req.Notes),
	}
	saved, err := s.repo.CreateRegisterSession(ctx, session)
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			return domain.SessionResponse{}, fmt.Errorf("%w: register session already open", store.ErrInvalidInput)
		}
		return domain.SessionResponse{}, err
	}

	s.logAudit(ctx, "session_open", "register_session", saved.ID, saved.Notes)

	return domain.SessionResponse{Session: *saved}, nil
}

func (s *Service) GetActiveSession(ctx context.Context) (domain.SessionResponse, error) {
	session, err := s.repo.GetActiveSession(ctx)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

// CloseRegisterSession freezes the closing snapshot computed at the close
// instant. The store rejects a second close, so a lost race surfaces as
// store.ErrSessionClosed and the winner's snapshot stays untouched.
func (s *Service) CloseRegisterSession(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionCloseResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionCloseResponse{}, store.ErrInvalidInput
	}

	sessionID := req.SessionID
	if sessionID == "" {
		active, err := s.repo.GetActiveSession(ctx)
		if err != nil {
			return domain.SessionCloseResponse{}, err
		}
		sessionID = active.ID
	}

	session, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return domain.SessionCloseResponse{}, err
	}
	if session.ClosedAt != nil {
		return domain.SessionCloseResponse{}, store.ErrSessionClosed
	}

	sales, err := s.sessionSales(ctx, sessionID)
	if err != nil {
		return domain.SessionCloseResponse{}, err
	}
	snapshot := s.engine.ClosingSnapshot(sales)

	closed, err := s.repo.CloseRegisterSession(ctx, sessionID, actor.Username, strings.TrimSpace(req.Notes), snapshot, time.Now().UTC())
	if err != nil {
		return domain.SessionCloseResponse{}, err
	}

	s.logAudit(ctx, "session_close", "register_session", closed.ID,
		fmt.Sprintf("items_sold=%d,coupons=%d,total=%d", snapshot.ItemsSold, snapshot.CouponsUsed, snapshot.TotalAmountCents))

	return domain.SessionCloseResponse{
		Session: *closed,
		Stats:   s.engine.Stats(sales),
	}, nil
}

func (s *Service) RecordOrder(ctx context.Context, req domain.RecordOrderRequest) (domain.RecordOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RecordOrderResponse{}, store.ErrInvalidInput
	}
	if len(req.Lines) == 0 {
		return domain.RecordOrderResponse{}, store.ErrInvalidInput
	}
	if req.CardDiscountCount < 0 {
		req.CardDiscountCount = 0
	}

	sessionID := req.RegisterSessionID
	if sessionID == "" {
		active, err := s.repo.GetActiveSession(ctx)
		if err != nil {
			return domain.RecordOrderResponse{}, err
		}
		sessionID = active.ID
	} else {
		session, err := s.repo.GetSessionByID(ctx, sessionID)
		if err != nil {
			return domain.RecordOrderResponse{}, err
		}
		if session.ClosedAt != nil {
			return domain.RecordOrderResponse{}, store.ErrSessionClosed
		}
	}

	productIDs := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.ProductID == "" {
			return domain.RecordOrderResponse{}, store.ErrInvalidInput
		}
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.RecordOrderResponse{}, err
	}

	now := time.Now().UTC()
	orderID := xid.New("order")
	items := make([]domain.SaleLineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.RecordOrderResponse{}, fmt.Errorf("%w: unknown product %s", store.ErrInvalidInput, line.ProductID)
		}
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, domain.SaleLineItem{
			ID:              xid.New("sale"),
			OrderID:         orderID,
			ProductID:       product.ID,
			ProductName:     product.Name,
			Quantity:        qty,
			UnitPriceCents:  product.PriceCents,
			TotalPriceCents: product.PriceCents * int64(qty),
			IsTreat:         line.IsTreat,
			CreatedAt:       now,
		})
	}

	totals := s.engine.TotalsForItems(items, req.CardDiscountCount)
	order := domain.Order{
		ID:                orderID,
		RegisterSessionID: sessionID,
		TotalAmountCents:  totals.NonTreatSubtotalCents,
		FinalAmountCents:  totals.FinalAmountCents,
		CardDiscountCount: req.CardDiscountCount,
		CreatedBy:         actor.Username,
		CreatedAt:         now,
	}
	saved, err := s.repo.CreateOrder(ctx, order, items)
	if err != nil {
		return domain.RecordOrderResponse{}, err
	}

	s.logAudit(ctx, "order_record", "order", saved.ID,
		fmt.Sprintf("lines=%d,coupons=%d,final=%d", len(items), saved.CardDiscountCount, saved.FinalAmountCents))
	s.invalidateStats(ctx, now)

	return domain.RecordOrderResponse{Order: *saved, Items: items, Totals: totals}, nil
}

func (s *Service) EditSaleLineItem(ctx context.Context, id string, req domain.EditSaleLineItemRequest) (*domain.SaleLineItem, error) {
	if req.ProductID == nil && req.Quantity == nil {
		return nil, store.ErrInvalidInput
	}

	item, err := s.repo.GetSaleLineItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsDeleted {
		return nil, store.ErrInvalidInput
	}
	if time.Since(item.CreatedAt) > s.editWindow {
		return nil, ErrEditWindowExpired
	}

	// Originals are stamped once, on the first edit, and never overwritten.
	if !item.IsEdited {
		item.OriginalProductName = item.ProductName
		item.OriginalQuantity = item.Quantity
	}

	if req.ProductID != nil && *req.ProductID != item.ProductID {
		products, err := s.repo.GetProductsByIDs(ctx, []string{*req.ProductID})
		if err != nil {
			return nil, err
		}
		product, ok := products[*req.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrInvalidInput, *req.ProductID)
		}
		item.ProductID = product.ID
		item.ProductName = product.Name
		item.UnitPriceCents = product.PriceCents
	}
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		item.Quantity = *req.Quantity
	}
	item.TotalPriceCents = item.UnitPriceCents * int64(item.Quantity)
	item.IsEdited = true

	saved, err := s.repo.UpdateSaleLineItem(ctx, *item)
	if err != nil {
		return nil, err
	}

	if err := s.recomputeOrderAmounts(ctx, saved.OrderID); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale_edit", "sale_line_item", saved.ID,
		fmt.Sprintf("product=%s,qty=%d,was=%s/%d", saved.ProductID, saved.Quantity, saved.OriginalProductName, saved.OriginalQuantity))
	s.invalidateStats(ctx, saved.CreatedAt)

	return saved, nil
}

func (s *Service) SoftDeleteSaleLineItem(ctx context.Context, id string) (*domain.SaleLineItem, error) {
	deleted, err := s.repo.SoftDeleteSaleLineItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.recomputeOrderAmounts(ctx, deleted.OrderID); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale_delete", "sale_line_item", deleted.ID,
		fmt.Sprintf("product=%s,qty=%d", deleted.ProductID, deleted.Quantity))
	s.invalidateStats(ctx, deleted.CreatedAt)

	return deleted, nil
}

// recomputeOrderAmounts re-derives the stored order amounts from the
// surviving line items after an edit or soft delete.
func (s *Service) recomputeOrderAmounts(ctx context.Context, orderID string) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	rows, err := s.repo.ListSaleRowsBySession(ctx, order.RegisterSessionID)
	if err != nil {
		return err
	}
	items, err := s.engine.Normalize(rows)
	if err != nil {
		return err
	}

	orderItems := make([]domain.SaleLineItem, 0, 8)
	for _, item := range items {
		if item.OrderID == orderID {
			orderItems = append(orderItems, item)
		}
	}

	totals := s.engine.TotalsForItems(orderItems, order.CardDiscountCount)
	return s.repo.UpdateOrderAmounts(ctx, orderID, totals.NonTreatSubtotalCents, totals.FinalAmountCents)
}

func (s *Service) VoidOrder(ctx context.Context, id string, req domain.VoidOrderRequest) (domain.VoidOrderResponse, error) {
	at := time.Now().UTC()
	voided, err := s.repo.VoidOrder(ctx, id, at)
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			return domain.VoidOrderResponse{}, fmt.Errorf("%w: order already voided", store.ErrInvalidInput)
		}
		return domain.VoidOrderResponse{}, err
	}

	s.logAudit(ctx, "order_void", "order", voided.ID, req.Reason)
	s.invalidateStats(ctx, voided.CreatedAt)

	return domain.VoidOrderResponse{
		OrderID:  voided.ID,
		IsVoided: voided.IsVoided,
		VoidedAt: at.Format(time.RFC3339),
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func parseDayRange(fromDate string, toDate string) (time.Time, time.Time, error) {
	var from time.Time
	if strings.TrimSpace(fromDate) == "" {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", fromDate)
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}

	to := from.Add(24 * time.Hour)
	if strings.TrimSpace(toDate) != "" {
		parsed, err := time.Parse("2006-01-02", toDate)
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		// The query range is half-open, so the "to" day itself is included.
		to = parsed.UTC().Add(24 * time.Hour)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, store.ErrInvalidInput
	}
	return from, to, nil
}

func statsCacheKey(from time.Time, to time.Time) string {
	return fmt.Sprintf("stats:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func (s *Service) invalidateStats(ctx context.Context, at time.Time) {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	key := statsCacheKey(day, day.Add(24*time.Hour))
	if err := s.statsCache.Invalidate(ctx, key); err != nil {
		log.Printf("[service] WARN: stats cache invalidate failed key=%s: %v", key, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
