package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kasbuku/backend/internal/cache"
	"kasbuku/backend/internal/domain"
	"kasbuku/backend/internal/reconcile"
	"kasbuku/backend/internal/store"
	"kasbuku/backend/internal/store/memory"
)

func newTestService() *Service {
	return newTestServiceWithWindow(15 * time.Minute)
}

func newTestServiceWithWindow(editWindow time.Duration) *Service {
	repo := memory.NewSeeded()
	engine := reconcile.NewEngine(reconcile.Pricing{CardDiscountCents: 200})
	return New(repo, engine, cache.NoopStatsCache{}, editWindow, 30*time.Second)
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "kasir",
		Role:     "cashier",
	})
}

func openSession(t *testing.T, svc *Service, ctx context.Context) string {
	t.Helper()
	opened, err := svc.OpenRegisterSession(ctx, domain.SessionOpenRequest{Notes: "morning shift"})
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	return opened.Session.ID
}

func TestRecordOrderRequiresOpenSession(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	_, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without an open session, got %v", err)
	}
}

func TestRecordOrderComputesTotals(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openSession(t, svc, ctx)

	resp, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		CardDiscountCount: 1,
		Lines: []domain.OrderLineRequest{
			{ProductID: "prod-kopi-susu", Quantity: 2},
			{ProductID: "prod-es-teh", Quantity: 1, IsTreat: true},
		},
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}

	if resp.Order.TotalAmountCents != 4400 {
		t.Fatalf("expected subtotal 4400, got %d", resp.Order.TotalAmountCents)
	}
	if resp.Order.FinalAmountCents != 4200 {
		t.Fatalf("expected final 4200 after one coupon, got %d", resp.Order.FinalAmountCents)
	}
	if resp.Totals.TreatsValueCents != 1200 {
		t.Fatalf("expected treat value 1200, got %d", resp.Totals.TreatsValueCents)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(resp.Items))
	}
	if resp.Order.CreatedBy != "kasir" {
		t.Fatalf("expected order stamped with actor, got %q", resp.Order.CreatedBy)
	}
}

func TestRecordOrderRejectsUnknownProduct(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openSession(t, svc, ctx)

	_, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-missing", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown product, got %v", err)
	}
}

func TestOpenSessionRejectsSecondActive(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openSession(t, svc, ctx)

	_, err := svc.OpenRegisterSession(ctx, domain.SessionOpenRequest{})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected second open to fail, got %v", err)
	}
}

func TestOverviewGroupsSalesAndStats(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openSession(t, svc, ctx)

	if _, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	}); err != nil {
		t.Fatalf("cash order failed: %v", err)
	}
	if _, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		CardDiscountCount: 1,
		Lines:             []domain.OrderLineRequest{{ProductID: "prod-es-teh", Quantity: 2}},
	}); err != nil {
		t.Fatalf("card order failed: %v", err)
	}

	overview, err := svc.Overview(ctx, sessionID)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}

	if len(overview.Sales) != 2 {
		t.Fatalf("expected 2 grouped sales, got %d", len(overview.Sales))
	}
	if overview.Stats.TotalCashCents != 2200 {
		t.Fatalf("expected cash total 2200, got %d", overview.Stats.TotalCashCents)
	}
	if overview.Stats.TotalCardCents != 2200 {
		t.Fatalf("expected card total 2200 (2400 minus one coupon), got %d", overview.Stats.TotalCardCents)
	}
	if overview.Stats.CardCount != 1 {
		t.Fatalf("expected one card sale, got %d", overview.Stats.CardCount)
	}
}

func TestCloseSessionFreezesSnapshotAndRejectsSecondClose(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openSession(t, svc, ctx)

	if _, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		CardDiscountCount: 1,
		Lines: []domain.OrderLineRequest{
			{ProductID: "prod-kopi-susu", Quantity: 2},
			{ProductID: "prod-es-teh", Quantity: 1, IsTreat: true},
		},
	}); err != nil {
		t.Fatalf("record order failed: %v", err)
	}

	closed, err := svc.CloseRegisterSession(ctx, domain.SessionCloseRequest{SessionID: sessionID})
	if err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if closed.Session.Status != domain.SessionStatusClosed {
		t.Fatalf("expected closed status, got %s", closed.Session.Status)
	}
	if closed.Session.Snapshot == nil {
		t.Fatal("expected closing snapshot to be frozen")
	}
	if closed.Session.Snapshot.ItemsSold != 2 {
		t.Fatalf("expected 2 items sold (treat excluded), got %d", closed.Session.Snapshot.ItemsSold)
	}
	if closed.Session.Snapshot.CouponsUsed != 1 {
		t.Fatalf("expected 1 coupon used, got %d", closed.Session.Snapshot.CouponsUsed)
	}
	if closed.Session.Snapshot.TreatItemsSold != 1 {
		t.Fatalf("expected 1 treat item, got %d", closed.Session.Snapshot.TreatItemsSold)
	}
	if closed.Session.Snapshot.TotalAmountCents != 4200 {
		t.Fatalf("expected snapshot total 4200, got %d", closed.Session.Snapshot.TotalAmountCents)
	}

	_, err = svc.CloseRegisterSession(ctx, domain.SessionCloseRequest{SessionID: sessionID})
	if !errors.Is(err, store.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on second close, got %v", err)
	}

	got, err := svc.repo.GetSessionByID(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if got.Snapshot == nil || got.Snapshot.TotalAmountCents != 4200 {
		t.Fatalf("first snapshot overwritten by rejected close: %+v", got.Snapshot)
	}
}

func TestRecordOrderRejectsClosedSession(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openSession(t, svc, ctx)

	if _, err := svc.CloseRegisterSession(ctx, domain.SessionCloseRequest{SessionID: sessionID}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	_, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		RegisterSessionID: sessionID,
		Lines:             []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestEditLineItemStampsOriginalsOnce(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openSession(t, svc, ctx)

	resp, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}
	itemID := resp.Items[0].ID

	qty := 3
	edited, err := svc.EditSaleLineItem(ctx, itemID, domain.EditSaleLineItemRequest{Quantity: &qty})
	if err != nil {
		t.Fatalf("first edit failed: %v", err)
	}
	if !edited.IsEdited {
		t.Fatal("expected item marked edited")
	}
	if edited.OriginalQuantity != 1 || edited.OriginalProductName != "Kopi Susu" {
		t.Fatalf("expected originals 1/Kopi Susu, got %d/%s", edited.OriginalQuantity, edited.OriginalProductName)
	}
	if edited.TotalPriceCents != 6600 {
		t.Fatalf("expected recomputed line total 6600, got %d", edited.TotalPriceCents)
	}

	productID := "prod-es-teh"
	edited, err = svc.EditSaleLineItem(ctx, itemID, domain.EditSaleLineItemRequest{ProductID: &productID})
	if err != nil {
		t.Fatalf("second edit failed: %v", err)
	}
	if edited.OriginalQuantity != 1 || edited.OriginalProductName != "Kopi Susu" {
		t.Fatalf("second edit must not overwrite originals, got %d/%s", edited.OriginalQuantity, edited.OriginalProductName)
	}
	if edited.UnitPriceCents != 1200 {
		t.Fatalf("expected unit price repriced to 1200, got %d", edited.UnitPriceCents)
	}

	order, err := svc.repo.GetOrderByID(context.Background(), edited.OrderID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if order.TotalAmountCents != 3600 {
		t.Fatalf("expected order subtotal recomputed to 3600, got %d", order.TotalAmountCents)
	}
}

func TestEditOutsideWindowFails(t *testing.T) {
	svc := newTestServiceWithWindow(time.Nanosecond)
	ctx := cashierCtx()
	openSession(t, svc, ctx)

	resp, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	qty := 2
	_, err = svc.EditSaleLineItem(ctx, resp.Items[0].ID, domain.EditSaleLineItemRequest{Quantity: &qty})
	if !errors.Is(err, ErrEditWindowExpired) {
		t.Fatalf("expected ErrEditWindowExpired, got %v", err)
	}
}

func TestSoftDeleteRecomputesOrderAndRejectsRepeat(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openSession(t, svc, ctx)

	resp, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{
			{ProductID: "prod-kopi-susu", Quantity: 1},
			{ProductID: "prod-es-teh", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}
	itemID := resp.Items[1].ID

	deleted, err := svc.SoftDeleteSaleLineItem(ctx, itemID)
	if err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	if !deleted.IsDeleted {
		t.Fatal("expected item marked deleted")
	}

	order, err := svc.repo.GetOrderByID(context.Background(), resp.Order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if order.TotalAmountCents != 2200 {
		t.Fatalf("expected subtotal 2200 after delete, got %d", order.TotalAmountCents)
	}

	if _, err := svc.SoftDeleteSaleLineItem(ctx, itemID); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on repeat delete, got %v", err)
	}

	// Deleted line stays visible in the audit-facing product summary.
	summary, err := svc.ProductSummaryReport(ctx, "", "")
	if err != nil {
		t.Fatalf("product summary failed: %v", err)
	}
	deletedKey := "deleted-prod-es-teh-" + itemID
	if _, ok := summary.Summary[deletedKey]; !ok {
		t.Fatalf("expected synthetic entry %s in summary, got %v", deletedKey, summary.Summary)
	}

	overview, err := svc.Overview(ctx, sessionID)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if overview.Stats.TotalCashCents != 2200 {
		t.Fatalf("deleted item leaked into totals: %d", overview.Stats.TotalCashCents)
	}
}

func TestVoidOrderExcludedFromStats(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	sessionID := openSession(t, svc, ctx)

	resp, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}

	voided, err := svc.VoidOrder(ctx, resp.Order.ID, domain.VoidOrderRequest{Reason: "wrong order"})
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if !voided.IsVoided {
		t.Fatal("expected order voided")
	}

	if _, err := svc.VoidOrder(ctx, resp.Order.ID, domain.VoidOrderRequest{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on double void, got %v", err)
	}

	overview, err := svc.Overview(ctx, sessionID)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if overview.Stats.TotalCashCents != 0 || overview.Stats.TotalCardCents != 0 {
		t.Fatalf("voided order leaked into stats: %+v", overview.Stats)
	}
	if len(overview.Sales) != 1 || !overview.Sales[0].Sale.IsVoided {
		t.Fatalf("voided sale should stay visible in overview: %+v", overview.Sales)
	}
}

func TestAuditLogsWrittenForMutations(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openSession(t, svc, ctx)

	resp, err := svc.RecordOrder(ctx, domain.RecordOrderRequest{
		Lines: []domain.OrderLineRequest{{ProductID: "prod-kopi-susu", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}
	if _, err := svc.VoidOrder(ctx, resp.Order.ID, domain.VoidOrderRequest{Reason: "test"}); err != nil {
		t.Fatalf("void failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "", 100)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}

	actions := make(map[string]bool)
	for _, entry := range logs {
		actions[entry.Action] = true
		if entry.ActorUsername != "kasir" {
			t.Fatalf("expected actor kasir on %s, got %s", entry.Action, entry.ActorUsername)
		}
	}
	for _, want := range []string{"session_open", "order_record", "order_void"} {
		if !actions[want] {
			t.Fatalf("expected audit action %s, have %v", want, actions)
		}
	}
}

func TestRangeStatsRejectsBadDate(t *testing.T) {
	svc := newTestService()

	if _, err := svc.RangeStats(context.Background(), "not-a-date", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
