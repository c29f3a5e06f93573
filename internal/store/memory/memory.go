package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasbuku/backend/internal/domain"
	"kasbuku/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ordersByID      map[string]domain.Order
	itemsByID       map[string]domain.SaleLineItem
	itemIDsByOrder  map[string][]string
	sessionsByID    map[string]domain.RegisterSession
	activeSessionID string
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD. If
// unset, hardcoded dev defaults are used with a warning. The memory store
// is never used in production (Postgres is selected when DATABASE_URL is
// set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-kopi-susu", Name: "Kopi Susu", Category: "beverage", PriceCents: 2200, Active: true},
		{ID: "prod-es-teh", Name: "Es Teh Manis", Category: "beverage", PriceCents: 1200, Active: true},
		{ID: "prod-americano", Name: "Americano", Category: "beverage", PriceCents: 2000, Active: true},
		{ID: "prod-roti-bakar", Name: "Roti Bakar", Category: "food", PriceCents: 2800, Active: true},
		{ID: "prod-pisang-goreng", Name: "Pisang Goreng", Category: "food", PriceCents: 1800, Active: true},
		{ID: "prod-nasi-goreng", Name: "Nasi Goreng", Category: "food", PriceCents: 4500, Active: true},
		{ID: "prod-croissant", Name: "Croissant", Category: "bakery", PriceCents: 3200, Active: true},
		{ID: "prod-air-mineral", Name: "Air Mineral", Category: "beverage", PriceCents: 800, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		ordersByID:      make(map[string]domain.Order),
		itemsByID:       make(map[string]domain.SaleLineItem),
		itemIDsByOrder:  make(map[string][]string),
		sessionsByID:    make(map[string]domain.RegisterSession),
		auditLogs:       make([]domain.AuditLog, 0, 64),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category == products[j].Category {
			return products[i].Name < products[j].Name
		}
		return products[i].Category < products[j].Category
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, items []domain.SaleLineItem) (*domain.Order, error) {
	if order.ID == "" || order.RegisterSessionID == "" || len(items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrInvalidInput
	}

	s.ordersByID[order.ID] = order
	ids := make([]string, 0, len(items))
	for _, item := range items {
		item.OrderID = order.ID
		s.itemsByID[item.ID] = item
		ids = append(ids, item.ID)
	}
	s.itemIDsByOrder[order.ID] = ids

	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := order
	return &found, nil
}

func (s *Store) ListOrdersBySession(_ context.Context, sessionID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 16)
	for _, order := range s.ordersByID {
		if order.RegisterSessionID == sessionID {
			orders = append(orders, order)
		}
	}
	sortOrders(orders)
	return orders, nil
}

func (s *Store) ListOrdersByRange(_ context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 16)
	for _, order := range s.ordersByID {
		if !order.CreatedAt.Before(from) && order.CreatedAt.Before(to) {
			orders = append(orders, order)
		}
	}
	sortOrders(orders)
	return orders, nil
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func (s *Store) UpdateOrderAmounts(_ context.Context, orderID string, totalCents int64, finalCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.TotalAmountCents = totalCents
	order.FinalAmountCents = finalCents
	s.ordersByID[orderID] = order
	return nil
}

func (s *Store) VoidOrder(_ context.Context, id string, _ time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.IsVoided {
		return nil, store.ErrInvalidInput
	}
	order.IsVoided = true
	s.ordersByID[id] = order

	voided := order
	return &voided, nil
}

func (s *Store) ListSaleRowsBySession(ctx context.Context, sessionID string) ([]domain.RawSaleRow, error) {
	orders, err := s.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.rowsForOrders(orders), nil
}

func (s *Store) ListSaleRowsByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.RawSaleRow, error) {
	orders, err := s.ListOrdersByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return s.rowsForOrders(orders), nil
}

func (s *Store) rowsForOrders(orders []domain.Order) []domain.RawSaleRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.RawSaleRow, 0, len(orders)*4)
	for _, order := range orders {
		for _, itemID := range s.itemIDsByOrder[order.ID] {
			item, ok := s.itemsByID[itemID]
			if !ok {
				continue
			}
			rows = append(rows, rawRowFromItem(item))
		}
	}
	return rows
}

func rawRowFromItem(item domain.SaleLineItem) domain.RawSaleRow {
	row := domain.RawSaleRow{
		ID:              item.ID,
		OrderID:         ptrString(item.OrderID),
		ProductID:       ptrString(item.ProductID),
		ProductName:     ptrString(item.ProductName),
		Quantity:        ptrInt(item.Quantity),
		UnitPriceCents:  ptrInt64(item.UnitPriceCents),
		TotalPriceCents: ptrInt64(item.TotalPriceCents),
		IsTreat:         ptrBool(item.IsTreat),
		IsDeleted:       ptrBool(item.IsDeleted),
		IsEdited:        ptrBool(item.IsEdited),
		CreatedAt:       ptrTime(item.CreatedAt),
	}
	if item.OriginalProductName != "" {
		row.OriginalProductName = ptrString(item.OriginalProductName)
	}
	if item.OriginalQuantity > 0 {
		row.OriginalQuantity = ptrInt(item.OriginalQuantity)
	}
	return row
}

func (s *Store) GetSaleLineItem(_ context.Context, id string) (*domain.SaleLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) UpdateSaleLineItem(_ context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.itemsByID[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Order ownership never changes after creation.
	item.OrderID = existing.OrderID
	item.CreatedAt = existing.CreatedAt
	s.itemsByID[item.ID] = item

	updated := item
	return &updated, nil
}

func (s *Store) SoftDeleteSaleLineItem(_ context.Context, id string) (*domain.SaleLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if item.IsDeleted {
		return nil, store.ErrInvalidInput
	}
	item.IsDeleted = true
	s.itemsByID[id] = item

	deleted := item
	return &deleted, nil
}

func (s *Store) CreateRegisterSession(_ context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if session.ID == "" || session.OpenedBy == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeSessionID != "" {
		return nil, store.ErrInvalidInput
	}

	session.Status = domain.SessionStatusOpen
	session.ClosedAt = nil
	session.Snapshot = nil
	s.sessionsByID[session.ID] = session
	s.activeSessionID = session.ID

	created := session
	return &created, nil
}

func (s *Store) GetActiveSession(_ context.Context) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeSessionID == "" {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[s.activeSessionID]
	found := session
	return &found, nil
}

func (s *Store) GetSessionByID(_ context.Context, id string) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := session
	return &found, nil
}

func (s *Store) CloseRegisterSession(_ context.Context, id string, closedBy string, notes string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.RegisterSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Compare-and-swap on the closed timestamp: closure is terminal.
	if session.ClosedAt != nil {
		return nil, store.ErrSessionClosed
	}

	at := closedAt.UTC()
	frozen := snapshot
	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &at
	session.ClosedBy = closedBy
	if strings.TrimSpace(notes) != "" {
		session.Notes = strings.TrimSpace(notes)
	}
	session.Snapshot = &frozen
	s.sessionsByID[id] = session
	if s.activeSessionID == id {
		s.activeSessionID = ""
	}

	closed := session
	return &closed, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func ptrString(v string) *string { return &v }

func ptrInt(v int) *int { return &v }

func ptrInt64(v int64) *int64 { return &v }

func ptrBool(v bool) *bool { return &v }

func ptrTime(v time.Time) *time.Time { return &v }
