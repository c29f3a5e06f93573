package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasbuku/backend/internal/domain"
	"kasbuku/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, active
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order, items []domain.SaleLineItem) (*domain.Order, error) {
	if order.ID == "" || order.RegisterSessionID == "" || len(items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, register_session_id, total_amount_cents, final_amount_cents,
			card_discount_count, is_voided, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,false,$6,$7)
	`, order.ID, order.RegisterSessionID, order.TotalAmountCents, order.FinalAmountCents, order.CardDiscountCount, order.CreatedBy, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_line_items (
				id, order_id, product_id, product_name, quantity,
				unit_price_cents, total_price_cents, is_treat, is_deleted, is_edited,
				original_product_name, original_quantity, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,false,null,null,$9,now())
		`, item.ID, order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents, item.TotalPriceCents, item.IsTreat, item.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, register_session_id, total_amount_cents, final_amount_cents,
		       card_discount_count, is_voided, created_by, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.RegisterSessionID, &order.TotalAmountCents, &order.FinalAmountCents,
		&order.CardDiscountCount, &order.IsVoided, &order.CreatedBy, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	return &order, nil
}

func (s *Store) ListOrdersBySession(ctx context.Context, sessionID string) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, register_session_id, total_amount_cents, final_amount_cents,
		       card_discount_count, is_voided, created_by, created_at
		FROM orders
		WHERE register_session_id = $1
		ORDER BY created_at DESC
	`, sessionID)
}

func (s *Store) ListOrdersByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, register_session_id, total_amount_cents, final_amount_cents,
		       card_discount_count, is_voided, created_by, created_at
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`, from, to)
}

func (s *Store) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.RegisterSessionID, &order.TotalAmountCents, &order.FinalAmountCents,
			&order.CardDiscountCount, &order.IsVoided, &order.CreatedBy, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.CreatedAt = order.CreatedAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpdateOrderAmounts(ctx context.Context, orderID string, totalCents int64, finalCents int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET total_amount_cents = $2, final_amount_cents = $3
		WHERE id = $1
	`, orderID, totalCents, finalCents)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) VoidOrder(ctx context.Context, id string, _ time.Time) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET is_voided = true
		WHERE id = $1 AND is_voided = false
	`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish missing from already voided.
		if _, err := s.GetOrderByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidInput
	}

	return s.GetOrderByID(ctx, id)
}

const saleRowSelect = `
	SELECT i.id, i.order_id, i.product_id, i.product_name, i.quantity,
	       i.unit_price_cents, i.total_price_cents, i.is_treat, i.is_deleted, i.is_edited,
	       i.original_product_name, i.original_quantity, i.created_at
	FROM sale_line_items i
	LEFT JOIN orders o ON o.id = i.order_id
`

func (s *Store) ListSaleRowsBySession(ctx context.Context, sessionID string) ([]domain.RawSaleRow, error) {
	return s.listSaleRows(ctx, saleRowSelect+`
		WHERE o.register_session_id = $1
		ORDER BY i.created_at, i.id
	`, sessionID)
}

func (s *Store) ListSaleRowsByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.RawSaleRow, error) {
	return s.listSaleRows(ctx, saleRowSelect+`
		WHERE o.created_at >= $1 AND o.created_at < $2
		ORDER BY i.created_at, i.id
	`, from, to)
}

func (s *Store) listSaleRows(ctx context.Context, query string, args ...any) ([]domain.RawSaleRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.RawSaleRow, 0, 64)
	for rows.Next() {
		var (
			row          domain.RawSaleRow
			orderID      sql.NullString
			productID    sql.NullString
			productName  sql.NullString
			quantity     sql.NullInt64
			unitPrice    sql.NullInt64
			totalPrice   sql.NullInt64
			isTreat      sql.NullBool
			isDeleted    sql.NullBool
			isEdited     sql.NullBool
			originalName sql.NullString
			originalQty  sql.NullInt64
			createdAt    sql.NullTime
		)
		if err := rows.Scan(&row.ID, &orderID, &productID, &productName, &quantity,
			&unitPrice, &totalPrice, &isTreat, &isDeleted, &isEdited,
			&originalName, &originalQty, &createdAt); err != nil {
			return nil, err
		}
		row.OrderID = nullStringPtr(orderID)
		row.ProductID = nullStringPtr(productID)
		row.ProductName = nullStringPtr(productName)
		row.Quantity = nullIntPtr(quantity)
		row.UnitPriceCents = nullInt64Ptr(unitPrice)
		row.TotalPriceCents = nullInt64Ptr(totalPrice)
		row.IsTreat = nullBoolPtr(isTreat)
		row.IsDeleted = nullBoolPtr(isDeleted)
		row.IsEdited = nullBoolPtr(isEdited)
		row.OriginalProductName = nullStringPtr(originalName)
		row.OriginalQuantity = nullIntPtr(originalQty)
		row.CreatedAt = nullTimePtr(createdAt)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSaleLineItem(ctx context.Context, id string) (*domain.SaleLineItem, error) {
	var (
		item         domain.SaleLineItem
		originalName sql.NullString
		originalQty  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity,
		       unit_price_cents, total_price_cents, is_treat, is_deleted, is_edited,
		       original_product_name, original_quantity, created_at
		FROM sale_line_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity,
		&item.UnitPriceCents, &item.TotalPriceCents, &item.IsTreat, &item.IsDeleted, &item.IsEdited,
		&originalName, &originalQty, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.OriginalProductName = originalName.String
	item.OriginalQuantity = int(originalQty.Int64)
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) UpdateSaleLineItem(ctx context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_line_items
		SET product_id = $2, product_name = $3, quantity = $4,
		    unit_price_cents = $5, total_price_cents = $6, is_edited = $7,
		    original_product_name = $8, original_quantity = $9, updated_at = now()
		WHERE id = $1
	`, item.ID, item.ProductID, item.ProductName, item.Quantity,
		item.UnitPriceCents, item.TotalPriceCents, item.IsEdited,
		nullIfEmpty(item.OriginalProductName), nullIfZero(item.OriginalQuantity))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSaleLineItem(ctx, item.ID)
}

func (s *Store) SoftDeleteSaleLineItem(ctx context.Context, id string) (*domain.SaleLineItem, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_line_items
		SET is_deleted = true, updated_at = now()
		WHERE id = $1 AND is_deleted = false
	`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetSaleLineItem(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidInput
	}
	return s.GetSaleLineItem(ctx, id)
}

func (s *Store) CreateRegisterSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if session.ID == "" || session.OpenedBy == "" {
		return nil, store.ErrInvalidInput
	}

	session.Status = domain.SessionStatusOpen
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO register_sessions (id, status, opened_at, opened_by, notes)
		VALUES ($1,$2,$3,$4,$5)
	`, session.ID, session.Status, session.OpenedAt, session.OpenedBy, nullIfEmpty(session.Notes))
	if err != nil {
		// A partial unique index on status='open' enforces one active session.
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := session
	return &created, nil
}

const sessionSelect = `
	SELECT id, status, opened_at, closed_at, opened_by, closed_by, notes,
	       items_sold, coupons_used, treat_items_sold, total_amount_cents
	FROM register_sessions
`

func (s *Store) GetActiveSession(ctx context.Context) (*domain.RegisterSession, error) {
	return s.getSession(ctx, sessionSelect+`WHERE status = $1 ORDER BY opened_at DESC LIMIT 1`, domain.SessionStatusOpen)
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (*domain.RegisterSession, error) {
	return s.getSession(ctx, sessionSelect+`WHERE id = $1`, id)
}

func (s *Store) getSession(ctx context.Context, query string, args ...any) (*domain.RegisterSession, error) {
	var (
		session    domain.RegisterSession
		closedAt   sql.NullTime
		closedBy   sql.NullString
		notes      sql.NullString
		itemsSold  sql.NullInt64
		coupons    sql.NullInt64
		treatsSold sql.NullInt64
		total      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&session.ID, &session.Status, &session.OpenedAt, &closedAt, &session.OpenedBy,
		&closedBy, &notes, &itemsSold, &coupons, &treatsSold, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	session.OpenedAt = session.OpenedAt.UTC()
	session.ClosedBy = closedBy.String
	session.Notes = notes.String
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
		session.Snapshot = &domain.ClosingSnapshot{
			ItemsSold:        int(itemsSold.Int64),
			CouponsUsed:      int(coupons.Int64),
			TreatItemsSold:   int(treatsSold.Int64),
			TotalAmountCents: total.Int64,
		}
	}
	return &session, nil
}

func (s *Store) CloseRegisterSession(ctx context.Context, id string, closedBy string, notes string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.RegisterSession, error) {
	// Compare-and-swap on closed_at so two concurrent closes cannot both
	// succeed and freeze conflicting snapshots.
	res, err := s.db.ExecContext(ctx, `
		UPDATE register_sessions
		SET status = $2, closed_at = $3, closed_by = $4, notes = COALESCE($5, notes),
		    items_sold = $6, coupons_used = $7, treat_items_sold = $8, total_amount_cents = $9
		WHERE id = $1 AND closed_at IS NULL
	`, id, domain.SessionStatusClosed, closedAt, closedBy, nullIfEmpty(notes),
		snapshot.ItemsSold, snapshot.CouponsUsed, snapshot.TreatItemsSold, snapshot.TotalAmountCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetSessionByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrSessionClosed
	}

	return s.GetSessionByID(ctx, id)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullIfZero(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
