package store

import (
	"context"
	"errors"
	"time"

	"kasbuku/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionClosed = errors.New("register session already closed")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)

	CreateOrder(ctx context.Context, order domain.Order, items []domain.SaleLineItem) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersBySession(ctx context.Context, sessionID string) ([]domain.Order, error)
	ListOrdersByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error)
	UpdateOrderAmounts(ctx context.Context, orderID string, totalCents int64, finalCents int64) error
	VoidOrder(ctx context.Context, id string, at time.Time) (*domain.Order, error)

	ListSaleRowsBySession(ctx context.Context, sessionID string) ([]domain.RawSaleRow, error)
	ListSaleRowsByRange(ctx context.Context, from time.Time, to time.Time) ([]domain.RawSaleRow, error)
	GetSaleLineItem(ctx context.Context, id string) (*domain.SaleLineItem, error)
	UpdateSaleLineItem(ctx context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error)
	SoftDeleteSaleLineItem(ctx context.Context, id string) (*domain.SaleLineItem, error)

	CreateRegisterSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error)
	GetActiveSession(ctx context.Context) (*domain.RegisterSession, error)
	GetSessionByID(ctx context.Context, id string) (*domain.RegisterSession, error)
	CloseRegisterSession(ctx context.Context, id string, closedBy string, notes string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.RegisterSession, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
