package store

import (
	"context"
	"errors"
	"time"

	"kasirkas/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrVersionConflict is returned by compare-and-swap updates when the
	// stored version differs from the expected one.
	ErrVersionConflict = errors.New("version conflict")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment) error

	// CreateSale persists a sale. A completed sale deducts its stock in the
	// same unit of work.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error)
	// ReviewSale moves a sale from one status to another, deducting stock
	// when the target is completed.
	ReviewSale(ctx context.Context, id string, from string, to string, reviewedBy string, at time.Time) (*domain.Sale, error)
	// DeleteSale removes a sale and restores stock if it was completed.
	DeleteSale(ctx context.Context, id string) (*domain.Sale, error)

	CreateCashCount(ctx context.Context, cc domain.CashCount) error
	GetCashCount(ctx context.Context, id string) (*domain.CashCount, error)
	ListCashCounts(ctx context.Context, status string) ([]domain.CashCount, error)
	UpdateCashCount(ctx context.Context, cc domain.CashCount, expectedVersion int) error

	CreateWithdrawal(ctx context.Context, w domain.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error)
	ListWithdrawals(ctx context.Context, filter domain.RecordFilter) ([]domain.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w domain.Withdrawal, expectedVersion int) error

	CreateCustomPayment(ctx context.Context, p domain.CustomPayment) error
	GetCustomPayment(ctx context.Context, id string) (*domain.CustomPayment, error)
	ListCustomPayments(ctx context.Context, filter domain.RecordFilter) ([]domain.CustomPayment, error)
	UpdateCustomPayment(ctx context.Context, p domain.CustomPayment, expectedVersion int) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, id string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, id string, password string) error
}
