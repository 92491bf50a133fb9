// Package store defines the atomic unit of work the ticketing core runs in,
// with a gorm/postgres implementation and an in-memory one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/eventhub/internal/models"
)

var (
	// ErrNotFound is returned when a record is absent or soft-deleted.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a guarded update matched no rows.
	ErrConflict = errors.New("store: guarded update rejected")
)

// Store opens units of work.
type Store interface {
	// WithTx runs fn as one atomic unit: every write commits when fn returns
	// nil and none do when it returns an error or panics.
	WithTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	UserID      uuid.UUID
	OrganizerID uuid.UUID
	EventID     uuid.UUID
	Status      models.PaymentStatus
	Limit       int
	Offset      int
}

// UnitOfWork is the set of storage operations available inside one atomic
// unit. Lock* methods take a row lock held until the unit ends.
type UnitOfWork interface {
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindOrganizerByUser(ctx context.Context, userID uuid.UUID) (*models.Organizer, error)
	FindEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)

	LockTicketTier(ctx context.Context, id uuid.UUID) (*models.TicketTier, error)
	ListTicketTiers(ctx context.Context, ids []uuid.UUID) ([]models.TicketTier, error)
	// AddSoldCount adds delta to the tier's sold count. It returns
	// ErrConflict when the result would leave [0, quota].
	AddSoldCount(ctx context.Context, tierID uuid.UUID, delta int) error

	// ListSpendablePoints returns unused, unexpired grants ordered by
	// ascending expiry, locked.
	ListSpendablePoints(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.UserPoint, error)
	SetPointBalance(ctx context.Context, id uuid.UUID, amount int64, isUsed bool) error
	// RestorePoints credits amount back to a grant and marks it unused.
	RestorePoints(ctx context.Context, id uuid.UUID, amount int64) error
	CreatePointUsage(ctx context.Context, usage *models.PointUsage) error
	ListPointUsages(ctx context.Context, transactionID uuid.UUID) ([]models.PointUsage, error)
	DeletePointUsages(ctx context.Context, transactionID uuid.UUID) (int64, error)

	LockUserCoupon(ctx context.Context, id uuid.UUID) (*models.UserCoupon, error)
	// SetCouponUsed marks the coupon used at usedAt, or unused when nil.
	SetCouponUsed(ctx context.Context, id uuid.UUID, usedAt *time.Time) error

	LockEventVoucher(ctx context.Context, id uuid.UUID) (*models.EventVoucher, error)
	// AddVoucherUsage adds delta to used_count. It returns ErrConflict when
	// the result would leave [0, max_usage].
	AddVoucherUsage(ctx context.Context, voucherID uuid.UUID, delta int) error
	CreateVoucherUsage(ctx context.Context, usage *models.EventVoucherUsage) error
	DeleteVoucherUsages(ctx context.Context, transactionID uuid.UUID) (int64, error)

	InvoiceExists(ctx context.Context, invoice string) (bool, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	FindTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	// UpdateTransaction persists the mutable lifecycle columns; items are
	// never rewritten.
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	// ListOverdue returns ids of transactions in status whose deadline for
	// that status is before now.
	ListOverdue(ctx context.Context, status models.PaymentStatus, now time.Time) ([]uuid.UUID, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error)
}
