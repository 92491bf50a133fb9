package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/eventhub/internal/models"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(time.Time(a))
}

func TestGormStore_AddSoldCountIsGuarded(t *testing.T) {
	tests := []struct {
		name     string
		delta    int
		affected int64
		wantErr  error
	}{
		{"reserve", 2, 1, nil},
		{"oversell", 2, 0, ErrConflict},
		{"release below zero", -3, 0, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mock := newMockStore(t)
			ctx := context.Background()
			tierID := uuid.New()

			mock.ExpectBegin()
			mock.ExpectExec(`UPDATE "ticket_tiers" SET "sold_count"=sold_count \+ \$1,"updated_at"=\$2 WHERE id = \$3 AND sold_count \+ \$4 >= 0 AND sold_count \+ \$5 <= quota`).
				WithArgs(tt.delta, sqlmock.AnyArg(), tierID, tt.delta, tt.delta).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.wantErr == nil {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := st.WithTx(ctx, func(uow UnitOfWork) error {
				return uow.AddSoldCount(ctx, tierID, tt.delta)
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_AddVoucherUsageRespectsMaxUsage(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	voucherID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "event_vouchers" SET "updated_at"=\$1,"used_count"=used_count \+ \$2 WHERE id = \$3 AND used_count \+ \$4 >= 0 AND used_count \+ \$5 <= max_usage`).
		WithArgs(sqlmock.AnyArg(), 1, voucherID, 1, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := st.WithTx(ctx, func(uow UnitOfWork) error {
		return uow.AddVoucherUsage(ctx, voucherID, 1)
	})
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LockTicketTierTakesRowLock(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	tierID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "ticket_tiers" WHERE id = \$1 .*FOR UPDATE`).
		WithArgs(tierID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := st.WithTx(ctx, func(uow UnitOfWork) error {
		_, err := uow.LockTicketTier(ctx, tierID)
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LockTransactionLoadsItemsInTierOrder(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	txnID := uuid.New()
	tierA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	tierB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions" WHERE id = \$1 .*FOR UPDATE`).
		WithArgs(txnID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payment_status"}).
			AddRow(txnID.String(), string(models.StatusWaitingForPayment)))
	mock.ExpectQuery(`SELECT \* FROM "transaction_items" WHERE transaction_id = \$1 ORDER BY ticket_tier_id asc`).
		WithArgs(txnID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "ticket_tier_id", "quantity"}).
			AddRow(uuid.NewString(), txnID.String(), tierA.String(), 1).
			AddRow(uuid.NewString(), txnID.String(), tierB.String(), 2))
	mock.ExpectCommit()

	var txn *models.Transaction
	err := st.WithTx(ctx, func(uow UnitOfWork) error {
		var err error
		txn, err = uow.LockTransaction(ctx, txnID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForPayment, txn.PaymentStatus)
	require.Len(t, txn.Items, 2)
	assert.Equal(t, tierA, txn.Items[0].TicketTierID)
	assert.Equal(t, 2, txn.Items[1].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateTransactionPersistsLifecycleColumns(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	released := time.Date(2025, 6, 1, 11, 5, 0, 0, time.UTC)
	txn := &models.Transaction{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		PaymentStatus: models.StatusExpired,
		ReleasedAt:    &released,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "transactions" SET "updated_at"=\$1,"payment_status"=\$2,"confirmation_deadline"=\$3,"payment_proof_url"=\$4,"proof_uploaded_at"=\$5,"confirmed_at"=\$6,"released_at"=\$7 WHERE .*"id" = \$8`).
		WithArgs(
			sqlmock.AnyArg(),
			models.StatusExpired,
			nil,
			nil,
			nil,
			nil,
			timeArg(released),
			txn.ID,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.WithTx(ctx, func(uow UnitOfWork) error {
		return uow.UpdateTransaction(ctx, txn)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListOverdueUsesStatusDeadline(t *testing.T) {
	tests := []struct {
		status models.PaymentStatus
		column string
	}{
		{models.StatusWaitingForPayment, "payment_deadline"},
		{models.StatusWaitingForAdminConfirmation, "confirmation_deadline"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			st, mock := newMockStore(t)
			ctx := context.Background()
			now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
			first, second := uuid.New(), uuid.New()

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT "id" FROM "transactions" WHERE .*payment_status = \$1 AND ` + tt.column + ` < \$2.*"deleted_at" IS NULL ORDER BY ` + tt.column + ` asc`).
				WithArgs(tt.status, now).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).
					AddRow(first.String()).
					AddRow(second.String()))
			mock.ExpectCommit()

			var ids []uuid.UUID
			err := st.WithTx(ctx, func(uow UnitOfWork) error {
				var err error
				ids, err = uow.ListOverdue(ctx, tt.status, now)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{first, second}, ids)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_ListOverdueRejectsStatusWithoutDeadline(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := st.WithTx(ctx, func(uow UnitOfWork) error {
		_, err := uow.ListOverdue(ctx, models.StatusDone, time.Now())
		return err
	})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListTransactionsScopesToOrganizerEvents(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	organizerID := uuid.New()
	txnID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "transactions" WHERE event_id IN \(SELECT "id" FROM "events" WHERE organizer_id = \$1.*\) AND "transactions"\."deleted_at" IS NULL`).
		WithArgs(organizerID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`SELECT \* FROM "transactions" WHERE event_id IN \(SELECT "id" FROM "events" WHERE organizer_id = \$1.*\) AND "transactions"\."deleted_at" IS NULL ORDER BY created_at desc LIMIT \$2 OFFSET \$3`).
		WithArgs(organizerID, 20, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_number", "payment_status"}).
			AddRow(txnID.String(), "INV-20250601-ABC123", string(models.StatusDone)))
	mock.ExpectQuery(`SELECT \* FROM "transaction_items" WHERE "transaction_items"\."transaction_id" = \$1`).
		WithArgs(txnID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "quantity"}).
			AddRow(uuid.NewString(), txnID.String(), 3))
	mock.ExpectCommit()

	var (
		txns  []models.Transaction
		total int64
	)
	err := st.WithTx(ctx, func(uow UnitOfWork) error {
		var err error
		txns, total, err = uow.ListTransactions(ctx, TransactionFilter{
			OrganizerID: organizerID,
			Limit:       20,
			Offset:      20,
		})
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 21, total)
	require.Len(t, txns, 1)
	assert.Equal(t, "INV-20250601-ABC123", txns[0].InvoiceNumber)
	require.Len(t, txns[0].Items, 1)
	assert.Equal(t, 3, txns[0].Items[0].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}
