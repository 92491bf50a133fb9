package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/eventhub/internal/models"
)

func TestMemoryStore_WithTxRestoresStateOnError(t *testing.T) {
	s := NewMemoryStore()
	tier := &models.TicketTier{Name: "Regular", Quota: 5, Price: 1000}
	s.Seed(tier)

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(uow UnitOfWork) error {
		require.NoError(t, uow.AddSoldCount(context.Background(), tier.ID, 3))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithTx(context.Background(), func(uow UnitOfWork) error {
		got, err := uow.LockTicketTier(context.Background(), tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.SoldCount)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_WithTxRestoresStateOnPanic(t *testing.T) {
	s := NewMemoryStore()
	tier := &models.TicketTier{Name: "Regular", Quota: 5}
	s.Seed(tier)

	assert.Panics(t, func() {
		_ = s.WithTx(context.Background(), func(uow UnitOfWork) error {
			_ = uow.AddSoldCount(context.Background(), tier.ID, 2)
			panic("unexpected")
		})
	})

	_ = s.WithTx(context.Background(), func(uow UnitOfWork) error {
		got, err := uow.LockTicketTier(context.Background(), tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.SoldCount)
		return nil
	})
}

func TestMemoryStore_AddSoldCountGuardsBounds(t *testing.T) {
	s := NewMemoryStore()
	tier := &models.TicketTier{Name: "VIP", Quota: 2, SoldCount: 1}
	s.Seed(tier)
	ctx := context.Background()

	_ = s.WithTx(ctx, func(uow UnitOfWork) error {
		assert.ErrorIs(t, uow.AddSoldCount(ctx, tier.ID, 2), ErrConflict)
		assert.ErrorIs(t, uow.AddSoldCount(ctx, tier.ID, -2), ErrConflict)
		assert.NoError(t, uow.AddSoldCount(ctx, tier.ID, 1))
		assert.ErrorIs(t, uow.AddSoldCount(ctx, uuid.New(), 1), ErrConflict)
		return nil
	})
}

func TestMemoryStore_ListSpendablePointsOrdersByExpiry(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	now := time.Now()
	late := &models.UserPoint{UserID: userID, Amount: 100, ExpiredAt: now.Add(48 * time.Hour)}
	early := &models.UserPoint{UserID: userID, Amount: 100, ExpiredAt: now.Add(24 * time.Hour)}
	expired := &models.UserPoint{UserID: userID, Amount: 100, ExpiredAt: now.Add(-time.Hour)}
	used := &models.UserPoint{UserID: userID, Amount: 0, IsUsed: true, ExpiredAt: now.Add(time.Hour)}
	other := &models.UserPoint{UserID: uuid.New(), Amount: 100, ExpiredAt: now.Add(time.Hour)}
	s.Seed(late, early, expired, used, other)

	_ = s.WithTx(context.Background(), func(uow UnitOfWork) error {
		points, err := uow.ListSpendablePoints(context.Background(), userID, now)
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, early.ID, points[0].ID)
		assert.Equal(t, late.ID, points[1].ID)
		return nil
	})
}

func TestMemoryStore_ListOverdue(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	overdue := &models.Transaction{PaymentStatus: models.StatusWaitingForPayment, PaymentDeadline: past}
	pending := &models.Transaction{PaymentStatus: models.StatusWaitingForPayment, PaymentDeadline: future}
	unconfirmed := &models.Transaction{PaymentStatus: models.StatusWaitingForAdminConfirmation, PaymentDeadline: past, ConfirmationDeadline: &past}
	done := &models.Transaction{PaymentStatus: models.StatusDone, PaymentDeadline: past}
	s.Seed(overdue, pending, unconfirmed, done)

	_ = s.WithTx(context.Background(), func(uow UnitOfWork) error {
		ids, err := uow.ListOverdue(context.Background(), models.StatusWaitingForPayment, now)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{overdue.ID}, ids)

		ids, err = uow.ListOverdue(context.Background(), models.StatusWaitingForAdminConfirmation, now)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{unconfirmed.ID}, ids)

		_, err = uow.ListOverdue(context.Background(), models.StatusDone, now)
		assert.Error(t, err)
		return nil
	})
}

func TestMemoryStore_ListTransactionsFiltersAndPaginates(t *testing.T) {
	s := NewMemoryStore()
	organizer := &models.Organizer{UserID: uuid.New()}
	s.Seed(organizer)
	mine := &models.Event{OrganizerID: organizer.ID}
	theirs := &models.Event{OrganizerID: uuid.New()}
	s.Seed(mine, theirs)

	buyer := uuid.New()
	for i := 0; i < 3; i++ {
		s.Seed(&models.Transaction{
			UserID:        buyer,
			EventID:       mine.ID,
			PaymentStatus: models.StatusWaitingForPayment,
			BaseModel:     models.BaseModel{CreatedAt: time.Now().Add(time.Duration(i) * time.Minute)},
		})
	}
	s.Seed(&models.Transaction{UserID: uuid.New(), EventID: theirs.ID, PaymentStatus: models.StatusDone})

	_ = s.WithTx(context.Background(), func(uow UnitOfWork) error {
		txns, total, err := uow.ListTransactions(context.Background(), TransactionFilter{
			OrganizerID: organizer.ID,
			Limit:       2,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, txns, 2)
		assert.True(t, txns[0].CreatedAt.After(txns[1].CreatedAt))

		txns, total, err = uow.ListTransactions(context.Background(), TransactionFilter{
			Status: models.StatusDone,
			Limit:  10,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Len(t, txns, 1)

		txns, _, err = uow.ListTransactions(context.Background(), TransactionFilter{
			UserID: buyer,
			Limit:  10,
			Offset: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, txns)

		txns, _, err = uow.ListTransactions(context.Background(), TransactionFilter{
			UserID: buyer,
			Limit:  10,
			Offset: -50,
		})
		require.NoError(t, err)
		assert.Len(t, txns, 3)
		return nil
	})
}
