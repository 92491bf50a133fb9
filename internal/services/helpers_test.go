package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProofStorage struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	uploadErr error
	onUpload  func()
}

func (f *fakeProofStorage) Upload(_ context.Context, data []byte, folder string) (StoredProof, error) {
	if f.onUpload != nil {
		f.onUpload()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return StoredProof{}, f.uploadErr
	}
	id := folder + "/" + uuid.NewString()
	f.uploads = append(f.uploads, id)
	return StoredProof{URL: "https://files.test/" + id, ID: id}, nil
}

func (f *fakeProofStorage) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	accepted []TransactionNotice
	rejected []TransactionNotice
	uploaded []TransactionNotice
	err      error
}

func (n *recordingNotifier) TransactionAccepted(_ context.Context, notice TransactionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, notice)
	return n.err
}

func (n *recordingNotifier) TransactionRejected(_ context.Context, notice TransactionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, notice)
	return n.err
}

func (n *recordingNotifier) ProofUploaded(_ context.Context, notice TransactionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uploaded = append(n.uploaded, notice)
	return n.err
}

type fixture struct {
	ctx      context.Context
	store    *store.MemoryStore
	clock    *testClock
	proofs   *fakeProofStorage
	notifier *recordingNotifier
	svc      *TransactionService

	buyer         *models.User
	organizerUser *models.User
	organizer     *models.Organizer
	event         *models.Event
	tier          *models.TicketTier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		store:    store.NewMemoryStore(),
		clock:    newTestClock(),
		proofs:   &fakeProofStorage{},
		notifier: &recordingNotifier{},
	}

	f.buyer = &models.User{FullName: "Budi Santoso", Email: "budi@example.com", Role: models.RoleCustomer}
	f.organizerUser = &models.User{FullName: "Sari Organizer", Email: "sari@example.com", Role: models.RoleOrganizer}
	f.store.Seed(f.buyer, f.organizerUser)

	f.organizer = &models.Organizer{UserID: f.organizerUser.ID, Name: "Sari Live"}
	f.store.Seed(f.organizer)

	f.event = &models.Event{
		OrganizerID: f.organizer.ID,
		Name:        "Jazz Night",
		Slug:        "jazz-night",
		Status:      models.EventStatusPublished,
		EventDate:   f.clock.Now().Add(30 * 24 * time.Hour),
	}
	f.store.Seed(f.event)

	f.tier = &models.TicketTier{EventID: f.event.ID, Name: "Regular", Price: 150000, Quota: 10}
	f.store.Seed(f.tier)

	f.svc = NewTransactionService(f.store, f.proofs, f.notifier, TransactionOptions{
		PaymentWindow:      2 * time.Hour,
		ConfirmationWindow: 72 * time.Hour,
		Now:                f.clock.Now,
	})
	t.Cleanup(f.svc.Wait)
	return f
}

func (f *fixture) buy(t *testing.T, qty int) *models.Transaction {
	t.Helper()
	txn, err := f.svc.Create(f.ctx, f.buyer.ID, CreateTransactionInput{
		EventID: f.event.ID,
		Items:   []CreateItemInput{{TicketTierID: f.tier.ID, Quantity: qty}},
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) awaitingConfirmation(t *testing.T, qty int) *models.Transaction {
	t.Helper()
	txn := f.buy(t, qty)
	txn, err := f.svc.UploadProof(f.ctx, f.buyer.ID, txn.ID, []byte("%PDF-1.4 receipt"))
	require.NoError(t, err)
	return txn
}

func (f *fixture) read(t *testing.T, fn func(uow store.UnitOfWork) error) {
	t.Helper()
	require.NoError(t, f.store.WithTx(f.ctx, fn))
}

func (f *fixture) soldCount(t *testing.T, tierID uuid.UUID) int {
	t.Helper()
	var sold int
	f.read(t, func(uow store.UnitOfWork) error {
		tier, err := uow.LockTicketTier(f.ctx, tierID)
		if err != nil {
			return err
		}
		sold = tier.SoldCount
		return nil
	})
	return sold
}

func (f *fixture) transaction(t *testing.T, id uuid.UUID) *models.Transaction {
	t.Helper()
	var txn *models.Transaction
	f.read(t, func(uow store.UnitOfWork) error {
		var err error
		txn, err = uow.FindTransaction(f.ctx, id)
		return err
	})
	return txn
}

func (f *fixture) coupon(t *testing.T, id uuid.UUID) *models.UserCoupon {
	t.Helper()
	var coupon *models.UserCoupon
	f.read(t, func(uow store.UnitOfWork) error {
		var err error
		coupon, err = uow.LockUserCoupon(f.ctx, id)
		return err
	})
	return coupon
}

func (f *fixture) voucher(t *testing.T, id uuid.UUID) *models.EventVoucher {
	t.Helper()
	var voucher *models.EventVoucher
	f.read(t, func(uow store.UnitOfWork) error {
		var err error
		voucher, err = uow.LockEventVoucher(f.ctx, id)
		return err
	})
	return voucher
}

// spendable maps each spendable grant of userID to its balance.
func (f *fixture) spendable(t *testing.T, userID uuid.UUID) map[uuid.UUID]int64 {
	t.Helper()
	balances := map[uuid.UUID]int64{}
	f.read(t, func(uow store.UnitOfWork) error {
		points, err := uow.ListSpendablePoints(f.ctx, userID, f.clock.Now())
		if err != nil {
			return err
		}
		for _, p := range points {
			balances[p.ID] = p.Amount
		}
		return nil
	})
	return balances
}

// discounts seeds one grant, one coupon and one voucher for the buyer.
func (f *fixture) discounts() (*models.UserPoint, *models.UserCoupon, *models.EventVoucher) {
	now := f.clock.Now()
	point := &models.UserPoint{UserID: f.buyer.ID, Amount: 20000, ExpiredAt: now.Add(90 * 24 * time.Hour)}
	coupon := &models.UserCoupon{
		UserID:        f.buyer.ID,
		CouponCode:    "REF-10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 10,
		ExpiredAt:     now.Add(30 * 24 * time.Hour),
	}
	voucher := &models.EventVoucher{
		EventID:       f.event.ID,
		VoucherCode:   "EARLY",
		DiscountType:  models.DiscountFixed,
		DiscountValue: 25000,
		MaxUsage:      100,
		UsedCount:     4,
		StartDate:     now.Add(-24 * time.Hour),
		ExpiredAt:     now.Add(7 * 24 * time.Hour),
		IsActive:      true,
	}
	f.store.Seed(point, coupon, voucher)
	return point, coupon, voucher
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}
