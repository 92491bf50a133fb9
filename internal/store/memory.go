package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/eventhub/internal/models"
)

// MemoryStore keeps everything in process memory. Units of work are
// serialised by a mutex and a failed unit restores the state it started from.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	users         map[uuid.UUID]models.User
	organizers    map[uuid.UUID]models.Organizer
	events        map[uuid.UUID]models.Event
	tiers         map[uuid.UUID]models.TicketTier
	points        map[uuid.UUID]models.UserPoint
	pointUsages   map[uuid.UUID]models.PointUsage
	coupons       map[uuid.UUID]models.UserCoupon
	vouchers      map[uuid.UUID]models.EventVoucher
	voucherUsages map[uuid.UUID]models.EventVoucherUsage
	transactions  map[uuid.UUID]models.Transaction
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		users:         map[uuid.UUID]models.User{},
		organizers:    map[uuid.UUID]models.Organizer{},
		events:        map[uuid.UUID]models.Event{},
		tiers:         map[uuid.UUID]models.TicketTier{},
		points:        map[uuid.UUID]models.UserPoint{},
		pointUsages:   map[uuid.UUID]models.PointUsage{},
		coupons:       map[uuid.UUID]models.UserCoupon{},
		vouchers:      map[uuid.UUID]models.EventVoucher{},
		voucherUsages: map[uuid.UUID]models.EventVoucherUsage{},
		transactions:  map[uuid.UUID]models.Transaction{},
	}}
}

func (s memState) clone() memState {
	txns := make(map[uuid.UUID]models.Transaction, len(s.transactions))
	for id, txn := range s.transactions {
		txn.Items = slices.Clone(txn.Items)
		txns[id] = txn
	}
	return memState{
		users:         maps.Clone(s.users),
		organizers:    maps.Clone(s.organizers),
		events:        maps.Clone(s.events),
		tiers:         maps.Clone(s.tiers),
		points:        maps.Clone(s.points),
		pointUsages:   maps.Clone(s.pointUsages),
		coupons:       maps.Clone(s.coupons),
		vouchers:      maps.Clone(s.vouchers),
		voucherUsages: maps.Clone(s.voucherUsages),
		transactions:  txns,
	}
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(uow UnitOfWork) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	defer func() {
		if r := recover(); r != nil {
			s.state = snapshot
			panic(r)
		}
		if err != nil {
			s.state = snapshot
		}
	}()

	return fn(&memUnit{s: &s.state})
}

// Seed inserts fixtures outside of any unit of work. Records without an ID
// get one assigned.
func (s *MemoryStore) Seed(records ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		switch r := record.(type) {
		case *models.User:
			r.EnsureID()
			s.state.users[r.ID] = *r
		case *models.Organizer:
			r.EnsureID()
			s.state.organizers[r.ID] = *r
		case *models.Event:
			r.EnsureID()
			s.state.events[r.ID] = *r
		case *models.TicketTier:
			r.EnsureID()
			s.state.tiers[r.ID] = *r
		case *models.UserPoint:
			r.EnsureID()
			s.state.points[r.ID] = *r
		case *models.UserCoupon:
			r.EnsureID()
			s.state.coupons[r.ID] = *r
		case *models.EventVoucher:
			r.EnsureID()
			s.state.vouchers[r.ID] = *r
		case *models.Transaction:
			r.EnsureID()
			for i := range r.Items {
				r.Items[i].EnsureID()
				r.Items[i].TransactionID = r.ID
			}
			s.state.transactions[r.ID] = *r
		default:
			panic(fmt.Sprintf("store: cannot seed %T", record))
		}
	}
}

type memUnit struct {
	s *memState
}

func (u *memUnit) FindUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := u.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (u *memUnit) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range u.s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (u *memUnit) FindOrganizerByUser(_ context.Context, userID uuid.UUID) (*models.Organizer, error) {
	for _, organizer := range u.s.organizers {
		if organizer.UserID == userID {
			return &organizer, nil
		}
	}
	return nil, ErrNotFound
}

func (u *memUnit) FindEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	event, ok := u.s.events[id]
	if !ok || event.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &event, nil
}

func (u *memUnit) LockTicketTier(_ context.Context, id uuid.UUID) (*models.TicketTier, error) {
	tier, ok := u.s.tiers[id]
	if !ok || tier.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &tier, nil
}

func (u *memUnit) ListTicketTiers(_ context.Context, ids []uuid.UUID) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	for _, id := range ids {
		if tier, ok := u.s.tiers[id]; ok {
			tiers = append(tiers, tier)
		}
	}
	return tiers, nil
}

func (u *memUnit) AddSoldCount(_ context.Context, tierID uuid.UUID, delta int) error {
	tier, ok := u.s.tiers[tierID]
	if !ok {
		return ErrConflict
	}
	next := tier.SoldCount + delta
	if next < 0 || next > tier.Quota {
		return ErrConflict
	}
	tier.SoldCount = next
	tier.UpdatedAt = time.Now()
	u.s.tiers[tierID] = tier
	return nil
}

func (u *memUnit) ListSpendablePoints(_ context.Context, userID uuid.UUID, now time.Time) ([]models.UserPoint, error) {
	var points []models.UserPoint
	for _, point := range u.s.points {
		if point.UserID != userID || point.IsUsed || point.Amount <= 0 || point.DeletedAt.Valid {
			continue
		}
		if !point.ExpiredAt.After(now) {
			continue
		}
		points = append(points, point)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].ExpiredAt.Before(points[j].ExpiredAt)
	})
	return points, nil
}

func (u *memUnit) SetPointBalance(_ context.Context, id uuid.UUID, amount int64, isUsed bool) error {
	point, ok := u.s.points[id]
	if !ok {
		return ErrNotFound
	}
	point.Amount = amount
	point.IsUsed = isUsed
	u.s.points[id] = point
	return nil
}

func (u *memUnit) RestorePoints(_ context.Context, id uuid.UUID, amount int64) error {
	point, ok := u.s.points[id]
	if !ok {
		return ErrNotFound
	}
	point.Amount += amount
	point.IsUsed = false
	u.s.points[id] = point
	return nil
}

func (u *memUnit) CreatePointUsage(_ context.Context, usage *models.PointUsage) error {
	usage.EnsureID()
	usage.CreatedAt = time.Now()
	u.s.pointUsages[usage.ID] = *usage
	return nil
}

func (u *memUnit) ListPointUsages(_ context.Context, transactionID uuid.UUID) ([]models.PointUsage, error) {
	var usages []models.PointUsage
	for _, usage := range u.s.pointUsages {
		if usage.TransactionID == transactionID {
			usages = append(usages, usage)
		}
	}
	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].CreatedAt.Before(usages[j].CreatedAt)
	})
	return usages, nil
}

func (u *memUnit) DeletePointUsages(_ context.Context, transactionID uuid.UUID) (int64, error) {
	var deleted int64
	for id, usage := range u.s.pointUsages {
		if usage.TransactionID == transactionID {
			delete(u.s.pointUsages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (u *memUnit) LockUserCoupon(_ context.Context, id uuid.UUID) (*models.UserCoupon, error) {
	coupon, ok := u.s.coupons[id]
	if !ok || coupon.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &coupon, nil
}

func (u *memUnit) SetCouponUsed(_ context.Context, id uuid.UUID, usedAt *time.Time) error {
	coupon, ok := u.s.coupons[id]
	if !ok {
		return ErrNotFound
	}
	coupon.IsUsed = usedAt != nil
	coupon.UsedAt = usedAt
	u.s.coupons[id] = coupon
	return nil
}

func (u *memUnit) LockEventVoucher(_ context.Context, id uuid.UUID) (*models.EventVoucher, error) {
	voucher, ok := u.s.vouchers[id]
	if !ok || voucher.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &voucher, nil
}

func (u *memUnit) AddVoucherUsage(_ context.Context, voucherID uuid.UUID, delta int) error {
	voucher, ok := u.s.vouchers[voucherID]
	if !ok {
		return ErrConflict
	}
	next := voucher.UsedCount + delta
	if next < 0 || next > voucher.MaxUsage {
		return ErrConflict
	}
	voucher.UsedCount = next
	u.s.vouchers[voucherID] = voucher
	return nil
}

func (u *memUnit) CreateVoucherUsage(_ context.Context, usage *models.EventVoucherUsage) error {
	usage.EnsureID()
	usage.CreatedAt = time.Now()
	u.s.voucherUsages[usage.ID] = *usage
	return nil
}

func (u *memUnit) DeleteVoucherUsages(_ context.Context, transactionID uuid.UUID) (int64, error) {
	var deleted int64
	for id, usage := range u.s.voucherUsages {
		if usage.TransactionID == transactionID {
			delete(u.s.voucherUsages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (u *memUnit) InvoiceExists(_ context.Context, invoice string) (bool, error) {
	for _, txn := range u.s.transactions {
		if txn.InvoiceNumber == invoice {
			return true, nil
		}
	}
	return false, nil
}

func (u *memUnit) CreateTransaction(_ context.Context, txn *models.Transaction) error {
	txn.EnsureID()
	now := time.Now()
	txn.CreatedAt, txn.UpdatedAt = now, now
	for i := range txn.Items {
		txn.Items[i].EnsureID()
		txn.Items[i].TransactionID = txn.ID
		txn.Items[i].CreatedAt = now
	}
	stored := *txn
	stored.Items = slices.Clone(txn.Items)
	u.s.transactions[txn.ID] = stored
	return nil
}

func (u *memUnit) FindTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, ok := u.s.transactions[id]
	if !ok || txn.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	txn.Items = slices.Clone(txn.Items)
	return &txn, nil
}

func (u *memUnit) LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return u.FindTransaction(ctx, id)
}

func (u *memUnit) UpdateTransaction(_ context.Context, txn *models.Transaction) error {
	stored, ok := u.s.transactions[txn.ID]
	if !ok {
		return ErrNotFound
	}
	stored.PaymentStatus = txn.PaymentStatus
	stored.ConfirmationDeadline = txn.ConfirmationDeadline
	stored.PaymentProofURL = txn.PaymentProofURL
	stored.ProofUploadedAt = txn.ProofUploadedAt
	stored.ConfirmedAt = txn.ConfirmedAt
	stored.ReleasedAt = txn.ReleasedAt
	stored.UpdatedAt = time.Now()
	u.s.transactions[txn.ID] = stored
	return nil
}

func (u *memUnit) ListOverdue(_ context.Context, status models.PaymentStatus, now time.Time) ([]uuid.UUID, error) {
	type due struct {
		id       uuid.UUID
		deadline time.Time
	}
	var found []due
	for _, txn := range u.s.transactions {
		if txn.PaymentStatus != status || txn.DeletedAt.Valid {
			continue
		}
		var deadline time.Time
		switch status {
		case models.StatusWaitingForPayment:
			deadline = txn.PaymentDeadline
		case models.StatusWaitingForAdminConfirmation:
			if txn.ConfirmationDeadline == nil {
				continue
			}
			deadline = *txn.ConfirmationDeadline
		default:
			return nil, fmt.Errorf("store: status %q has no deadline", status)
		}
		if deadline.Before(now) {
			found = append(found, due{id: txn.ID, deadline: deadline})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].deadline.Before(found[j].deadline)
	})

	ids := make([]uuid.UUID, 0, len(found))
	for _, d := range found {
		ids = append(ids, d.id)
	}
	return ids, nil
}

func (u *memUnit) ListTransactions(_ context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	var matched []models.Transaction
	for _, txn := range u.s.transactions {
		if txn.DeletedAt.Valid {
			continue
		}
		if filter.UserID != uuid.Nil && txn.UserID != filter.UserID {
			continue
		}
		if filter.OrganizerID != uuid.Nil {
			event, ok := u.s.events[txn.EventID]
			if !ok || event.OrganizerID != filter.OrganizerID {
				continue
			}
		}
		if filter.EventID != uuid.Nil && txn.EventID != filter.EventID {
			continue
		}
		if filter.Status != "" && txn.PaymentStatus != filter.Status {
			continue
		}
		txn.Items = slices.Clone(txn.Items)
		matched = append(matched, txn)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := min(max(filter.Offset, 0), len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = start + min(filter.Limit, len(matched)-start)
	}
	return matched[start:end], total, nil
}
