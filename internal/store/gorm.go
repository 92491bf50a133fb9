package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/eventhub/internal/models"
)

// GormStore runs units of work as database transactions.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithTx implements Store.
func (s *GormStore) WithTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormUnit{tx: tx})
	})
}

type gormUnit struct {
	tx *gorm.DB
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (u *gormUnit) db(ctx context.Context) *gorm.DB {
	return u.tx.WithContext(ctx)
}

func (u *gormUnit) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := u.db(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (u *gormUnit) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := u.db(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (u *gormUnit) FindOrganizerByUser(ctx context.Context, userID uuid.UUID) (*models.Organizer, error) {
	var organizer models.Organizer
	if err := u.db(ctx).Where("user_id = ?", userID).First(&organizer).Error; err != nil {
		return nil, notFound(err)
	}
	return &organizer, nil
}

func (u *gormUnit) FindEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := u.db(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &event, nil
}

func (u *gormUnit) LockTicketTier(ctx context.Context, id uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	if err := u.db(ctx).Clauses(forUpdate).First(&tier, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tier, nil
}

func (u *gormUnit) ListTicketTiers(ctx context.Context, ids []uuid.UUID) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	if len(ids) == 0 {
		return tiers, nil
	}
	if err := u.db(ctx).Unscoped().Where("id IN ?", ids).Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (u *gormUnit) AddSoldCount(ctx context.Context, tierID uuid.UUID, delta int) error {
	res := u.db(ctx).Unscoped().Model(&models.TicketTier{}).
		Where("id = ? AND sold_count + ? >= 0 AND sold_count + ? <= quota", tierID, delta, delta).
		Updates(map[string]any{
			"sold_count": gorm.Expr("sold_count + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (u *gormUnit) ListSpendablePoints(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.UserPoint, error) {
	var points []models.UserPoint
	if err := u.db(ctx).Clauses(forUpdate).
		Where("user_id = ? AND is_used = ? AND amount > 0 AND expired_at > ?", userID, false, now).
		Order("expired_at asc").
		Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (u *gormUnit) SetPointBalance(ctx context.Context, id uuid.UUID, amount int64, isUsed bool) error {
	return u.db(ctx).Model(&models.UserPoint{}).
		Where("id = ?", id).
		Updates(map[string]any{"amount": amount, "is_used": isUsed}).Error
}

func (u *gormUnit) RestorePoints(ctx context.Context, id uuid.UUID, amount int64) error {
	res := u.db(ctx).Unscoped().Model(&models.UserPoint{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"amount":     gorm.Expr("amount + ?", amount),
			"is_used":    false,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (u *gormUnit) CreatePointUsage(ctx context.Context, usage *models.PointUsage) error {
	return u.db(ctx).Create(usage).Error
}

func (u *gormUnit) ListPointUsages(ctx context.Context, transactionID uuid.UUID) ([]models.PointUsage, error) {
	var usages []models.PointUsage
	if err := u.db(ctx).Where("transaction_id = ?", transactionID).
		Order("created_at asc").
		Find(&usages).Error; err != nil {
		return nil, err
	}
	return usages, nil
}

func (u *gormUnit) DeletePointUsages(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	res := u.db(ctx).Where("transaction_id = ?", transactionID).Delete(&models.PointUsage{})
	return res.RowsAffected, res.Error
}

func (u *gormUnit) LockUserCoupon(ctx context.Context, id uuid.UUID) (*models.UserCoupon, error) {
	var coupon models.UserCoupon
	if err := u.db(ctx).Clauses(forUpdate).First(&coupon, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &coupon, nil
}

func (u *gormUnit) SetCouponUsed(ctx context.Context, id uuid.UUID, usedAt *time.Time) error {
	return u.db(ctx).Unscoped().Model(&models.UserCoupon{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_used": usedAt != nil, "used_at": usedAt}).Error
}

func (u *gormUnit) LockEventVoucher(ctx context.Context, id uuid.UUID) (*models.EventVoucher, error) {
	var voucher models.EventVoucher
	if err := u.db(ctx).Clauses(forUpdate).First(&voucher, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &voucher, nil
}

func (u *gormUnit) AddVoucherUsage(ctx context.Context, voucherID uuid.UUID, delta int) error {
	res := u.db(ctx).Unscoped().Model(&models.EventVoucher{}).
		Where("id = ? AND used_count + ? >= 0 AND used_count + ? <= max_usage", voucherID, delta, delta).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (u *gormUnit) CreateVoucherUsage(ctx context.Context, usage *models.EventVoucherUsage) error {
	return u.db(ctx).Create(usage).Error
}

func (u *gormUnit) DeleteVoucherUsages(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	res := u.db(ctx).Where("transaction_id = ?", transactionID).Delete(&models.EventVoucherUsage{})
	return res.RowsAffected, res.Error
}

func (u *gormUnit) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	var count int64
	if err := u.db(ctx).Unscoped().Model(&models.Transaction{}).
		Where("invoice_number = ?", invoice).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (u *gormUnit) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return u.db(ctx).Create(txn).Error
}

func (u *gormUnit) FindTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := u.db(ctx).Preload("Items").First(&txn, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &txn, nil
}

func (u *gormUnit) LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := u.db(ctx).Clauses(forUpdate).First(&txn, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	if err := u.db(ctx).Where("transaction_id = ?", id).Order("ticket_tier_id asc").Find(&txn.Items).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (u *gormUnit) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	return u.db(ctx).Model(txn).
		Omit(clause.Associations).
		Select(
			"payment_status",
			"confirmation_deadline",
			"payment_proof_url",
			"proof_uploaded_at",
			"confirmed_at",
			"released_at",
		).
		Updates(txn).Error
}

func (u *gormUnit) ListOverdue(ctx context.Context, status models.PaymentStatus, now time.Time) ([]uuid.UUID, error) {
	var column string
	switch status {
	case models.StatusWaitingForPayment:
		column = "payment_deadline"
	case models.StatusWaitingForAdminConfirmation:
		column = "confirmation_deadline"
	default:
		return nil, fmt.Errorf("store: status %q has no deadline", status)
	}

	var ids []uuid.UUID
	if err := u.db(ctx).Model(&models.Transaction{}).
		Where("payment_status = ? AND "+column+" < ?", status, now).
		Order(column+" asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (u *gormUnit) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.UserID != uuid.Nil {
			db = db.Where("user_id = ?", filter.UserID)
		}
		if filter.OrganizerID != uuid.Nil {
			db = db.Where("event_id IN (?)",
				u.db(ctx).Model(&models.Event{}).Select("id").Where("organizer_id = ?", filter.OrganizerID))
		}
		if filter.EventID != uuid.Nil {
			db = db.Where("event_id = ?", filter.EventID)
		}
		if filter.Status != "" {
			db = db.Where("payment_status = ?", filter.Status)
		}
		return db
	}

	var total int64
	if err := u.db(ctx).Model(&models.Transaction{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := u.db(ctx).Scopes(scope).Preload("Items").Order("created_at desc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var txns []models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}
