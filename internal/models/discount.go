package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DiscountType applies to coupons and vouchers.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// UserPoint is a revolving, expiring store-credit grant. Amount is the
// remaining balance; IsUsed flips once it reaches zero.
type UserPoint struct {
	BaseModel
	UserID    uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	Amount    int64          `json:"amount"`
	IsUsed    bool           `gorm:"default:false" json:"is_used"`
	ExpiredAt time.Time      `gorm:"index" json:"expired_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// PointUsage records how much of a grant went into a transaction.
type PointUsage struct {
	BaseModel
	UserPointID   uuid.UUID `gorm:"type:uuid;index" json:"user_point_id"`
	TransactionID uuid.UUID `gorm:"type:uuid;index" json:"transaction_id"`
	AmountUsed    int64     `json:"amount_used"`
}

// UserCoupon is a single-use discount owned by one user.
type UserCoupon struct {
	BaseModel
	UserID        uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	CouponCode    string         `gorm:"index" json:"coupon_code"`
	DiscountType  DiscountType   `gorm:"type:varchar(20)" json:"discount_type"`
	DiscountValue int64          `json:"discount_value"`
	IsUsed        bool           `gorm:"default:false" json:"is_used"`
	UsedAt        *time.Time     `json:"used_at"`
	ExpiredAt     time.Time      `json:"expired_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// EventVoucher is a multi-use discount scoped to one event.
type EventVoucher struct {
	BaseModel
	EventID       uuid.UUID      `gorm:"type:uuid;index" json:"event_id"`
	VoucherCode   string         `gorm:"index" json:"voucher_code"`
	VoucherName   string         `json:"voucher_name"`
	DiscountType  DiscountType   `gorm:"type:varchar(20)" json:"discount_type"`
	DiscountValue int64          `json:"discount_value"`
	MaxDiscount   *int64         `json:"max_discount"`
	MaxUsage      int            `json:"max_usage"`
	UsedCount     int            `gorm:"default:0" json:"used_count"`
	StartDate     time.Time      `json:"start_date"`
	ExpiredAt     time.Time      `json:"expired_at"`
	IsActive      bool           `json:"is_active"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// EventVoucherUsage audits one application of a voucher.
type EventVoucherUsage struct {
	BaseModel
	VoucherID       uuid.UUID `gorm:"type:uuid;index" json:"voucher_id"`
	UserID          uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	TransactionID   uuid.UUID `gorm:"type:uuid;index" json:"transaction_id"`
	DiscountApplied int64     `json:"discount_applied"`
}
