package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a transaction.
type PaymentStatus string

const (
	StatusWaitingForPayment           PaymentStatus = "waiting_for_payment"
	StatusWaitingForAdminConfirmation PaymentStatus = "waiting_for_admin_confirmation"
	StatusDone                        PaymentStatus = "done"
	StatusCanceled                    PaymentStatus = "canceled"
	StatusExpired                     PaymentStatus = "expired"
	StatusRejected                    PaymentStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusWaitingForPayment, StatusWaitingForAdminConfirmation:
		return true
	}
	return s.Terminal()
}

// Transaction is a ticket purchase (order). Money fields are minor units.
type Transaction struct {
	BaseModel
	UserID               uuid.UUID         `gorm:"type:uuid;index" json:"user_id"`
	EventID              uuid.UUID         `gorm:"type:uuid;index" json:"event_id"`
	InvoiceNumber        string            `gorm:"uniqueIndex" json:"invoice_number"`
	Subtotal             int64             `json:"subtotal"`
	PointsUsed           int64             `json:"points_used"`
	CouponDiscount       int64             `json:"coupon_discount"`
	VoucherDiscount      int64             `json:"voucher_discount"`
	TotalAmount          int64             `json:"total_amount"`
	PaymentStatus        PaymentStatus     `gorm:"type:varchar(40);index" json:"payment_status"`
	PaymentDeadline      time.Time         `gorm:"index" json:"payment_deadline"`
	ConfirmationDeadline *time.Time        `gorm:"index" json:"confirmation_deadline"`
	PaymentProofURL      *string           `json:"payment_proof_url"`
	ProofUploadedAt      *time.Time        `json:"proof_uploaded_at"`
	ConfirmedAt          *time.Time        `json:"confirmed_at"`
	ReleasedAt           *time.Time        `json:"released_at,omitempty"`
	UserCouponID         *uuid.UUID        `gorm:"type:uuid" json:"user_coupon_id"`
	EventVoucherID       *uuid.UUID        `gorm:"type:uuid" json:"event_voucher_id"`
	Items                []TransactionItem `gorm:"foreignKey:TransactionID" json:"items,omitempty"`
	DeletedAt            gorm.DeletedAt    `gorm:"index" json:"-"`
}

// TransactionItem is an immutable order line.
type TransactionItem struct {
	BaseModel
	TransactionID uuid.UUID `gorm:"type:uuid;index" json:"transaction_id"`
	TicketTierID  uuid.UUID `gorm:"type:uuid;index" json:"ticket_tier_id"`
	Quantity      int       `json:"quantity"`
	UnitPrice     int64     `json:"unit_price"`
	Subtotal      int64     `json:"subtotal"`
}

// TotalQuantity sums the ticket count over all items.
func (t Transaction) TotalQuantity() int {
	total := 0
	for _, item := range t.Items {
		total += item.Quantity
	}
	return total
}
