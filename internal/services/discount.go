package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/store"
)

// DiscountRequest describes the discounts a buyer asked for.
type DiscountRequest struct {
	UserID         uuid.UUID
	EventID        uuid.UUID
	Subtotal       int64
	UsePoints      bool
	UserCouponID   *uuid.UUID
	EventVoucherID *uuid.UUID
}

// DiscountQuote is the reserved effect of points, coupon and voucher.
// Each amount is computed against the original subtotal.
type DiscountQuote struct {
	PointsUsed      int64
	CouponDiscount  int64
	VoucherDiscount int64
	PointUsages     []models.PointUsage
	UserCouponID    *uuid.UUID
	EventVoucherID  *uuid.UUID
}

// Total returns max(0, subtotal - points - coupon - voucher).
func (q DiscountQuote) Total(subtotal int64) int64 {
	return max(0, subtotal-q.PointsUsed-q.CouponDiscount-q.VoucherDiscount)
}

// DiscountResolver prices orders and reserves the discounts it applies.
type DiscountResolver struct {
	now func() time.Time
}

// NewDiscountResolver constructs DiscountResolver.
func NewDiscountResolver(now func() time.Time) *DiscountResolver {
	if now == nil {
		now = time.Now
	}
	return &DiscountResolver{now: now}
}

// Apply reserves points, then the coupon, then the voucher. Any invalid
// discount fails the whole request; the caller's unit of work discards
// whatever was reserved before the failure.
func (r *DiscountResolver) Apply(ctx context.Context, uow store.UnitOfWork, req DiscountRequest) (*DiscountQuote, error) {
	now := r.now()
	quote := &DiscountQuote{}

	if req.UsePoints && req.Subtotal > 0 {
		if err := r.applyPoints(ctx, uow, req, now, quote); err != nil {
			return nil, err
		}
	}

	if req.UserCouponID != nil {
		if err := r.applyCoupon(ctx, uow, req, now, quote); err != nil {
			return nil, err
		}
	}

	if req.EventVoucherID != nil {
		if err := r.applyVoucher(ctx, uow, req, now, quote); err != nil {
			return nil, err
		}
	}

	return quote, nil
}

// applyPoints consumes grants earliest-expiry first. A partially spent grant
// keeps its remaining balance for later purchases.
func (r *DiscountResolver) applyPoints(ctx context.Context, uow store.UnitOfWork, req DiscountRequest, now time.Time, quote *DiscountQuote) error {
	points, err := uow.ListSpendablePoints(ctx, req.UserID, now)
	if err != nil {
		return err
	}

	remaining := req.Subtotal
	for _, point := range points {
		if remaining <= 0 {
			break
		}

		deduct := min(point.Amount, remaining)
		if deduct <= 0 {
			continue
		}
		remaining -= deduct
		quote.PointsUsed += deduct

		balance := point.Amount - deduct
		if err := uow.SetPointBalance(ctx, point.ID, balance, balance == 0); err != nil {
			return err
		}

		quote.PointUsages = append(quote.PointUsages, models.PointUsage{
			UserPointID: point.ID,
			AmountUsed:  deduct,
		})
	}
	return nil
}

func (r *DiscountResolver) applyCoupon(ctx context.Context, uow store.UnitOfWork, req DiscountRequest, now time.Time, quote *DiscountQuote) error {
	coupon, err := uow.LockUserCoupon(ctx, *req.UserCouponID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrNotFound, "coupon not found")
		}
		return err
	}

	switch {
	case coupon.UserID != req.UserID:
		return newError(ErrDiscountInvalid, "this coupon does not belong to you")
	case coupon.IsUsed:
		return newError(ErrDiscountInvalid, "coupon has already been used")
	case coupon.ExpiredAt.Before(now):
		return newError(ErrDiscountInvalid, "coupon has expired")
	}

	quote.CouponDiscount = discountAmount(coupon.DiscountType, coupon.DiscountValue, req.Subtotal)

	usedAt := now
	if err := uow.SetCouponUsed(ctx, coupon.ID, &usedAt); err != nil {
		return err
	}
	quote.UserCouponID = &coupon.ID
	return nil
}

func (r *DiscountResolver) applyVoucher(ctx context.Context, uow store.UnitOfWork, req DiscountRequest, now time.Time, quote *DiscountQuote) error {
	voucher, err := uow.LockEventVoucher(ctx, *req.EventVoucherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrNotFound, "voucher not found")
		}
		return err
	}

	switch {
	case voucher.EventID != req.EventID:
		return newError(ErrDiscountInvalid, "this voucher does not belong to this event")
	case !voucher.IsActive:
		return newError(ErrDiscountInvalid, "voucher is not active")
	case voucher.ExpiredAt.Before(now):
		return newError(ErrDiscountInvalid, "voucher has expired")
	case voucher.StartDate.After(now):
		return newError(ErrDiscountInvalid, "voucher is not yet valid")
	case voucher.UsedCount >= voucher.MaxUsage:
		return newError(ErrDiscountInvalid, "voucher usage limit reached")
	}

	discount := discountAmount(voucher.DiscountType, voucher.DiscountValue, req.Subtotal)
	if voucher.MaxDiscount != nil && *voucher.MaxDiscount > 0 && discount > *voucher.MaxDiscount {
		discount = *voucher.MaxDiscount
	}

	if err := uow.AddVoucherUsage(ctx, voucher.ID, 1); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return newError(ErrDiscountInvalid, "voucher usage limit reached")
		}
		return err
	}

	quote.VoucherDiscount = discount
	quote.EventVoucherID = &voucher.ID
	return nil
}

// Record writes the point and voucher usage rows for a persisted
// transaction.
func (r *DiscountResolver) Record(ctx context.Context, uow store.UnitOfWork, txn *models.Transaction, quote *DiscountQuote) error {
	for i := range quote.PointUsages {
		usage := quote.PointUsages[i]
		usage.TransactionID = txn.ID
		if err := uow.CreatePointUsage(ctx, &usage); err != nil {
			return err
		}
		quote.PointUsages[i] = usage
	}

	if quote.EventVoucherID != nil {
		if err := uow.CreateVoucherUsage(ctx, &models.EventVoucherUsage{
			VoucherID:       *quote.EventVoucherID,
			UserID:          txn.UserID,
			TransactionID:   txn.ID,
			DiscountApplied: quote.VoucherDiscount,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Rollback restores every discount reserved for txn. It is a no-op once the
// stored transaction has been released, so a coupon that a later transaction
// now holds stays used. Point and voucher restores are keyed on usage rows
// that are deleted as they are restored.
func (r *DiscountResolver) Rollback(ctx context.Context, uow store.UnitOfWork, txn *models.Transaction) error {
	stored, err := uow.LockTransaction(ctx, txn.ID)
	if err != nil {
		return err
	}
	if stored.ReleasedAt != nil {
		return nil
	}

	usages, err := uow.ListPointUsages(ctx, txn.ID)
	if err != nil {
		return err
	}
	for _, usage := range usages {
		if err := uow.RestorePoints(ctx, usage.UserPointID, usage.AmountUsed); err != nil {
			return err
		}
	}
	if _, err := uow.DeletePointUsages(ctx, txn.ID); err != nil {
		return err
	}

	if stored.UserCouponID != nil {
		if err := uow.SetCouponUsed(ctx, *stored.UserCouponID, nil); err != nil {
			return err
		}
	}

	if stored.EventVoucherID != nil {
		deleted, err := uow.DeleteVoucherUsages(ctx, txn.ID)
		if err != nil {
			return err
		}
		if deleted > 0 {
			if err := uow.AddVoucherUsage(ctx, *stored.EventVoucherID, -1); err != nil {
				return err
			}
		}
	}
	return nil
}

// discountAmount rounds percentage discounts down.
func discountAmount(kind models.DiscountType, value, subtotal int64) int64 {
	if kind == models.DiscountPercentage {
		return subtotal * value / 100
	}
	return value
}
