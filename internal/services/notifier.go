package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TransactionNotice is the context handed to notifiers.
type TransactionNotice struct {
	TransactionID  uuid.UUID
	InvoiceNumber  string
	BuyerName      string
	BuyerEmail     string
	EventName      string
	EventSlug      string
	EventDate      time.Time
	TicketQuantity int
	TicketTypes    []string
	TotalAmount    int64
	ProofURL       string
}

// Notifier receives lifecycle events. Delivery is best-effort: callers log
// failures and never propagate them.
type Notifier interface {
	TransactionAccepted(ctx context.Context, notice TransactionNotice) error
	TransactionRejected(ctx context.Context, notice TransactionNotice) error
	ProofUploaded(ctx context.Context, notice TransactionNotice) error
}

// MultiNotifier fans a notice out to every notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) TransactionAccepted(ctx context.Context, notice TransactionNotice) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TransactionAccepted(ctx, notice))
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) TransactionRejected(ctx context.Context, notice TransactionNotice) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TransactionRejected(ctx, notice))
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) ProofUploaded(ctx context.Context, notice TransactionNotice) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.ProofUploaded(ctx, notice))
	}
	return errors.Join(errs...)
}
