package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/store"
	"github.com/example/eventhub/internal/utils"
)

// Action is an event that drives a transaction between statuses.
type Action string

const (
	ActionUploadProof         Action = "upload_proof"
	ActionAccept              Action = "accept"
	ActionReject              Action = "reject"
	ActionCancel              Action = "cancel"
	ActionExpire              Action = "expire"
	ActionConfirmationTimeout Action = "confirmation_timeout"
)

func (a Action) verb() string {
	switch a {
	case ActionUploadProof:
		return "upload proof for"
	case ActionConfirmationTimeout:
		return "time out"
	default:
		return string(a)
	}
}

var transitions = map[models.PaymentStatus]map[Action]models.PaymentStatus{
	models.StatusWaitingForPayment: {
		ActionUploadProof: models.StatusWaitingForAdminConfirmation,
		ActionCancel:      models.StatusCanceled,
		ActionExpire:      models.StatusExpired,
	},
	models.StatusWaitingForAdminConfirmation: {
		ActionAccept:              models.StatusDone,
		ActionReject:              models.StatusRejected,
		ActionConfirmationTimeout: models.StatusCanceled,
	},
}

// NextStatus returns the status action leads to from current, or a
// *StateTransitionError when the action is not allowed there.
func NextStatus(current models.PaymentStatus, action Action) (models.PaymentStatus, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", &StateTransitionError{Current: current, Action: action}
}

// releases reports whether entering status gives back the reservation.
func releases(status models.PaymentStatus) bool {
	return status == models.StatusCanceled || status == models.StatusExpired || status == models.StatusRejected
}

// errNotDue marks a sweep candidate that was settled or extended by a
// concurrent action between selection and locking.
var errNotDue = errors.New("transaction no longer due")

// TransactionOptions tunes TransactionService.
type TransactionOptions struct {
	PaymentWindow      time.Duration
	ConfirmationWindow time.Duration
	Now                func() time.Time
}

// TransactionService owns the purchase lifecycle. Every mutation runs in one
// unit of work together with the inventory and discount changes it implies.
type TransactionService struct {
	store     store.Store
	ledger    *InventoryLedger
	discounts *DiscountResolver
	proofs    ProofStorage
	notifier  Notifier

	paymentWindow      time.Duration
	confirmationWindow time.Duration
	now                func() time.Time

	wg sync.WaitGroup
}

// NewTransactionService constructs TransactionService.
func NewTransactionService(st store.Store, proofs ProofStorage, notifier Notifier, opts TransactionOptions) *TransactionService {
	if opts.PaymentWindow <= 0 {
		opts.PaymentWindow = 2 * time.Hour
	}
	if opts.ConfirmationWindow <= 0 {
		opts.ConfirmationWindow = 72 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = MultiNotifier(nil)
	}

	return &TransactionService{
		store:              st,
		ledger:             NewInventoryLedger(),
		discounts:          NewDiscountResolver(opts.Now),
		proofs:             proofs,
		notifier:           notifier,
		paymentWindow:      opts.PaymentWindow,
		confirmationWindow: opts.ConfirmationWindow,
		now:                opts.Now,
	}
}

// CreateItemInput is one requested ticket line.
type CreateItemInput struct {
	TicketTierID uuid.UUID
	Quantity     int
}

// CreateTransactionInput is a purchase request.
type CreateTransactionInput struct {
	EventID        uuid.UUID
	Items          []CreateItemInput
	UsePoints      bool
	UserCouponID   *uuid.UUID
	EventVoucherID *uuid.UUID
}

const invoiceAttempts = 5

// Create reserves tickets, applies discounts and persists the transaction.
// A free order is done immediately.
func (s *TransactionService) Create(ctx context.Context, userID uuid.UUID, in CreateTransactionInput) (*models.Transaction, error) {
	if len(in.Items) == 0 {
		return nil, newError(ErrValidation, "at least one ticket is required")
	}
	for _, item := range in.Items {
		if item.Quantity < 1 {
			return nil, newError(ErrValidation, "ticket quantity must be at least 1")
		}
	}
	lines := mergeItems(in.Items)

	var created *models.Transaction
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		now := s.now()

		event, err := uow.FindEvent(ctx, in.EventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return newError(ErrNotFound, "event not found")
			}
			return err
		}
		if event.Status != models.EventStatusPublished {
			return newError(ErrEventUnavailable, "event %q is not open for purchase", event.Name)
		}

		var subtotal int64
		items := make([]models.TransactionItem, 0, len(lines))
		for _, item := range lines {
			tier, err := s.ledger.Reserve(ctx, uow, event.ID, item.TicketTierID, item.Quantity)
			if err != nil {
				return err
			}
			line := tier.Price * int64(item.Quantity)
			subtotal += line
			items = append(items, models.TransactionItem{
				TicketTierID: tier.ID,
				Quantity:     item.Quantity,
				UnitPrice:    tier.Price,
				Subtotal:     line,
			})
		}

		quote, err := s.discounts.Apply(ctx, uow, DiscountRequest{
			UserID:         userID,
			EventID:        event.ID,
			Subtotal:       subtotal,
			UsePoints:      in.UsePoints,
			UserCouponID:   in.UserCouponID,
			EventVoucherID: in.EventVoucherID,
		})
		if err != nil {
			return err
		}

		invoice, err := s.newInvoiceNumber(ctx, uow, now)
		if err != nil {
			return err
		}

		txn := &models.Transaction{
			UserID:          userID,
			EventID:         event.ID,
			InvoiceNumber:   invoice,
			Subtotal:        subtotal,
			PointsUsed:      quote.PointsUsed,
			CouponDiscount:  quote.CouponDiscount,
			VoucherDiscount: quote.VoucherDiscount,
			TotalAmount:     quote.Total(subtotal),
			PaymentStatus:   models.StatusWaitingForPayment,
			PaymentDeadline: now.Add(s.paymentWindow),
			UserCouponID:    quote.UserCouponID,
			EventVoucherID:  quote.EventVoucherID,
			Items:           items,
		}
		if txn.TotalAmount == 0 {
			txn.PaymentStatus = models.StatusDone
			txn.ConfirmedAt = &now
		}

		if err := uow.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.discounts.Record(ctx, uow, txn, quote); err != nil {
			return err
		}

		created = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	transactionsCreated.WithLabelValues(string(created.PaymentStatus)).Inc()
	ticketsReserved.Add(float64(created.TotalQuantity()))
	log.Printf("[Transaction] Created %s (%s) total=%d status=%s", created.InvoiceNumber, created.ID, created.TotalAmount, created.PaymentStatus)
	return created, nil
}

// mergeItems sums duplicate tier lines and orders them by tier id, so that
// concurrent orders always lock tiers in the same order.
func mergeItems(in []CreateItemInput) []CreateItemInput {
	index := make(map[uuid.UUID]int, len(in))
	merged := make([]CreateItemInput, 0, len(in))
	for _, item := range in {
		if i, ok := index[item.TicketTierID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.TicketTierID] = len(merged)
		merged = append(merged, item)
	}
	sort.Slice(merged, func(i, j int) bool {
		return bytes.Compare(merged[i].TicketTierID[:], merged[j].TicketTierID[:]) < 0
	})
	return merged
}

func (s *TransactionService) newInvoiceNumber(ctx context.Context, uow store.UnitOfWork, now time.Time) (string, error) {
	for i := 0; i < invoiceAttempts; i++ {
		invoice, err := utils.GenerateInvoiceNumber(now)
		if err != nil {
			return "", err
		}
		exists, err := uow.InvoiceExists(ctx, invoice)
		if err != nil {
			return "", err
		}
		if !exists {
			return invoice, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique invoice number after %d attempts", invoiceAttempts)
}

// UploadProof stores the buyer's payment proof and moves the transaction to
// admin confirmation. The blob is deleted again if the transaction cannot be
// updated afterwards.
func (s *TransactionService) UploadProof(ctx context.Context, userID, txnID uuid.UUID, data []byte) (*models.Transaction, error) {
	if len(data) == 0 {
		return nil, newError(ErrValidation, "payment proof is empty")
	}

	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		txn, err := uow.FindTransaction(ctx, txnID)
		if err != nil {
			return translateNotFound(err, "transaction not found")
		}
		return s.checkProofUpload(txn, userID)
	})
	if err != nil {
		return nil, err
	}

	stored, err := s.proofs.Upload(ctx, data, ProofFolder(txnID))
	if err != nil {
		return nil, fmt.Errorf("upload payment proof: %w", err)
	}

	var (
		updated *models.Transaction
		notice  *TransactionNotice
	)
	err = s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		txn, err := uow.LockTransaction(ctx, txnID)
		if err != nil {
			return translateNotFound(err, "transaction not found")
		}
		if err := s.checkProofUpload(txn, userID); err != nil {
			return err
		}

		now := s.now()
		deadline := now.Add(s.confirmationWindow)
		url := stored.URL
		txn.PaymentStatus = models.StatusWaitingForAdminConfirmation
		txn.PaymentProofURL = &url
		txn.ProofUploadedAt = &now
		txn.ConfirmationDeadline = &deadline

		if err := uow.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		updated = txn
		notice = s.buildNotice(ctx, uow, txn)
		return nil
	})
	if err != nil {
		if delErr := s.proofs.Delete(context.WithoutCancel(ctx), stored.ID); delErr != nil {
			log.Printf("[Transaction] Failed to delete orphaned proof %s for %s: %v", stored.ID, txnID, delErr)
		}
		return nil, err
	}

	transactionTransitions.WithLabelValues(string(ActionUploadProof), string(updated.PaymentStatus)).Inc()
	log.Printf("[Transaction] Proof uploaded for %s", updated.InvoiceNumber)
	if notice != nil {
		s.notify("proof_uploaded", *notice, s.notifier.ProofUploaded)
	}
	return updated, nil
}

func (s *TransactionService) checkProofUpload(txn *models.Transaction, userID uuid.UUID) error {
	if txn.UserID != userID {
		return newError(ErrForbidden, "you do not have access to this transaction")
	}
	if _, err := NextStatus(txn.PaymentStatus, ActionUploadProof); err != nil {
		return err
	}
	if s.now().After(txn.PaymentDeadline) {
		return newError(ErrDeadlinePassed, "payment deadline has passed")
	}
	return nil
}

// Cancel lets the buyer abandon an unpaid transaction.
func (s *TransactionService) Cancel(ctx context.Context, userID, txnID uuid.UUID) (*models.Transaction, error) {
	var canceled *models.Transaction
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		txn, err := uow.LockTransaction(ctx, txnID)
		if err != nil {
			return translateNotFound(err, "transaction not found")
		}
		if txn.UserID != userID {
			return newError(ErrForbidden, "you do not have access to this transaction")
		}
		if err := s.apply(ctx, uow, txn, ActionCancel); err != nil {
			return err
		}
		canceled = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Transaction] Canceled %s by buyer", canceled.InvoiceNumber)
	return canceled, nil
}

// Accept confirms a transaction awaiting confirmation and emails the buyer.
func (s *TransactionService) Accept(ctx context.Context, organizerUserID, txnID uuid.UUID) (*models.Transaction, error) {
	return s.decide(ctx, organizerUserID, txnID, ActionAccept)
}

// Reject refuses a transaction awaiting confirmation, gives back its
// reservation and emails the buyer.
func (s *TransactionService) Reject(ctx context.Context, organizerUserID, txnID uuid.UUID) (*models.Transaction, error) {
	return s.decide(ctx, organizerUserID, txnID, ActionReject)
}

func (s *TransactionService) decide(ctx context.Context, organizerUserID, txnID uuid.UUID, action Action) (*models.Transaction, error) {
	var (
		decided *models.Transaction
		notice  *TransactionNotice
	)
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		txn, err := uow.LockTransaction(ctx, txnID)
		if err != nil {
			return translateNotFound(err, "transaction not found")
		}
		if err := s.authorizeOrganizer(ctx, uow, organizerUserID, txn); err != nil {
			return err
		}
		if _, err := NextStatus(txn.PaymentStatus, action); err != nil {
			return err
		}

		now := s.now()
		if txn.ConfirmationDeadline != nil && now.After(*txn.ConfirmationDeadline) {
			return newError(ErrDeadlinePassed, "confirmation deadline has passed")
		}

		txn.ConfirmedAt = &now
		if err := s.apply(ctx, uow, txn, action); err != nil {
			return err
		}
		decided = txn
		notice = s.buildNotice(ctx, uow, txn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Transaction] %s %s by organizer %s", decided.PaymentStatus, decided.InvoiceNumber, organizerUserID)
	if notice != nil {
		if action == ActionAccept {
			s.notify("accepted", *notice, s.notifier.TransactionAccepted)
		} else {
			s.notify("rejected", *notice, s.notifier.TransactionRejected)
		}
	}
	return decided, nil
}

// ExpirePayment moves an unpaid transaction past its payment deadline to
// expired. It returns errNotDue when the transaction has left
// waiting_for_payment or its deadline has not passed.
func (s *TransactionService) ExpirePayment(ctx context.Context, txnID uuid.UUID) error {
	return s.settleOverdue(ctx, txnID, ActionExpire, func(txn *models.Transaction, now time.Time) bool {
		return txn.PaymentStatus == models.StatusWaitingForPayment && now.After(txn.PaymentDeadline)
	})
}

// CancelUnconfirmed cancels a transaction nobody confirmed before its
// confirmation deadline.
func (s *TransactionService) CancelUnconfirmed(ctx context.Context, txnID uuid.UUID) error {
	return s.settleOverdue(ctx, txnID, ActionConfirmationTimeout, func(txn *models.Transaction, now time.Time) bool {
		return txn.PaymentStatus == models.StatusWaitingForAdminConfirmation &&
			txn.ConfirmationDeadline != nil && now.After(*txn.ConfirmationDeadline)
	})
}

func (s *TransactionService) settleOverdue(ctx context.Context, txnID uuid.UUID, action Action, due func(*models.Transaction, time.Time) bool) error {
	return s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		txn, err := uow.LockTransaction(ctx, txnID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNotDue
			}
			return err
		}
		if !due(txn, s.now()) {
			return errNotDue
		}
		return s.apply(ctx, uow, txn, action)
	})
}

// apply moves txn along action, releases its reservation when the new status
// is a refunding terminal one, and persists it.
func (s *TransactionService) apply(ctx context.Context, uow store.UnitOfWork, txn *models.Transaction, action Action) error {
	next, err := NextStatus(txn.PaymentStatus, action)
	if err != nil {
		return err
	}
	txn.PaymentStatus = next

	if releases(next) {
		if err := s.release(ctx, uow, txn); err != nil {
			return err
		}
	}
	if err := uow.UpdateTransaction(ctx, txn); err != nil {
		return err
	}

	transactionTransitions.WithLabelValues(string(action), string(next)).Inc()
	return nil
}

// release gives back the tickets and discounts held by txn. ReleasedAt makes
// it a no-op the second time.
func (s *TransactionService) release(ctx context.Context, uow store.UnitOfWork, txn *models.Transaction) error {
	if txn.ReleasedAt != nil {
		return nil
	}
	if err := s.ledger.ReleaseItems(ctx, uow, txn.Items); err != nil {
		return err
	}
	if err := s.discounts.Rollback(ctx, uow, txn); err != nil {
		return err
	}

	now := s.now()
	txn.ReleasedAt = &now
	ticketsReleased.Add(float64(txn.TotalQuantity()))
	return nil
}

func (s *TransactionService) authorizeOrganizer(ctx context.Context, uow store.UnitOfWork, organizerUserID uuid.UUID, txn *models.Transaction) error {
	organizer, err := uow.FindOrganizerByUser(ctx, organizerUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrForbidden, "organizer profile not found")
		}
		return err
	}
	event, err := uow.FindEvent(ctx, txn.EventID)
	if err != nil {
		return translateNotFound(err, "event not found")
	}
	if event.OrganizerID != organizer.ID {
		return newError(ErrForbidden, "you do not organize this event")
	}
	return nil
}

// buildNotice gathers what notifiers need. A lookup failure only costs the
// notification.
func (s *TransactionService) buildNotice(ctx context.Context, uow store.UnitOfWork, txn *models.Transaction) *TransactionNotice {
	user, err := uow.FindUser(ctx, txn.UserID)
	if err != nil {
		log.Printf("[Transaction] Notification for %s skipped: buyer lookup: %v", txn.InvoiceNumber, err)
		return nil
	}
	event, err := uow.FindEvent(ctx, txn.EventID)
	if err != nil {
		log.Printf("[Transaction] Notification for %s skipped: event lookup: %v", txn.InvoiceNumber, err)
		return nil
	}

	tierIDs := make([]uuid.UUID, 0, len(txn.Items))
	for _, item := range txn.Items {
		tierIDs = append(tierIDs, item.TicketTierID)
	}
	tiers, err := uow.ListTicketTiers(ctx, tierIDs)
	if err != nil {
		log.Printf("[Transaction] Notification for %s skipped: tier lookup: %v", txn.InvoiceNumber, err)
		return nil
	}
	names := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		names = append(names, tier.Name)
	}

	notice := &TransactionNotice{
		TransactionID:  txn.ID,
		InvoiceNumber:  txn.InvoiceNumber,
		BuyerName:      user.FullName,
		BuyerEmail:     user.Email,
		EventName:      event.Name,
		EventSlug:      event.Slug,
		EventDate:      event.EventDate,
		TicketQuantity: txn.TotalQuantity(),
		TicketTypes:    names,
		TotalAmount:    txn.TotalAmount,
	}
	if txn.PaymentProofURL != nil {
		notice.ProofURL = *txn.PaymentProofURL
	}
	return notice
}

const notifyTimeout = 30 * time.Second

// notify delivers in the background; failures are logged and counted only.
func (s *TransactionService) notify(kind string, notice TransactionNotice, send func(context.Context, TransactionNotice) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				notificationFailures.WithLabelValues(kind).Inc()
				log.Printf("[Transaction] %s notification for %s panicked: %v", kind, notice.InvoiceNumber, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := send(ctx, notice); err != nil {
			notificationFailures.WithLabelValues(kind).Inc()
			log.Printf("[Transaction] %s notification for %s failed: %v", kind, notice.InvoiceNumber, err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *TransactionService) Wait() {
	s.wg.Wait()
}

// ListTransactionsInput filters and pages a listing.
type ListTransactionsInput struct {
	Status  models.PaymentStatus
	EventID uuid.UUID
	Page    int
	Limit   int
}

// PageInfo describes one page of a listing.
type PageInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// TransactionPage is one page of transactions.
type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	Pagination   PageInfo             `json:"pagination"`
}

// ListForCustomer lists the buyer's own transactions, newest first.
func (s *TransactionService) ListForCustomer(ctx context.Context, userID uuid.UUID, in ListTransactionsInput) (*TransactionPage, error) {
	return s.list(ctx, in, func(store.UnitOfWork) (store.TransactionFilter, error) {
		return store.TransactionFilter{UserID: userID, EventID: in.EventID}, nil
	})
}

// ListForOrganizer lists transactions for the organizer's events.
func (s *TransactionService) ListForOrganizer(ctx context.Context, organizerUserID uuid.UUID, in ListTransactionsInput) (*TransactionPage, error) {
	return s.list(ctx, in, func(uow store.UnitOfWork) (store.TransactionFilter, error) {
		organizer, err := uow.FindOrganizerByUser(ctx, organizerUserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.TransactionFilter{}, newError(ErrForbidden, "organizer profile not found")
			}
			return store.TransactionFilter{}, err
		}
		return store.TransactionFilter{OrganizerID: organizer.ID, EventID: in.EventID}, nil
	})
}

func (s *TransactionService) list(ctx context.Context, in ListTransactionsInput, scope func(store.UnitOfWork) (store.TransactionFilter, error)) (*TransactionPage, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, newError(ErrValidation, "unknown payment status %q", in.Status)
	}
	pagination := utils.NewPagination(in.Page, in.Limit)

	var page *TransactionPage
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		filter, err := scope(uow)
		if err != nil {
			return err
		}
		filter.Status = in.Status
		filter.Limit = pagination.Limit
		filter.Offset = pagination.Offset

		txns, total, err := uow.ListTransactions(ctx, filter)
		if err != nil {
			return err
		}
		if txns == nil {
			txns = []models.Transaction{}
		}
		page = &TransactionPage{
			Transactions: txns,
			Pagination: PageInfo{
				Page:       pagination.Page,
				Limit:      pagination.Limit,
				Total:      total,
				TotalPages: utils.TotalPages(total, pagination.Limit),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetForCustomer returns one of the buyer's transactions.
func (s *TransactionService) GetForCustomer(ctx context.Context, userID, txnID uuid.UUID) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		found, err := uow.FindTransaction(ctx, txnID)
		if err != nil {
			return translateNotFound(err, "transaction not found")
		}
		if found.UserID != userID {
			return newError(ErrForbidden, "you do not have access to this transaction")
		}
		txn = found
		return nil
	})
	return txn, err
}

// GetForOrganizer returns a transaction for one of the organizer's events.
func (s *TransactionService) GetForOrganizer(ctx context.Context, organizerUserID, txnID uuid.UUID) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		found, err := uow.FindTransaction(ctx, txnID)
		if err != nil {
			return translateNotFound(err, "transaction not found")
		}
		if err := s.authorizeOrganizer(ctx, uow, organizerUserID, found); err != nil {
			return err
		}
		txn = found
		return nil
	})
	return txn, err
}

func translateNotFound(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(ErrNotFound, "%s", message)
	}
	return err
}
