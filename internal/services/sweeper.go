package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/store"
)

const (
	jobExpire  = "expire_payment"
	jobTimeout = "confirmation_timeout"
)

// Sweeper forces overdue transactions into their terminal state. Each record
// is settled in its own unit of work, so one failure never blocks the rest.
type Sweeper struct {
	store        store.Store
	transactions *TransactionService
	lock         *SweepLock
	interval     time.Duration
	now          func() time.Time
}

// NewSweeper constructs Sweeper. lock may be nil for a single replica.
func NewSweeper(st store.Store, transactions *TransactionService, lock *SweepLock, interval time.Duration, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		store:        st,
		transactions: transactions,
		lock:         lock,
		interval:     interval,
		now:          now,
	}
}

// SweepResult counts the transactions settled by one pass.
type SweepResult struct {
	Expired  int
	Canceled int
}

// SweepExpired expires unpaid transactions past their payment deadline.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	return s.sweep(ctx, jobExpire, models.StatusWaitingForPayment, s.transactions.ExpirePayment)
}

// SweepUnconfirmed cancels transactions nobody confirmed in time.
func (s *Sweeper) SweepUnconfirmed(ctx context.Context) (int, error) {
	return s.sweep(ctx, jobTimeout, models.StatusWaitingForAdminConfirmation, s.transactions.CancelUnconfirmed)
}

func (s *Sweeper) sweep(ctx context.Context, job string, status models.PaymentStatus, settle func(context.Context, uuid.UUID) error) (int, error) {
	var ids []uuid.UUID
	err := s.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		var err error
		ids, err = uow.ListOverdue(ctx, status, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := settle(ctx, id); err != nil {
			if errors.Is(err, errNotDue) {
				continue
			}
			sweepFailures.WithLabelValues(job).Inc()
			log.Printf("[Sweeper] %s failed for transaction %s: %v", job, id, err)
			continue
		}
		count++
	}

	sweptTransactions.WithLabelValues(job).Add(float64(count))
	return count, nil
}

// RunOnce runs both sweeps. When a lock is configured and another replica
// holds it, the pass is skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("[Sweeper] Failed to release lock: %v", err)
			}
		}()
	}

	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	expired, expireErr := s.SweepExpired(ctx)
	result.Expired = expired
	canceled, cancelErr := s.SweepUnconfirmed(ctx)
	result.Canceled = canceled

	if result.Expired > 0 || result.Canceled > 0 {
		log.Printf("[Sweeper] Expired %d, canceled %d transactions", result.Expired, result.Canceled)
	}
	return result, errors.Join(expireErr, cancelErr)
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] Started, interval %s", s.interval)
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Sweeper] Pass failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Stopped")
			return
		case <-ticker.C:
		}
	}
}
