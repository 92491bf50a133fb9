package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/store"
)

// InventoryLedger tracks sold counts against tier quotas. It holds no lock of
// its own: callers run it inside the unit of work that creates or settles the
// transaction, and the tier row lock plus the guarded increment keep
// 0 <= sold_count <= quota.
type InventoryLedger struct{}

// NewInventoryLedger constructs InventoryLedger.
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{}
}

// Reserve sells qty tickets of a tier that must belong to eventID.
func (l *InventoryLedger) Reserve(ctx context.Context, uow store.UnitOfWork, eventID, tierID uuid.UUID, qty int) (*models.TicketTier, error) {
	if qty < 1 {
		return nil, newError(ErrValidation, "ticket quantity must be at least 1")
	}

	tier, err := uow.LockTicketTier(ctx, tierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(ErrNotFound, "ticket tier %s not found", tierID)
		}
		return nil, err
	}

	if tier.EventID != eventID {
		return nil, newError(ErrValidation, "ticket tier %q does not belong to this event", tier.Name)
	}

	available := tier.Available()
	if qty > available {
		return nil, newError(ErrInsufficientInventory, "not enough tickets for %q, available: %d", tier.Name, available)
	}

	if err := uow.AddSoldCount(ctx, tierID, qty); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, newError(ErrInsufficientInventory, "not enough tickets for %q", tier.Name)
		}
		return nil, err
	}

	tier.SoldCount += qty
	return tier, nil
}

// Release returns qty tickets of a tier to sale.
func (l *InventoryLedger) Release(ctx context.Context, uow store.UnitOfWork, tierID uuid.UUID, qty int) error {
	if err := uow.AddSoldCount(ctx, tierID, -qty); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("release %d tickets of tier %s: sold count would go negative", qty, tierID)
		}
		return err
	}
	return nil
}

// ReleaseItems releases every line of a transaction.
func (l *InventoryLedger) ReleaseItems(ctx context.Context, uow store.UnitOfWork, items []models.TransactionItem) error {
	for _, item := range items {
		if err := l.Release(ctx, uow, item.TicketTierID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
