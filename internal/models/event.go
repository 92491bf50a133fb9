package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event lifecycle statuses. Only published events accept purchases.
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusEnded     = "ended"
)

type Event struct {
	BaseModel
	OrganizerID uuid.UUID      `gorm:"type:uuid;index" json:"organizer_id"`
	Name        string         `json:"name"`
	Slug        string         `gorm:"index" json:"slug"`
	Status      string         `gorm:"type:varchar(20);index" json:"status"`
	EventDate   time.Time      `json:"event_date"`
	VenueName   string         `json:"venue_name"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TicketTier is a priced ticket category with a fixed quota.
// SoldCount is only changed by the inventory ledger.
type TicketTier struct {
	BaseModel
	EventID   uuid.UUID      `gorm:"type:uuid;index" json:"event_id"`
	Name      string         `json:"name"`
	Price     int64          `json:"price"`
	Quota     int            `gorm:"check:quota >= 1" json:"quota"`
	SoldCount int            `gorm:"default:0;check:sold_count >= 0" json:"sold_count"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Available returns the number of unsold tickets.
func (t TicketTier) Available() int {
	return t.Quota - t.SoldCount
}
