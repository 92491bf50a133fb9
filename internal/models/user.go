package models

import "github.com/google/uuid"

// Roles carried in access tokens.
const (
	RoleCustomer  = "customer"
	RoleOrganizer = "organizer"
)

// User represents an authenticated account.
type User struct {
	BaseModel
	FullName     string `json:"full_name"`
	Email        string `gorm:"uniqueIndex" json:"email"`
	PasswordHash string `json:"-"`
	Role         string `gorm:"type:varchar(20);default:customer" json:"role"`
}

// Organizer is the publishing side of an account; it owns events.
type Organizer struct {
	BaseModel
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Name   string    `json:"name"`
}
