package model

import (
	"strings"
	"time"
)

// Customer is resolved at checkout by document, falling back to email.
// Order-time contact data lives on the order snapshot, never here.
type Customer struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DocumentType   string  `gorm:"size:10;not null;uniqueIndex:idx_customer_document" json:"document_type"`
	DocumentNumber string  `gorm:"size:30;not null;uniqueIndex:idx_customer_document" json:"document_number"`
	FirstName      string  `gorm:"size:80;not null" json:"first_name"`
	LastName       string  `gorm:"size:80" json:"last_name"`
	Email          *string `gorm:"size:254;uniqueIndex" json:"email,omitempty"`
	Phone          string  `gorm:"size:30" json:"phone"`
	IsActive       bool    `gorm:"not null" json:"is_active"`
}

func (Customer) TableName() string { return "customers" }

func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}
