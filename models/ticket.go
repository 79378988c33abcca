package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttendeeStatus string

const (
	AttendeeStatusRegistered AttendeeStatus = "registered"
	AttendeeStatusAttended   AttendeeStatus = "attended"
	AttendeeStatusCancelled  AttendeeStatus = "cancelled"
)

// TicketTier is a priced ticket category with its own inventory.
type TicketTier struct {
	Type      string          `json:"ticket_type"` // regular, vip, student, early_bird
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available"`
	Sold      int             `json:"sold"`
}

func (t TicketTier) SoldOut() bool {
	return t.Sold >= t.Available
}

type Attendee struct {
	UserID        string          `json:"user_id"`
	UserName      string          `json:"user_name,omitempty"`
	RegisteredAt  time.Time       `json:"registered_at"`
	Status        AttendeeStatus  `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	TicketType    string          `json:"ticket_type,omitempty"`
	TicketCode    string          `json:"ticket_code"`
	CheckedInAt   *time.Time      `json:"checked_in_at,omitempty"`
}

func (a Attendee) clone() Attendee {
	a.CheckedInAt = cloneTime(a.CheckedInAt)
	return a
}
