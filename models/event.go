package models

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// DefaultDurationHours applies when an event carries no duration.
	DefaultDurationHours = 2.0
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPending   EventStatus = "pending"
	EventStatusApproved  EventStatus = "approved"
	EventStatusRejected  EventStatus = "rejected"
	EventStatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusPending, EventStatusApproved, EventStatusRejected, EventStatusCancelled:
		return true
	}
	return false
}

// Blocking reports whether events in this status occupy their venue.
func (s EventStatus) Blocking() bool {
	return s == EventStatusPending || s == EventStatusApproved
}

type Category string

const (
	CategoryAcademic  Category = "academic"
	CategorySocial    Category = "social"
	CategorySports    Category = "sports"
	CategoryCultural  Category = "cultural"
	CategoryTechnical Category = "technical"
	CategoryWorkshop  Category = "workshop"
	CategoryOther     Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAcademic, CategorySocial, CategorySports, CategoryCultural,
		CategoryTechnical, CategoryWorkshop, CategoryOther:
		return true
	}
	return false
}

type Event struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Category      Category    `json:"category"`
	Date          string      `json:"date"` // YYYY-MM-DD
	Time          string      `json:"time"` // HH:MM, local to the engine's location
	DurationHours float64     `json:"duration"`
	Venue         string      `json:"venue"`
	MaxAttendees  int         `json:"max_attendees"`
	Status        EventStatus `json:"status"`
	IsAvailable   bool        `json:"is_available"`
	Organizer     UserRef     `json:"organizer"`

	IsPaid        bool                  `json:"is_paid"`
	TicketPricing []TicketTier          `json:"ticket_pricing,omitempty"`
	Attendees     []Attendee            `json:"attendees"`
	Resources     []ResourceRequirement `json:"resources,omitempty"`

	Feedback      []Feedback `json:"feedback"`
	AverageRating float64    `json:"average_rating"`
	TotalRatings  int        `json:"total_ratings"`

	Budget   Budget    `json:"budget"`
	Expenses []Expense `json:"expenses"`

	VenueAvailability VenueAvailability `json:"venue_availability"`
	Approval          *Decision         `json:"approval,omitempty"`
	Rejection         *Decision         `json:"rejection,omitempty"`
	Cancellation      *Decision         `json:"cancellation,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decision records who moved an event through an approval step.
type Decision struct {
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"` // notes on approval, reason on reject/cancel
}

// VenueAvailability is the coarse same-day, same-venue flag recorded on save.
type VenueAvailability struct {
	Available bool     `json:"available"`
	Conflicts []string `json:"conflicts"` // ids of other pending/approved events
}

// ResourceRequirement is what an organizer asked for, not what was allocated.
type ResourceRequirement struct {
	ResourceType ResourceType `json:"resource_type"`
	Quantity     int          `json:"quantity"`
	Notes        string       `json:"notes,omitempty"`
}

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Duration falls back to DefaultDurationHours when unset.
func (e Event) Duration() time.Duration {
	hours := e.DurationHours
	if hours <= 0 {
		hours = DefaultDurationHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// Interval returns the event's [start, end) range in loc.
func (e Event) Interval(loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseStart(e.Date, e.Time, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(e.Duration()), nil
}

// ParseStart combines a calendar day and a time of day in loc.
func ParseStart(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start %q %q: %w", date, clock, err)
	}
	return start, nil
}

// CanBeEdited holds while the event has not been decided yet.
func (e Event) CanBeEdited() bool {
	return e.Status == EventStatusDraft || e.Status == EventStatusPending
}

// CanBeDeleted holds for drafts and for pending events nobody joined.
func (e Event) CanBeDeleted() bool {
	if e.Status == EventStatusDraft {
		return true
	}
	return e.Status == EventStatusPending && len(e.Attendees) == 0
}

// CanBeCancelled holds for approved events starting more than lead after now.
func (e Event) CanBeCancelled(now time.Time, lead time.Duration, loc *time.Location) bool {
	if e.Status != EventStatusApproved {
		return false
	}
	start, err := ParseStart(e.Date, e.Time, loc)
	if err != nil {
		return false
	}
	return start.Sub(now) > lead
}

// ActiveAttendees counts attendees that still hold a seat.
func (e Event) ActiveAttendees() int {
	n := 0
	for _, a := range e.Attendees {
		if a.Status != AttendeeStatusCancelled {
			n++
		}
	}
	return n
}

// FindAttendee returns the index of the user's non-cancelled attendee record, or -1.
func (e Event) FindAttendee(userID string) int {
	for i, a := range e.Attendees {
		if a.UserID == userID && a.Status != AttendeeStatusCancelled {
			return i
		}
	}
	return -1
}

func (e Event) FindTier(ticketType string) int {
	for i, t := range e.TicketPricing {
		if t.Type == ticketType {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no slices or pointers with e.
func (e Event) Clone() Event {
	out := e
	out.TicketPricing = append([]TicketTier(nil), e.TicketPricing...)
	out.Resources = append([]ResourceRequirement(nil), e.Resources...)
	out.Feedback = append([]Feedback(nil), e.Feedback...)
	out.Expenses = make([]Expense, len(e.Expenses))
	for i, x := range e.Expenses {
		out.Expenses[i] = x.clone()
	}
	if e.Expenses == nil {
		out.Expenses = nil
	}
	out.Attendees = make([]Attendee, len(e.Attendees))
	for i, a := range e.Attendees {
		out.Attendees[i] = a.clone()
	}
	if e.Attendees == nil {
		out.Attendees = nil
	}
	out.Budget = e.Budget.clone()
	out.VenueAvailability.Conflicts = append([]string(nil), e.VenueAvailability.Conflicts...)
	out.Approval = cloneDecision(e.Approval)
	out.Rejection = cloneDecision(e.Rejection)
	out.Cancellation = cloneDecision(e.Cancellation)
	return out
}

func cloneDecision(d *Decision) *Decision {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
