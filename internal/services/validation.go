package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"campus-events/internal/status"
	"campus-events/models"
)

// eventFields are the schedule and capacity fields shared by create and edit.
type eventFields struct {
	Title         string
	Category      models.Category
	Date          string
	Time          string
	DurationHours float64
	Venue         string
	MaxAttendees  int
	IsPaid        bool
	TicketPricing []models.TicketTier
}

func validateEvent(f eventFields, loc *time.Location) error {
	if strings.TrimSpace(f.Title) == "" {
		return status.Validation("title is required")
	}
	if !f.Category.Valid() {
		return status.Validation("unknown category %q", f.Category)
	}
	if strings.TrimSpace(f.Venue) == "" {
		return status.Validation("venue is required")
	}
	if f.MaxAttendees < 1 {
		return status.Validation("max attendees must be at least 1")
	}
	if f.DurationHours < 0 {
		return status.Validation("duration must not be negative")
	}
	if _, err := models.ParseStart(f.Date, f.Time, loc); err != nil {
		return status.Validation("date must be YYYY-MM-DD and time HH:MM")
	}
	return validateTiers(f.TicketPricing)
}

func validateTiers(tiers []models.TicketTier) error {
	seen := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		name := strings.TrimSpace(t.Type)
		if name == "" {
			return status.Validation("ticket type is required")
		}
		if seen[name] {
			return status.Validation("duplicate ticket type %q", name)
		}
		seen[name] = true
		if t.Price.IsNegative() {
			return status.Validation("ticket %q has a negative price", name)
		}
		if t.Available < 0 {
			return status.Validation("ticket %q has negative availability", name)
		}
		if t.Sold > t.Available {
			return status.Validation("ticket %q cannot offer fewer than the %d already sold", name, t.Sold)
		}
	}
	return nil
}

func validateAmount(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return status.Validation("%s must not be negative", field)
	}
	return nil
}

func validateRequirements(reqs []models.ResourceRequirement) error {
	for _, r := range reqs {
		if !r.ResourceType.Valid() {
			return status.Validation("unknown resource type %q", r.ResourceType)
		}
		if r.Quantity < 1 {
			return status.Validation("resource quantity must be at least 1")
		}
	}
	return nil
}
