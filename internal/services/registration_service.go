package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"

	"campus-events/internal/notify"
	"campus-events/internal/status"
	"campus-events/models"
	"campus-events/utils"
)

type RegisterRequest struct {
	TicketType string `json:"ticket_type,omitempty"`
	// PaymentAmount overrides the tier price when set.
	PaymentAmount *decimal.Decimal `json:"payment_amount,omitempty"`
}

type EventStats struct {
	EventID        string          `json:"event_id"`
	MaxAttendees   int             `json:"max_attendees"`
	Registered     int             `json:"registered"`
	Attended       int             `json:"attended"`
	Cancelled      int             `json:"cancelled"`
	AvailableSeats int             `json:"available_seats"`
	FillRate       float64         `json:"fill_rate"`
	Revenue        decimal.Decimal `json:"revenue"`
	TicketsSold    map[string]int  `json:"tickets_sold,omitempty"`
	AverageRating  float64         `json:"average_rating"`
	TotalRatings   int             `json:"total_ratings"`
}

const qrSize = 256

type RegistrationService struct {
	base
}

func NewRegistrationService(deps Deps) *RegistrationService {
	return &RegistrationService{base: newBase(deps)}
}

// Register signs the caller up for an approved event. Capacity, duplicate and
// ticket tier checks run inside the event update, so concurrent registrations
// can never overfill the event or a tier.
func (s *RegistrationService) Register(ctx context.Context, eventID string, req RegisterRequest) (attendee models.Attendee, err error) {
	ctx, done := s.begin(ctx, "register", attribute.String("event_id", eventID))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Attendee{}, err
	}
	if req.PaymentAmount != nil {
		if err := validateAmount("payment amount", *req.PaymentAmount); err != nil {
			return models.Attendee{}, err
		}
	}
	code, err := utils.TicketCode(eventID)
	if err != nil {
		return models.Attendee{}, err
	}

	ev, err := s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if ev.Status != models.EventStatusApproved {
			return status.WithMetadata(status.KindStateGuard, fmt.Sprintf("registration is closed while the event is %s", ev.Status), map[string]string{
				"event_id": ev.ID,
				"status":   string(ev.Status),
			})
		}
		// A cancelled record left behind by this user does not hold a seat.
		ev.Attendees = slices.DeleteFunc(ev.Attendees, func(a models.Attendee) bool {
			return a.UserID == user.ID && a.Status == models.AttendeeStatusCancelled
		})
		if len(ev.Attendees) >= ev.MaxAttendees {
			return status.WithMetadata(status.KindCapacityExceeded, "event is full", map[string]string{
				"event_id":      ev.ID,
				"max_attendees": fmt.Sprint(ev.MaxAttendees),
			})
		}
		if ev.FindAttendee(user.ID) >= 0 {
			return status.WithMetadata(status.KindDuplicate, "already registered for this event", map[string]string{
				"event_id": ev.ID,
				"user_id":  user.ID,
			})
		}

		// Events with tiers sell every seat through one of them.
		if req.TicketType == "" && len(ev.TicketPricing) > 0 {
			return status.WithMetadata(status.KindValidation, "ticket type is required", map[string]string{
				"event_id": ev.ID,
			})
		}

		amount := decimal.Zero
		if req.TicketType != "" {
			i := ev.FindTier(req.TicketType)
			if i < 0 {
				return status.Validation("unknown ticket type %q", req.TicketType)
			}
			if ev.TicketPricing[i].SoldOut() {
				return status.WithMetadata(status.KindCapacityExceeded, fmt.Sprintf("%s tickets are sold out", req.TicketType), map[string]string{
					"event_id":    ev.ID,
					"ticket_type": req.TicketType,
				})
			}
			ev.TicketPricing[i].Sold++
			amount = ev.TicketPricing[i].Price
		}
		if req.PaymentAmount != nil {
			amount = *req.PaymentAmount
		}

		payment := models.PaymentStatusPending
		if !ev.IsPaid {
			payment = models.PaymentStatusCompleted
		}
		attendee = models.Attendee{
			UserID:        user.ID,
			UserName:      user.Name,
			RegisteredAt:  s.Now(),
			Status:        models.AttendeeStatusRegistered,
			PaymentStatus: payment,
			PaymentAmount: amount,
			TicketType:    req.TicketType,
			TicketCode:    code,
		}
		ev.Attendees = append(ev.Attendees, attendee)
		return nil
	})
	if err != nil {
		if errors.Is(err, status.ErrCapacityExceeded) {
			s.Monitor.TrackCapacityRejection(eventID)
		}
		return models.Attendee{}, err
	}

	s.Monitor.TrackAttendees(ev.ID, ev.ActiveAttendees())
	s.Logger.InfoContext(ctx, "Registered for event", "event_id", ev.ID, "user_id", user.ID, "ticket_type", req.TicketType)
	s.notify(ctx, notify.Notification{
		Recipients: []string{user.ID},
		Type:       notify.TypeRegistrationConfirmed,
		Message:    fmt.Sprintf("You are registered for %q on %s at %s", ev.Title, ev.Date, ev.Time),
		Metadata:   map[string]string{"event_id": ev.ID, "ticket_code": attendee.TicketCode},
	})
	return attendee, nil
}

// Unregister removes userID's registration, or the caller's when userID is
// empty. Removing someone else requires organizing the event or admin.
func (s *RegistrationService) Unregister(ctx context.Context, eventID, userID string) (err error) {
	ctx, done := s.begin(ctx, "unregister", attribute.String("event_id", eventID))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if userID == "" {
		userID = user.ID
	}

	ev, err := s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if userID != user.ID {
			if err := requireOwner(user, *ev); err != nil {
				return err
			}
		}
		i := ev.FindAttendee(userID)
		if i < 0 {
			return status.NotFound("registration", userID)
		}
		removed := ev.Attendees[i]
		ev.Attendees = slices.Delete(ev.Attendees, i, i+1)
		if removed.TicketType != "" {
			if t := ev.FindTier(removed.TicketType); t >= 0 && ev.TicketPricing[t].Sold > 0 {
				ev.TicketPricing[t].Sold--
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Monitor.TrackAttendees(ev.ID, ev.ActiveAttendees())
	s.Logger.InfoContext(ctx, "Unregistered from event", "event_id", ev.ID, "user_id", userID)
	return nil
}

// CheckIn marks the holder of ticketCode as attended.
func (s *RegistrationService) CheckIn(ctx context.Context, eventID, ticketCode string) (attendee models.Attendee, err error) {
	ctx, done := s.begin(ctx, "check_in", attribute.String("event_id", eventID))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Attendee{}, err
	}
	_, err = s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if err := requireOwner(user, *ev); err != nil {
			return err
		}
		if ev.Status != models.EventStatusApproved {
			return status.StateGuard("check-in is only open for approved events")
		}
		i := slices.IndexFunc(ev.Attendees, func(a models.Attendee) bool { return a.TicketCode == ticketCode })
		if i < 0 {
			return status.NotFound("ticket", ticketCode)
		}
		switch ev.Attendees[i].Status {
		case models.AttendeeStatusCancelled:
			return status.StateGuard("registration was cancelled")
		case models.AttendeeStatusAttended:
			return status.New(status.KindDuplicate, "ticket %s already checked in", ticketCode)
		}
		now := s.Now()
		ev.Attendees[i].Status = models.AttendeeStatusAttended
		ev.Attendees[i].CheckedInAt = &now
		attendee = ev.Attendees[i]
		return nil
	})
	if err != nil {
		return models.Attendee{}, err
	}
	return attendee, nil
}

// RecordPayment stores the outcome of a payment made elsewhere.
func (s *RegistrationService) RecordPayment(ctx context.Context, eventID, userID string, ps models.PaymentStatus, amount *decimal.Decimal) (attendee models.Attendee, err error) {
	ctx, done := s.begin(ctx, "record_payment", attribute.String("event_id", eventID))
	defer done(&err)

	if !ps.Valid() {
		return models.Attendee{}, status.Validation("unknown payment status %q", ps)
	}
	if amount != nil {
		if err := validateAmount("payment amount", *amount); err != nil {
			return models.Attendee{}, err
		}
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Attendee{}, err
	}
	_, err = s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if err := requireOwner(user, *ev); err != nil {
			return err
		}
		i := ev.FindAttendee(userID)
		if i < 0 {
			return status.NotFound("registration", userID)
		}
		ev.Attendees[i].PaymentStatus = ps
		if amount != nil {
			ev.Attendees[i].PaymentAmount = *amount
		}
		attendee = ev.Attendees[i]
		return nil
	})
	if err != nil {
		return models.Attendee{}, err
	}
	return attendee, nil
}

// TicketQR renders the attendee's ticket code as a PNG QR code.
func (s *RegistrationService) TicketQR(ctx context.Context, eventID, userID string) (png []byte, err error) {
	ctx, done := s.begin(ctx, "ticket_qr", attribute.String("event_id", eventID))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = user.ID
	}
	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if userID != user.ID {
		if err := requireOwner(user, ev); err != nil {
			return nil, err
		}
	}
	i := ev.FindAttendee(userID)
	if i < 0 {
		return nil, status.NotFound("registration", userID)
	}
	png, err = qrcode.Encode(ev.Attendees[i].TicketCode, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode ticket qr: %w", err)
	}
	return png, nil
}

func (s *RegistrationService) Stats(ctx context.Context, eventID string) (stats EventStats, err error) {
	ctx, done := s.begin(ctx, "event_stats", attribute.String("event_id", eventID))
	defer done(&err)

	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return EventStats{}, err
	}
	stats = EventStats{
		EventID:       ev.ID,
		MaxAttendees:  ev.MaxAttendees,
		Revenue:       decimal.Zero,
		AverageRating: ev.AverageRating,
		TotalRatings:  ev.TotalRatings,
	}
	for _, a := range ev.Attendees {
		switch a.Status {
		case models.AttendeeStatusRegistered:
			stats.Registered++
		case models.AttendeeStatusAttended:
			stats.Attended++
		case models.AttendeeStatusCancelled:
			stats.Cancelled++
		}
		if a.PaymentStatus == models.PaymentStatusCompleted {
			stats.Revenue = stats.Revenue.Add(a.PaymentAmount)
		}
	}
	stats.AvailableSeats = max(ev.MaxAttendees-len(ev.Attendees), 0)
	if ev.MaxAttendees > 0 {
		stats.FillRate = float64(len(ev.Attendees)) / float64(ev.MaxAttendees) * 100
	}
	if len(ev.TicketPricing) > 0 {
		stats.TicketsSold = make(map[string]int, len(ev.TicketPricing))
		for _, t := range ev.TicketPricing {
			stats.TicketsSold[t.Type] = t.Sold
		}
	}
	return stats, nil
}
