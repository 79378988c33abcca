package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"campus-events/internal/notify"
	"campus-events/internal/status"
	"campus-events/internal/store"
	"campus-events/models"
)

type CreateEventRequest struct {
	Title         string                       `json:"title"`
	Description   string                       `json:"description"`
	Category      models.Category              `json:"category"`
	Date          string                       `json:"date"`
	Time          string                       `json:"time"`
	DurationHours float64                      `json:"duration"`
	Venue         string                       `json:"venue"`
	MaxAttendees  int                          `json:"max_attendees"`
	IsPaid        bool                         `json:"is_paid"`
	TicketPricing []models.TicketTier          `json:"ticket_pricing"`
	Resources     []models.ResourceRequirement `json:"resources"`
	// Draft keeps the event out of the approval queue until Submit.
	Draft bool `json:"draft"`
}

// EventUpdate lists the fields an organizer may change while the event is
// still a draft or pending. Nil fields are left alone.
type EventUpdate struct {
	Title         *string                       `json:"title,omitempty"`
	Description   *string                       `json:"description,omitempty"`
	Category      *models.Category              `json:"category,omitempty"`
	Date          *string                       `json:"date,omitempty"`
	Time          *string                       `json:"time,omitempty"`
	DurationHours *float64                      `json:"duration,omitempty"`
	Venue         *string                       `json:"venue,omitempty"`
	MaxAttendees  *int                          `json:"max_attendees,omitempty"`
	IsPaid        *bool                         `json:"is_paid,omitempty"`
	TicketPricing *[]models.TicketTier          `json:"ticket_pricing,omitempty"`
	Resources     *[]models.ResourceRequirement `json:"resources,omitempty"`
}

func (u EventUpdate) apply(ev *models.Event) error {
	if u.Title != nil {
		ev.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		ev.Description = *u.Description
	}
	if u.Category != nil {
		ev.Category = *u.Category
	}
	if u.Date != nil {
		ev.Date = *u.Date
	}
	if u.Time != nil {
		ev.Time = *u.Time
	}
	if u.DurationHours != nil {
		ev.DurationHours = *u.DurationHours
	}
	if u.Venue != nil {
		ev.Venue = strings.TrimSpace(*u.Venue)
	}
	if u.MaxAttendees != nil {
		ev.MaxAttendees = *u.MaxAttendees
	}
	if u.IsPaid != nil {
		ev.IsPaid = *u.IsPaid
	}
	if u.Resources != nil {
		ev.Resources = append([]models.ResourceRequirement(nil), (*u.Resources)...)
	}
	if u.TicketPricing != nil {
		tiers, err := mergeTiers(ev.TicketPricing, *u.TicketPricing)
		if err != nil {
			return err
		}
		ev.TicketPricing = tiers
	}
	return nil
}

// mergeTiers replaces the tier list while carrying each tier's sold count
// over by type. A tier that already sold tickets cannot be dropped.
func mergeTiers(current, next []models.TicketTier) ([]models.TicketTier, error) {
	sold := make(map[string]int, len(current))
	for _, t := range current {
		sold[t.Type] = t.Sold
	}
	out := make([]models.TicketTier, len(next))
	for i, t := range next {
		t.Type = strings.TrimSpace(t.Type)
		t.Sold = sold[t.Type]
		delete(sold, t.Type)
		out[i] = t
	}
	for name, n := range sold {
		if n > 0 {
			return nil, status.Validation("ticket %q has %d sold and cannot be removed", name, n)
		}
	}
	return out, nil
}

func fieldsOf(ev models.Event) eventFields {
	return eventFields{
		Title:         ev.Title,
		Category:      ev.Category,
		Date:          ev.Date,
		Time:          ev.Time,
		DurationHours: ev.DurationHours,
		Venue:         ev.Venue,
		MaxAttendees:  ev.MaxAttendees,
		IsPaid:        ev.IsPaid,
		TicketPricing: ev.TicketPricing,
	}
}

// Reminder is what an external scheduler needs to remind attendees; the
// engine itself never sends it.
type Reminder struct {
	EventID      string    `json:"event_id"`
	Title        string    `json:"title"`
	Venue        string    `json:"venue"`
	Start        time.Time `json:"start"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Recipients   []string  `json:"recipients"`
}

type LifecycleService struct {
	base
	conflicts *ConflictService
}

func NewLifecycleService(deps Deps, conflicts *ConflictService) *LifecycleService {
	if conflicts == nil {
		conflicts = NewConflictService(deps)
	}
	return &LifecycleService{base: newBase(deps), conflicts: conflicts}
}

func (s *LifecycleService) Get(ctx context.Context, id string) (models.Event, error) {
	return s.Store.GetEvent(ctx, id)
}

func (s *LifecycleService) List(ctx context.Context, q store.EventQuery) ([]models.Event, error) {
	return s.Store.ListEvents(ctx, q)
}

// Create stores a new event owned by the caller, pending approval unless a
// draft was requested. The coarse venue availability is recorded on it but
// never blocks creation.
func (s *LifecycleService) Create(ctx context.Context, req CreateEventRequest) (ev models.Event, err error) {
	ctx, done := s.begin(ctx, "create_event", attribute.String("venue", req.Venue))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Event{}, err
	}
	if !user.ActingAs(models.RoleOrganizer) && !user.ActingAs(models.RoleFaculty) && !user.IsAdmin() {
		return models.Event{}, status.StateGuard("role %q cannot create events", user.ActiveRole)
	}

	tiers, err := mergeTiers(nil, req.TicketPricing)
	if err != nil {
		return models.Event{}, err
	}
	ev = models.Event{
		ID:            s.NewID(),
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      req.Category,
		Date:          req.Date,
		Time:          req.Time,
		DurationHours: req.DurationHours,
		Venue:         strings.TrimSpace(req.Venue),
		MaxAttendees:  req.MaxAttendees,
		Status:        models.EventStatusPending,
		Organizer:     user.Ref(),
		IsPaid:        req.IsPaid,
		TicketPricing: tiers,
		Attendees:     []models.Attendee{},
		Resources:     append([]models.ResourceRequirement(nil), req.Resources...),
		Feedback:      []models.Feedback{},
		Expenses:      []models.Expense{},
	}
	if req.Draft {
		ev.Status = models.EventStatusDraft
	}
	if ev.DurationHours == 0 {
		ev.DurationHours = models.DefaultDurationHours
	}
	if err := validateEvent(fieldsOf(ev), s.Settings.Location); err != nil {
		return models.Event{}, err
	}
	if err := validateRequirements(ev.Resources); err != nil {
		return models.Event{}, err
	}

	ev.VenueAvailability, err = s.conflicts.VenueAvailability(ctx, ev)
	if err != nil {
		return models.Event{}, err
	}
	ev, err = s.Store.CreateEvent(ctx, ev)
	if err != nil {
		return models.Event{}, err
	}

	s.Logger.InfoContext(ctx, "Event created", "event_id", ev.ID, "status", ev.Status, "venue_available", ev.VenueAvailability.Available)
	return ev, nil
}

// Edit applies upd while the event is a draft or pending.
func (s *LifecycleService) Edit(ctx context.Context, id string, upd EventUpdate) (ev models.Event, err error) {
	ctx, done := s.begin(ctx, "edit_event", attribute.String("event_id", id))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Event{}, err
	}
	current, err := s.Store.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if err := requireOwner(user, current); err != nil {
		return models.Event{}, err
	}
	if err := editable(current); err != nil {
		return models.Event{}, err
	}

	return s.Store.UpdateEvent(ctx, id, func(ev *models.Event) error {
		if err := editable(*ev); err != nil {
			return err
		}
		if err := upd.apply(ev); err != nil {
			return err
		}
		if ev.DurationHours == 0 {
			ev.DurationHours = models.DefaultDurationHours
		}
		if err := validateEvent(fieldsOf(*ev), s.Settings.Location); err != nil {
			return err
		}
		if err := validateRequirements(ev.Resources); err != nil {
			return err
		}
		if ev.MaxAttendees < len(ev.Attendees) {
			return status.Validation("max attendees cannot drop below the %d already registered", len(ev.Attendees))
		}
		// Computed from the locked copy so a concurrent venue or date
		// change cannot leave a flag describing another slot.
		availability, err := s.conflicts.VenueAvailability(ctx, *ev)
		if err != nil {
			return err
		}
		ev.VenueAvailability = availability
		return nil
	})
}

func editable(ev models.Event) error {
	if !ev.CanBeEdited() {
		return status.WithMetadata(status.KindStateGuard, fmt.Sprintf("event cannot be edited while %s", ev.Status), map[string]string{
			"event_id": ev.ID,
			"status":   string(ev.Status),
		})
	}
	return nil
}

// Delete removes a draft, or a pending event nobody registered for.
func (s *LifecycleService) Delete(ctx context.Context, id string) (err error) {
	ctx, done := s.begin(ctx, "delete_event", attribute.String("event_id", id))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return err
	}
	err = s.Store.DeleteEvent(ctx, id, func(ev models.Event) error {
		if err := requireOwner(user, ev); err != nil {
			return err
		}
		if !ev.CanBeDeleted() {
			return status.WithMetadata(status.KindStateGuard, fmt.Sprintf("event cannot be deleted while %s with %d attendees", ev.Status, len(ev.Attendees)), map[string]string{
				"event_id": ev.ID,
				"status":   string(ev.Status),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "Event deleted", "event_id", id, "user_id", user.ID)
	return nil
}

// Submit moves a draft into the approval queue.
func (s *LifecycleService) Submit(ctx context.Context, id string) (ev models.Event, err error) {
	ctx, done := s.begin(ctx, "submit_event", attribute.String("event_id", id))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Event{}, err
	}
	ev, err = s.Store.UpdateEvent(ctx, id, func(ev *models.Event) error {
		if err := requireOwner(user, *ev); err != nil {
			return err
		}
		return transition(ev, models.EventStatusPending)
	})
	if err != nil {
		return models.Event{}, err
	}
	s.notify(ctx, notify.Notification{
		Recipients: []string{ev.Organizer.ID},
		Type:       notify.TypeEventSubmitted,
		Message:    fmt.Sprintf("%q was submitted for approval", ev.Title),
		Metadata:   map[string]string{"event_id": ev.ID},
	})
	return ev, nil
}

func (s *LifecycleService) Approve(ctx context.Context, id, notes string) (ev models.Event, err error) {
	ctx, done := s.begin(ctx, "approve_event", attribute.String("event_id", id))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Event{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Event{}, err
	}
	ev, err = s.Store.UpdateEvent(ctx, id, func(ev *models.Event) error {
		if err := transition(ev, models.EventStatusApproved); err != nil {
			return err
		}
		ev.IsAvailable = true
		ev.Approval = &models.Decision{By: user.ID, At: s.Now(), Reason: notes}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}

	s.Logger.InfoContext(ctx, "Event approved", "event_id", ev.ID, "admin_id", user.ID)
	s.notify(ctx, notify.Notification{
		Recipients: []string{ev.Organizer.ID},
		Type:       notify.TypeEventApproved,
		Message:    fmt.Sprintf("%q has been approved", ev.Title),
		Metadata:   map[string]string{"event_id": ev.ID, "notes": notes},
	})
	return ev, nil
}

func (s *LifecycleService) Reject(ctx context.Context, id, reason string) (ev models.Event, err error) {
	ctx, done := s.begin(ctx, "reject_event", attribute.String("event_id", id))
	defer done(&err)

	if strings.TrimSpace(reason) == "" {
		return models.Event{}, status.Validation("rejection reason is required")
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Event{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Event{}, err
	}
	ev, err = s.Store.UpdateEvent(ctx, id, func(ev *models.Event) error {
		if err := transition(ev, models.EventStatusRejected); err != nil {
			return err
		}
		ev.IsAvailable = false
		ev.Rejection = &models.Decision{By: user.ID, At: s.Now(), Reason: reason}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}

	s.Logger.InfoContext(ctx, "Event rejected", "event_id", ev.ID, "admin_id", user.ID)
	s.notify(ctx, notify.Notification{
		Recipients: []string{ev.Organizer.ID},
		Type:       notify.TypeEventRejected,
		Message:    fmt.Sprintf("%q was rejected: %s", ev.Title, reason),
		Metadata:   map[string]string{"event_id": ev.ID, "reason": reason},
	})
	return ev, nil
}

// Cancel calls off an approved event while it is still more than the
// cancellation lead away, and tells everyone registered.
func (s *LifecycleService) Cancel(ctx context.Context, id, reason string) (ev models.Event, err error) {
	ctx, done := s.begin(ctx, "cancel_event", attribute.String("event_id", id))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Event{}, err
	}
	now := s.Now()
	ev, err = s.Store.UpdateEvent(ctx, id, func(ev *models.Event) error {
		if err := requireOwner(user, *ev); err != nil {
			return err
		}
		if ev.Status == models.EventStatusApproved && !ev.CanBeCancelled(now, s.Settings.CancellationLead, s.Settings.Location) {
			return status.WithMetadata(status.KindStateGuard,
				fmt.Sprintf("events can only be cancelled more than %s before they start", s.Settings.CancellationLead),
				map[string]string{"event_id": ev.ID})
		}
		if err := transition(ev, models.EventStatusCancelled); err != nil {
			return err
		}
		ev.IsAvailable = false
		ev.Cancellation = &models.Decision{By: user.ID, At: now, Reason: reason}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}

	s.Logger.InfoContext(ctx, "Event cancelled", "event_id", ev.ID, "user_id", user.ID)
	s.notify(ctx, notify.Notification{
		Recipients: activeAttendeeIDs(ev),
		Type:       notify.TypeEventCancelled,
		Message:    fmt.Sprintf("%q on %s has been cancelled", ev.Title, ev.Date),
		Metadata:   map[string]string{"event_id": ev.ID, "reason": reason},
	})
	return ev, nil
}

// UpcomingReminders lists approved events starting within lead of now.
func (s *LifecycleService) UpcomingReminders(ctx context.Context, now time.Time, lead time.Duration) (reminders []Reminder, err error) {
	ctx, done := s.begin(ctx, "upcoming_reminders")
	defer done(&err)

	loc := s.Settings.Location
	events, err := s.Store.ListEvents(ctx, store.EventQuery{
		From:     now.In(loc).Format(models.DateLayout),
		To:       now.Add(lead).In(loc).Format(models.DateLayout),
		Statuses: []models.EventStatus{models.EventStatusApproved},
	})
	if err != nil {
		return nil, err
	}
	reminders = make([]Reminder, 0, len(events))
	for _, ev := range events {
		start, err := models.ParseStart(ev.Date, ev.Time, loc)
		if err != nil || start.Before(now) || start.Sub(now) > lead {
			continue
		}
		reminders = append(reminders, Reminder{
			EventID:      ev.ID,
			Title:        ev.Title,
			Venue:        ev.Venue,
			Start:        start,
			ScheduledFor: start.Add(-lead),
			Recipients:   activeAttendeeIDs(ev),
		})
	}
	return reminders, nil
}

// transition moves ev to target if the lifecycle allows it.
func transition(ev *models.Event, target models.EventStatus) error {
	if !transitionAllowed(ev.Status, target) {
		return status.WithMetadata(status.KindStateGuard,
			fmt.Sprintf("event status transition not allowed: %s -> %s", ev.Status, target),
			map[string]string{"event_id": ev.ID, "from_status": string(ev.Status), "to_status": string(target)})
	}
	ev.Status = target
	return nil
}

func transitionAllowed(from, to models.EventStatus) bool {
	switch from {
	case models.EventStatusDraft:
		return to == models.EventStatusPending
	case models.EventStatusPending:
		return to == models.EventStatusApproved || to == models.EventStatusRejected
	case models.EventStatusApproved:
		return to == models.EventStatusCancelled
	default:
		return false
	}
}

func activeAttendeeIDs(ev models.Event) []string {
	ids := make([]string, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		if a.Status != models.AttendeeStatusCancelled {
			ids = append(ids, a.UserID)
		}
	}
	return ids
}
