package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-events/internal/notify"
	"campus-events/internal/status"
	"campus-events/internal/store"
	"campus-events/models"
)

func TestCreate_DefaultsAndOwnership(t *testing.T) {
	h := newHarness(t)
	req := eventRequest("Hall 1", "2025-09-15", "14:00", 0)
	req.Title = "  Robotics Expo  "

	ev, err := h.Lifecycle.Create(as(organizer), req)
	require.NoError(t, err)

	assert.Equal(t, "id-1", ev.ID)
	assert.Equal(t, "Robotics Expo", ev.Title)
	assert.Equal(t, models.EventStatusPending, ev.Status)
	assert.Equal(t, models.DefaultDurationHours, ev.DurationHours)
	assert.Equal(t, organizer.Ref(), ev.Organizer)
	assert.False(t, ev.IsAvailable)
	assert.True(t, ev.VenueAvailability.Available)
	assert.Empty(t, ev.Attendees)
	assert.Equal(t, testNow, ev.CreatedAt)
}

func TestCreate_Draft(t *testing.T) {
	h := newHarness(t)
	req := eventRequest("Hall 1", "2025-09-15", "14:00", 1)
	req.Draft = true

	ev, err := h.Lifecycle.Create(as(organizer), req)

	require.NoError(t, err)
	assert.Equal(t, models.EventStatusDraft, ev.Status)
}

func TestCreate_RequiresOrganizingRole(t *testing.T) {
	h := newHarness(t)

	_, err := h.Lifecycle.Create(as(student("s1")), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	assert.ErrorIs(t, err, status.ErrStateGuard)

	_, err = h.Lifecycle.Create(context.Background(), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	assert.ErrorIs(t, err, status.ErrStateGuard)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		mutate func(*CreateEventRequest)
	}{
		{"missing title", func(r *CreateEventRequest) { r.Title = " " }},
		{"unknown category", func(r *CreateEventRequest) { r.Category = "party" }},
		{"missing venue", func(r *CreateEventRequest) { r.Venue = "" }},
		{"zero capacity", func(r *CreateEventRequest) { r.MaxAttendees = 0 }},
		{"negative duration", func(r *CreateEventRequest) { r.DurationHours = -2 }},
		{"bad date", func(r *CreateEventRequest) { r.Date = "2025-13-40" }},
		{"bad time", func(r *CreateEventRequest) { r.Time = "25:00" }},
		{"negative price", func(r *CreateEventRequest) {
			r.TicketPricing = []models.TicketTier{{Type: "regular", Price: decimal.NewFromInt(-1), Available: 10}}
		}},
		{"duplicate tier", func(r *CreateEventRequest) {
			r.TicketPricing = []models.TicketTier{{Type: "vip", Available: 1}, {Type: "vip", Available: 2}}
		}},
		{"bad resource requirement", func(r *CreateEventRequest) {
			r.Resources = []models.ResourceRequirement{{ResourceType: models.ResourceTypeRoom, Quantity: 0}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := eventRequest("Hall 1", "2025-09-15", "14:00", 1)
			tt.mutate(&req)

			_, err := h.Lifecycle.Create(as(organizer), req)
			assert.ErrorIs(t, err, status.ErrValidation)
		})
	}
}

func TestEdit(t *testing.T) {
	h := newHarness(t)
	ev, err := h.Lifecycle.Create(as(organizer), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	require.NoError(t, err)

	venue := "Hall 2"
	updated, err := h.Lifecycle.Edit(as(organizer), ev.ID, EventUpdate{Venue: &venue})
	require.NoError(t, err)
	assert.Equal(t, "Hall 2", updated.Venue)
	assert.Equal(t, ev.Version+1, updated.Version)

	_, err = h.Lifecycle.Edit(as(rival), ev.ID, EventUpdate{Venue: &venue})
	assert.ErrorIs(t, err, status.ErrStateGuard)

	_, err = h.Lifecycle.Approve(as(admin), ev.ID, "")
	require.NoError(t, err)
	_, err = h.Lifecycle.Edit(as(organizer), ev.ID, EventUpdate{Venue: &venue})
	assert.ErrorIs(t, err, status.ErrStateGuard)
}

// interleavedStore runs between once before the first update takes the
// entity lock, standing in for an edit that lands in that gap.
type interleavedStore struct {
	store.Store
	once    sync.Once
	between func()
}

func (s *interleavedStore) UpdateEvent(ctx context.Context, id string, fn store.EventMutation) (models.Event, error) {
	s.once.Do(s.between)
	return s.Store.UpdateEvent(ctx, id, fn)
}

func TestEdit_VenueFlagFollowsCommittedVenue(t *testing.T) {
	h := newHarness(t)
	ev, err := h.Lifecycle.Create(as(organizer), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	require.NoError(t, err)
	require.True(t, ev.VenueAvailability.Available)
	other := h.seed(t, models.Event{ID: "other", Venue: "Hall 2", Date: "2025-09-15", Time: "09:00", Status: models.EventStatusApproved})

	racing := &interleavedStore{Store: h.store, between: func() {
		_, err := h.store.UpdateEvent(context.Background(), ev.ID, func(e *models.Event) error {
			e.Venue = "Hall 2"
			return nil
		})
		require.NoError(t, err)
	}}
	engine := NewEngine(Deps{Store: racing, Now: h.clock.Now})

	title := "Robotics Expo II"
	updated, err := engine.Lifecycle.Edit(as(organizer), ev.ID, EventUpdate{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "Hall 2", updated.Venue)
	assert.False(t, updated.VenueAvailability.Available)
	assert.Equal(t, []string{other.ID}, updated.VenueAvailability.Conflicts)
}

func TestEdit_KeepsSoldTickets(t *testing.T) {
	h := newHarness(t)
	ev := h.seed(t, models.Event{
		ID: "e1", Venue: "Hall 1", Date: "2025-09-15", Time: "14:00", Status: models.EventStatusPending,
		TicketPricing: []models.TicketTier{{Type: "regular", Price: decimal.NewFromInt(5), Available: 10, Sold: 3}},
	})

	raised := []models.TicketTier{{Type: "regular", Price: decimal.NewFromInt(7), Available: 20}}
	updated, err := h.Lifecycle.Edit(as(organizer), ev.ID, EventUpdate{TicketPricing: &raised})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TicketPricing[0].Sold)
	assert.True(t, decimal.NewFromInt(7).Equal(updated.TicketPricing[0].Price))

	dropped := []models.TicketTier{{Type: "vip", Available: 5}}
	_, err = h.Lifecycle.Edit(as(organizer), ev.ID, EventUpdate{TicketPricing: &dropped})
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestEdit_CapacityBelowAttendees(t *testing.T) {
	h := newHarness(t)
	ev := h.seed(t, models.Event{
		ID: "e1", Venue: "Hall 1", Date: "2025-09-15", Time: "14:00", Status: models.EventStatusPending,
		Attendees: []models.Attendee{{UserID: "s1"}, {UserID: "s2"}},
	})

	one := 1
	_, err := h.Lifecycle.Edit(as(organizer), ev.ID, EventUpdate{MaxAttendees: &one})
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	draftReq := eventRequest("Hall 1", "2025-09-15", "14:00", 1)
	draftReq.Draft = true
	draft, err := h.Lifecycle.Create(as(organizer), draftReq)
	require.NoError(t, err)
	require.NoError(t, h.Lifecycle.Delete(as(organizer), draft.ID))
	_, err = h.Lifecycle.Get(context.Background(), draft.ID)
	assert.ErrorIs(t, err, status.ErrNotFound)

	joined := h.seed(t, models.Event{
		ID: "joined", Venue: "Hall 1", Date: "2025-09-15", Time: "14:00", Status: models.EventStatusPending,
		Attendees: []models.Attendee{{UserID: "s1"}},
	})
	assert.ErrorIs(t, h.Lifecycle.Delete(as(organizer), joined.ID), status.ErrStateGuard)

	approved := h.approvedEvent(t, eventRequest("Hall 2", "2025-09-15", "14:00", 1))
	assert.ErrorIs(t, h.Lifecycle.Delete(as(organizer), approved.ID), status.ErrStateGuard)

	empty, err := h.Lifecycle.Create(as(organizer), eventRequest("Hall 3", "2025-09-15", "14:00", 1))
	require.NoError(t, err)
	assert.ErrorIs(t, h.Lifecycle.Delete(as(rival), empty.ID), status.ErrStateGuard)
	assert.NoError(t, h.Lifecycle.Delete(as(admin), empty.ID))
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	req := eventRequest("Hall 1", "2025-09-15", "14:00", 1)
	req.Draft = true
	ev, err := h.Lifecycle.Create(as(organizer), req)
	require.NoError(t, err)

	_, err = h.Lifecycle.Approve(as(admin), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard, "drafts skip review")

	ev, err = h.Lifecycle.Submit(as(organizer), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusPending, ev.Status)
	assert.Len(t, h.notifier.ofType(notify.TypeEventSubmitted), 1)

	_, err = h.Lifecycle.Submit(as(organizer), ev.ID)
	assert.ErrorIs(t, err, status.ErrStateGuard)
}

func TestApprove(t *testing.T) {
	h := newHarness(t)
	ev, err := h.Lifecycle.Create(as(organizer), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	require.NoError(t, err)

	_, err = h.Lifecycle.Approve(as(organizer), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)

	// Holding the admin role is not enough without acting as admin.
	faculty := admin
	faculty.ActiveRole = models.RoleFaculty
	_, err = h.Lifecycle.Approve(as(faculty), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)

	approved, err := h.Lifecycle.Approve(as(admin), ev.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusApproved, approved.Status)
	assert.True(t, approved.IsAvailable)
	require.NotNil(t, approved.Approval)
	assert.Equal(t, admin.ID, approved.Approval.By)
	assert.Equal(t, "looks good", approved.Approval.Reason)
	assert.Equal(t, testNow, approved.Approval.At)

	sent := h.notifier.ofType(notify.TypeEventApproved)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{organizer.ID}, sent[0].Recipients)
	assert.Equal(t, ev.ID, sent[0].Metadata["event_id"])

	_, err = h.Lifecycle.Approve(as(admin), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)

	_, err = h.Lifecycle.Approve(as(admin), "missing", "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestReject(t *testing.T) {
	h := newHarness(t)
	ev, err := h.Lifecycle.Create(as(organizer), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	require.NoError(t, err)

	_, err = h.Lifecycle.Reject(as(admin), ev.ID, "  ")
	assert.ErrorIs(t, err, status.ErrValidation)

	rejected, err := h.Lifecycle.Reject(as(admin), ev.ID, "venue under renovation")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRejected, rejected.Status)
	require.NotNil(t, rejected.Rejection)
	assert.Equal(t, "venue under renovation", rejected.Rejection.Reason)
	assert.Len(t, h.notifier.ofType(notify.TypeEventRejected), 1)

	// Rejected is terminal.
	_, err = h.Lifecycle.Approve(as(admin), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)
	_, err = h.Lifecycle.Cancel(as(organizer), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ev := h.approvedEvent(t, eventRequest("Hall 1", "2025-09-15", "14:00", 2))
	for _, id := range []string{"s1", "s2"} {
		_, err := h.Registration.Register(as(student(id)), ev.ID, RegisterRequest{})
		require.NoError(t, err)
	}
	require.NoError(t, h.Registration.Unregister(as(student("s2")), ev.ID, ""))

	_, err := h.Lifecycle.Cancel(as(rival), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)

	cancelled, err := h.Lifecycle.Cancel(as(organizer), ev.ID, "speaker unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.IsAvailable)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, "speaker unavailable", cancelled.Cancellation.Reason)

	sent := h.notifier.ofType(notify.TypeEventCancelled)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"s1"}, sent[0].Recipients)

	_, err = h.Lifecycle.Cancel(as(organizer), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)
}

func TestCancel_WithinLeadTime(t *testing.T) {
	h := newHarness(t)
	ev := h.approvedEvent(t, eventRequest("Hall 1", "2025-09-15", "14:00", 2))

	h.clock.Set(time.Date(2025, 9, 14, 15, 0, 0, 0, time.UTC))
	_, err := h.Lifecycle.Cancel(as(organizer), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)

	h.clock.Set(time.Date(2025, 9, 14, 13, 0, 0, 0, time.UTC))
	_, err = h.Lifecycle.Cancel(as(organizer), ev.ID, "")
	assert.NoError(t, err)
}

func TestCancel_PendingIsNotCancellable(t *testing.T) {
	h := newHarness(t)
	ev, err := h.Lifecycle.Create(as(organizer), eventRequest("Hall 1", "2025-09-15", "14:00", 1))
	require.NoError(t, err)

	_, err = h.Lifecycle.Cancel(as(organizer), ev.ID, "")
	assert.ErrorIs(t, err, status.ErrStateGuard)
}

func TestTransitionAllowed(t *testing.T) {
	all := []models.EventStatus{
		models.EventStatusDraft, models.EventStatusPending, models.EventStatusApproved,
		models.EventStatusRejected, models.EventStatusCancelled,
	}
	allowed := map[[2]models.EventStatus]bool{
		{models.EventStatusDraft, models.EventStatusPending}:      true,
		{models.EventStatusPending, models.EventStatusApproved}:   true,
		{models.EventStatusPending, models.EventStatusRejected}:   true,
		{models.EventStatusApproved, models.EventStatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]models.EventStatus{from, to}], transitionAllowed(from, to), "%s -> %s", from, to)
		}
	}
}

func TestUpcomingReminders(t *testing.T) {
	h := newHarness(t)
	soon := h.approvedEvent(t, eventRequest("Hall 1", "2025-09-02", "10:00", 1))
	h.approvedEvent(t, eventRequest("Hall 1", "2025-09-05", "10:00", 1))
	h.seed(t, models.Event{ID: "pending", Venue: "Hall 2", Date: "2025-09-02", Time: "09:00", Status: models.EventStatusPending})
	_, err := h.Registration.Register(as(student("s1")), soon.ID, RegisterRequest{})
	require.NoError(t, err)

	reminders, err := h.Lifecycle.UpcomingReminders(context.Background(), testNow, 48*time.Hour)
	require.NoError(t, err)

	require.Len(t, reminders, 1)
	assert.Equal(t, soon.ID, reminders[0].EventID)
	assert.Equal(t, []string{"s1"}, reminders[0].Recipients)
	assert.Equal(t, time.Date(2025, 9, 2, 10, 0, 0, 0, time.UTC), reminders[0].Start)
	assert.Equal(t, time.Date(2025, 8, 31, 10, 0, 0, 0, time.UTC), reminders[0].ScheduledFor)
}
