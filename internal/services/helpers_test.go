package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"campus-events/internal/identity"
	"campus-events/internal/notify"
	"campus-events/internal/store"
	"campus-events/models"
	"campus-events/monitoring"
)

var testNow = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

var (
	admin     = models.User{ID: "admin-1", Name: "Grace", Roles: []models.Role{models.RoleAdmin, models.RoleFaculty}, ActiveRole: models.RoleAdmin}
	organizer = models.User{ID: "org-1", Name: "Ada", Roles: []models.Role{models.RoleOrganizer, models.RoleStudent}, ActiveRole: models.RoleOrganizer}
	rival     = models.User{ID: "org-2", Name: "Linus", Roles: []models.Role{models.RoleOrganizer}, ActiveRole: models.RoleOrganizer}
)

func student(id string) models.User {
	return models.User{ID: id, Name: "Student " + id, Roles: []models.Role{models.RoleStudent}, ActiveRole: models.RoleStudent}
}

func as(user models.User) context.Context {
	return identity.WithUser(context.Background(), user)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) ofType(t notify.Type) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	*Engine
	store    *store.MemoryStore
	notifier *recordingNotifier
	clock    *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: testNow}
	var seq atomic.Int64
	h := &harness{
		store:    store.NewMemoryStore(store.Options{Now: clock.Now}),
		notifier: &recordingNotifier{},
		clock:    clock,
	}
	h.Engine = NewEngine(Deps{
		Store:    h.store,
		Notifier: h.notifier,
		Monitor:  monitoring.NewMonitor(prometheus.NewRegistry()),
		Now:      clock.Now,
		NewID:    func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	})
	return h
}

func eventRequest(venue, date, clock string, hours float64) CreateEventRequest {
	return CreateEventRequest{
		Title:         "Robotics Expo",
		Category:      models.CategoryTechnical,
		Date:          date,
		Time:          clock,
		DurationHours: hours,
		Venue:         venue,
		MaxAttendees:  50,
	}
}

// approvedEvent creates an event as the organizer and approves it as admin.
func (h *harness) approvedEvent(t *testing.T, req CreateEventRequest) models.Event {
	t.Helper()
	ev, err := h.Lifecycle.Create(as(organizer), req)
	require.NoError(t, err)
	ev, err = h.Lifecycle.Approve(as(admin), ev.ID, "")
	require.NoError(t, err)
	return ev
}

// seed writes an event straight to the store, bypassing the lifecycle.
func (h *harness) seed(t *testing.T, ev models.Event) models.Event {
	t.Helper()
	if ev.Organizer.ID == "" {
		ev.Organizer = organizer.Ref()
	}
	if ev.MaxAttendees == 0 {
		ev.MaxAttendees = 50
	}
	if ev.Category == "" {
		ev.Category = models.CategoryOther
	}
	if ev.Title == "" {
		ev.Title = "Seeded " + ev.ID
	}
	ev, err := h.store.CreateEvent(context.Background(), ev)
	require.NoError(t, err)
	return ev
}
