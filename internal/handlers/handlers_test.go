package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-events/internal/identity"
	"campus-events/internal/services"
	"campus-events/internal/status"
	"campus-events/internal/store"
	"campus-events/models"
)

var usersCollection = func() *core.Collection {
	c := core.NewAuthCollection("users")
	c.Fields.Add(
		&core.TextField{Name: "name"},
		&core.SelectField{Name: "roles", MaxSelect: 4, Values: []string{"student", "organizer", "faculty", "admin"}},
		&core.TextField{Name: "active_role"},
	)
	return c
}()

func authRecord(id, name, active string, roles ...string) *core.Record {
	rec := core.NewRecord(usersCollection)
	rec.Id = id
	rec.Set("name", name)
	rec.Set("roles", roles)
	rec.Set("active_role", active)
	return rec
}

var (
	adminRec     = authRecord("admin-1", "Grace", "admin", "admin", "faculty")
	organizerRec = authRecord("org-1", "Ada", "organizer", "organizer", "student")
	studentRec   = authRecord("s1", "Sam", "student", "student")
)

func newEngine() *services.Engine {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	return services.NewEngine(services.Deps{
		Store: store.NewMemoryStore(store.Options{Now: clock}),
		Now:   clock,
	})
}

func newEvent(t *testing.T, method, target string, body any, auth *core.Record, path map[string]string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range path {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	e.Auth = auth
	return e, rec
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Status
}

func TestUserFromRecord(t *testing.T) {
	user := UserFromRecord(organizerRec)
	assert.Equal(t, "org-1", user.ID)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, []models.Role{models.RoleOrganizer, models.RoleStudent}, user.Roles)
	assert.Equal(t, models.RoleOrganizer, user.ActiveRole)

	bare := UserFromRecord(authRecord("u9", "Nobody", ""))
	assert.Equal(t, []models.Role{models.RoleStudent}, bare.Roles)
	assert.Equal(t, models.RoleStudent, bare.ActiveRole)

	stale := UserFromRecord(authRecord("u8", "Former admin", "admin", "student"))
	assert.Equal(t, models.RoleStudent, stale.ActiveRole)
}

func TestCallerContext(t *testing.T) {
	e, _ := newEvent(t, http.MethodPost, "/", nil, nil, nil)
	_, err := callerContext(e)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))

	e, _ = newEvent(t, http.MethodPost, "/", nil, adminRec, nil)
	e.Request.Header.Set(ActiveRoleHeader, "faculty")
	ctx, err := callerContext(e)
	require.NoError(t, err)
	user, ok := identity.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, models.RoleFaculty, user.ActiveRole)

	e, _ = newEvent(t, http.MethodPost, "/", nil, studentRec, nil)
	e.Request.Header.Set(ActiveRoleHeader, "admin")
	_, err = callerContext(e)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{status.Validation("bad"), http.StatusBadRequest},
		{status.NotFound("event", "e1"), http.StatusNotFound},
		{status.WithMetadata(status.KindStateGuard, "admin role required", map[string]string{"user_id": "u1"}), http.StatusForbidden},
		{status.StateGuard("event is approved"), http.StatusConflict},
		{status.New(status.KindCapacityExceeded, "full"), http.StatusConflict},
		{status.New(status.KindDuplicate, "again"), http.StatusConflict},
		{status.New(status.KindConflict, "booked"), http.StatusConflict},
		{status.New(status.KindTransientConflict, "retry"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(status.KindOf(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.want, apiStatus(t, toAPIError(tt.err)))
		})
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestEventFlow(t *testing.T) {
	h := New(newEngine(), 24*time.Hour)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/events", services.CreateEventRequest{
		Title: "Robotics Expo", Category: models.CategoryTechnical, Date: "2025-09-15", Time: "14:00",
		DurationHours: 2, Venue: "Hall 1", MaxAttendees: 1,
	}, organizerRec, nil)
	require.NoError(t, h.Events.CreateEvent(e))
	assert.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Event](t, rec)
	assert.Equal(t, models.EventStatusPending, created.Status)
	path := map[string]string{"id": created.ID}

	e, _ = newEvent(t, http.MethodPost, "/", map[string]string{"notes": "ok"}, organizerRec, path)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, h.Events.ApproveEvent(e)))

	e, rec = newEvent(t, http.MethodPost, "/", map[string]string{"notes": "ok"}, adminRec, path)
	require.NoError(t, h.Events.ApproveEvent(e))
	assert.Equal(t, models.EventStatusApproved, decode[models.Event](t, rec).Status)

	e, rec = newEvent(t, http.MethodPost, "/", nil, studentRec, path)
	require.NoError(t, h.Registrations.Register(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	e, _ = newEvent(t, http.MethodPost, "/", nil, organizerRec, path)
	e.Request.Header.Set(ActiveRoleHeader, "student")
	assert.Equal(t, http.StatusConflict, apiStatus(t, h.Registrations.Register(e)), "event is full")

	e, rec = newEvent(t, http.MethodGet, "/", nil, studentRec, path)
	require.NoError(t, h.Registrations.TicketQR(e))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	e, rec = newEvent(t, http.MethodGet, "/", nil, nil, path)
	require.NoError(t, h.Registrations.Stats(e))
	stats := decode[services.EventStats](t, rec)
	assert.Equal(t, 1, stats.Registered)
	assert.Zero(t, stats.AvailableSeats)

	e, rec = newEvent(t, http.MethodPost, "/", services.ClashRequest{Date: "2025-09-15", Time: "15:00", DurationHours: 1, Venue: "Hall 1"}, nil, nil)
	require.NoError(t, h.Events.CheckClash(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	clash := decode[services.ClashResult](t, rec)
	assert.False(t, clash.Available)
	require.Len(t, clash.Conflicts, 1)
	assert.Equal(t, created.ID, clash.Conflicts[0].EventID)

	e, _ = newEvent(t, http.MethodDelete, "/", nil, organizerRec, path)
	assert.Equal(t, http.StatusConflict, apiStatus(t, h.Events.DeleteEvent(e)))
}

func TestListEvents_RejectsUnknownStatus(t *testing.T) {
	h := New(newEngine(), 24*time.Hour)

	e, _ := newEvent(t, http.MethodGet, "/api/v1/events?status=approved,archived", nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, h.Events.ListEvents(e)))

	e, rec := newEvent(t, http.MethodGet, "/api/v1/events?status=approved", nil, nil, nil)
	require.NoError(t, h.Events.ListEvents(e))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResourceWindowParsing(t *testing.T) {
	h := New(newEngine(), 24*time.Hour)

	e, _ := newEvent(t, http.MethodGet, "/api/v1/resources/r1/availability?start=tomorrow&end=later", nil, nil, map[string]string{"id": "r1"})
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, h.Resources.CheckAvailability(e)))

	e, _ = newEvent(t, http.MethodGet, "/api/v1/resources/r1/availability?start=2025-09-15T09:00:00Z&end=2025-09-15T11:00:00Z", nil, nil, map[string]string{"id": "r1"})
	assert.Equal(t, http.StatusNotFound, apiStatus(t, h.Resources.CheckAvailability(e)))
}
