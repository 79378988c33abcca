package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"campus-events/internal/services"
	"campus-events/internal/store"
	"campus-events/models"
)

type EventHandler struct {
	lifecycle    *services.LifecycleService
	conflicts    *services.ConflictService
	reminderLead time.Duration
}

func NewEventHandler(lifecycle *services.LifecycleService, conflicts *services.ConflictService, reminderLead time.Duration) *EventHandler {
	return &EventHandler{
		lifecycle:    lifecycle,
		conflicts:    conflicts,
		reminderLead: reminderLead,
	}
}

// CheckClash always answers 200; a failed check is reported in the body.
func (h *EventHandler) CheckClash(e *core.RequestEvent) error {
	var req services.ClashRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	return e.JSON(http.StatusOK, h.conflicts.CheckClash(e.Request.Context(), req))
}

func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	q := store.EventQuery{
		Venue:       query.Get("venue"),
		Date:        query.Get("date"),
		From:        query.Get("from"),
		To:          query.Get("to"),
		OrganizerID: query.Get("organizer"),
	}
	if raw := query.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := models.EventStatus(strings.TrimSpace(s))
			if !st.Valid() {
				return apis.NewBadRequestError("Unknown status "+s, nil)
			}
			q.Statuses = append(q.Statuses, st)
		}
	}
	events, err := h.lifecycle.List(e.Request.Context(), q)
	return respond(e, http.StatusOK, map[string]any{"events": events, "total": len(events)}, err)
}

func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	ev, err := h.lifecycle.Get(e.Request.Context(), e.Request.PathValue("id"))
	return respond(e, http.StatusOK, ev, err)
}

func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req services.CreateEventRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	ev, err := h.lifecycle.Create(ctx, req)
	return respond(e, http.StatusCreated, ev, err)
}

func (h *EventHandler) EditEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var upd services.EventUpdate
	if err := bindBody(e, &upd); err != nil {
		return err
	}
	ev, err := h.lifecycle.Edit(ctx, e.Request.PathValue("id"), upd)
	return respond(e, http.StatusOK, ev, err)
}

func (h *EventHandler) DeleteEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	if err := h.lifecycle.Delete(ctx, e.Request.PathValue("id")); err != nil {
		return toAPIError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *EventHandler) SubmitEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	ev, err := h.lifecycle.Submit(ctx, e.Request.PathValue("id"))
	return respond(e, http.StatusOK, ev, err)
}

type decisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *EventHandler) ApproveEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	ev, err := h.lifecycle.Approve(ctx, e.Request.PathValue("id"), req.Notes)
	return respond(e, http.StatusOK, ev, err)
}

func (h *EventHandler) RejectEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	ev, err := h.lifecycle.Reject(ctx, e.Request.PathValue("id"), req.Reason)
	return respond(e, http.StatusOK, ev, err)
}

func (h *EventHandler) CancelEvent(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	ev, err := h.lifecycle.Cancel(ctx, e.Request.PathValue("id"), req.Reason)
	return respond(e, http.StatusOK, ev, err)
}

// UpcomingReminders takes an optional lead such as ?lead=48h.
func (h *EventHandler) UpcomingReminders(e *core.RequestEvent) error {
	lead := h.reminderLead
	if raw := e.Request.URL.Query().Get("lead"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return apis.NewBadRequestError("lead must be a positive duration", nil)
		}
		lead = d
	}
	reminders, err := h.lifecycle.UpcomingReminders(e.Request.Context(), time.Now(), lead)
	return respond(e, http.StatusOK, map[string]any{"reminders": reminders}, err)
}
