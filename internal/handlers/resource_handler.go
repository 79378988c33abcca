package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"campus-events/internal/services"
	"campus-events/models"
)

type ResourceHandler struct {
	allocation *services.AllocationService
}

func NewResourceHandler(allocation *services.AllocationService) *ResourceHandler {
	return &ResourceHandler{allocation: allocation}
}

// window reads RFC 3339 start and end query parameters.
func window(e *core.RequestEvent) (time.Time, time.Time, error) {
	query := e.Request.URL.Query()
	start, err := time.Parse(time.RFC3339, query.Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, apis.NewBadRequestError("start must be an RFC 3339 timestamp", nil)
	}
	end, err := time.Parse(time.RFC3339, query.Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, apis.NewBadRequestError("end must be an RFC 3339 timestamp", nil)
	}
	return start, end, nil
}

func (h *ResourceHandler) ListResources(e *core.RequestEvent) error {
	resources, err := h.allocation.List(e.Request.Context())
	return respond(e, http.StatusOK, map[string]any{"resources": resources, "total": len(resources)}, err)
}

func (h *ResourceHandler) GetResource(e *core.RequestEvent) error {
	r, err := h.allocation.Get(e.Request.Context(), e.Request.PathValue("id"))
	return respond(e, http.StatusOK, r, err)
}

func (h *ResourceHandler) CreateResource(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req services.CreateResourceRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	r, err := h.allocation.CreateResource(ctx, req)
	return respond(e, http.StatusCreated, r, err)
}

func (h *ResourceHandler) CheckAvailability(e *core.RequestEvent) error {
	start, end, err := window(e)
	if err != nil {
		return err
	}
	available, err := h.allocation.CheckAvailability(e.Request.Context(), e.Request.PathValue("id"), start, end)
	return respond(e, http.StatusOK, map[string]any{"available": available}, err)
}

func (h *ResourceHandler) Assign(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req struct {
		EventID string    `json:"event_id"`
		Start   time.Time `json:"start"`
		End     time.Time `json:"end"`
	}
	if err := bindBody(e, &req); err != nil {
		return err
	}
	r, err := h.allocation.Assign(ctx, e.Request.PathValue("id"), req.EventID, req.Start, req.End)
	return respond(e, http.StatusCreated, r, err)
}

func (h *ResourceHandler) Release(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	r, err := h.allocation.Release(ctx, e.Request.PathValue("id"), e.Request.PathValue("eventId"))
	return respond(e, http.StatusOK, r, err)
}

func (h *ResourceHandler) ApproveAssignment(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	r, err := h.allocation.ApproveAssignment(ctx, e.Request.PathValue("id"), e.Request.PathValue("eventId"))
	return respond(e, http.StatusOK, r, err)
}

func (h *ResourceHandler) RejectAssignment(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	r, err := h.allocation.RejectAssignment(ctx, e.Request.PathValue("id"), e.Request.PathValue("eventId"))
	return respond(e, http.StatusOK, r, err)
}

func (h *ResourceHandler) SetMaintenance(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req struct {
		Status models.MaintenanceStatus `json:"maintenance_status"`
	}
	if err := bindBody(e, &req); err != nil {
		return err
	}
	r, err := h.allocation.SetMaintenance(ctx, e.Request.PathValue("id"), req.Status)
	return respond(e, http.StatusOK, r, err)
}

func (h *ResourceHandler) SetAvailability(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req struct {
		Available bool `json:"is_available"`
	}
	if err := bindBody(e, &req); err != nil {
		return err
	}
	r, err := h.allocation.SetAvailability(ctx, e.Request.PathValue("id"), req.Available)
	return respond(e, http.StatusOK, r, err)
}

func (h *ResourceHandler) Utilization(e *core.RequestEvent) error {
	start, end, err := window(e)
	if err != nil {
		return err
	}
	u, err := h.allocation.UtilizationStats(e.Request.Context(), e.Request.PathValue("id"), start, end)
	return respond(e, http.StatusOK, u, err)
}
