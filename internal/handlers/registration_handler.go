package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"campus-events/internal/services"
	"campus-events/models"
)

type RegistrationHandler struct {
	registration *services.RegistrationService
	feedback     *services.FeedbackService
}

func NewRegistrationHandler(registration *services.RegistrationService, feedback *services.FeedbackService) *RegistrationHandler {
	return &RegistrationHandler{
		registration: registration,
		feedback:     feedback,
	}
}

func (h *RegistrationHandler) Register(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req services.RegisterRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	attendee, err := h.registration.Register(ctx, e.Request.PathValue("id"), req)
	return respond(e, http.StatusCreated, attendee, err)
}

// Unregister removes the caller, or the user named in the path.
func (h *RegistrationHandler) Unregister(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	if err := h.registration.Unregister(ctx, e.Request.PathValue("id"), e.Request.PathValue("userId")); err != nil {
		return toAPIError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *RegistrationHandler) CheckIn(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req struct {
		TicketCode string `json:"ticket_code"`
	}
	if err := bindBody(e, &req); err != nil {
		return err
	}
	attendee, err := h.registration.CheckIn(ctx, e.Request.PathValue("id"), req.TicketCode)
	return respond(e, http.StatusOK, attendee, err)
}

func (h *RegistrationHandler) RecordPayment(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req struct {
		Status models.PaymentStatus `json:"payment_status"`
		Amount *decimal.Decimal     `json:"payment_amount"`
	}
	if err := bindBody(e, &req); err != nil {
		return err
	}
	attendee, err := h.registration.RecordPayment(ctx, e.Request.PathValue("id"), e.Request.PathValue("userId"), req.Status, req.Amount)
	return respond(e, http.StatusOK, attendee, err)
}

// TicketQR serves the caller's ticket, or ?user=<id> for organizers.
func (h *RegistrationHandler) TicketQR(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	png, err := h.registration.TicketQR(ctx, e.Request.PathValue("id"), e.Request.URL.Query().Get("user"))
	if err != nil {
		return toAPIError(err)
	}
	return e.Blob(http.StatusOK, "image/png", png)
}

func (h *RegistrationHandler) Stats(e *core.RequestEvent) error {
	stats, err := h.registration.Stats(e.Request.Context(), e.Request.PathValue("id"))
	return respond(e, http.StatusOK, stats, err)
}

type feedbackRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *RegistrationHandler) SubmitFeedback(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req feedbackRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	fb, err := h.feedback.Submit(ctx, e.Request.PathValue("id"), req.Rating, req.Review)
	return respond(e, http.StatusCreated, fb, err)
}

func (h *RegistrationHandler) UpdateFeedback(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req feedbackRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	fb, err := h.feedback.Update(ctx, e.Request.PathValue("id"), req.Rating, req.Review)
	return respond(e, http.StatusOK, fb, err)
}
