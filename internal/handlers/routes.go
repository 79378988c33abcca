package handlers

import (
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	"campus-events/internal/services"
)

type Handlers struct {
	Events        *EventHandler
	Registrations *RegistrationHandler
	Resources     *ResourceHandler
	Budget        *BudgetHandler
}

func New(engine *services.Engine, reminderLead time.Duration) *Handlers {
	return &Handlers{
		Events:        NewEventHandler(engine.Lifecycle, engine.Conflicts, reminderLead),
		Registrations: NewRegistrationHandler(engine.Registration, engine.Feedback),
		Resources:     NewResourceHandler(engine.Allocation),
		Budget:        NewBudgetHandler(engine.Budget),
	}
}

// Routes registers the API under /api/v1. Everything that acts on behalf of
// a caller requires an authenticated record and passes through limit when
// one is given.
func (h *Handlers) Routes(r *router.Router[*core.RequestEvent], limit func(*core.RequestEvent) error) {
	public := r.Group("/api/v1")
	public.POST("/events/clash-check", h.Events.CheckClash)
	public.GET("/events", h.Events.ListEvents)
	public.GET("/events/reminders", h.Events.UpcomingReminders)
	public.GET("/events/{id}", h.Events.GetEvent)
	public.GET("/events/{id}/stats", h.Registrations.Stats)
	public.GET("/events/{id}/budget", h.Budget.Summary)
	public.GET("/resources", h.Resources.ListResources)
	public.GET("/resources/{id}", h.Resources.GetResource)
	public.GET("/resources/{id}/availability", h.Resources.CheckAvailability)
	public.GET("/resources/{id}/utilization", h.Resources.Utilization)

	secured := r.Group("/api/v1")
	secured.Bind(apis.RequireAuth())
	if limit != nil {
		secured.BindFunc(limit)
	}

	// Lifecycle
	secured.POST("/events", h.Events.CreateEvent)
	secured.PATCH("/events/{id}", h.Events.EditEvent)
	secured.DELETE("/events/{id}", h.Events.DeleteEvent)
	secured.POST("/events/{id}/submit", h.Events.SubmitEvent)
	secured.POST("/events/{id}/approve", h.Events.ApproveEvent)
	secured.POST("/events/{id}/reject", h.Events.RejectEvent)
	secured.POST("/events/{id}/cancel", h.Events.CancelEvent)

	// Registration and feedback
	secured.POST("/events/{id}/registrations", h.Registrations.Register)
	secured.DELETE("/events/{id}/registrations", h.Registrations.Unregister)
	secured.DELETE("/events/{id}/registrations/{userId}", h.Registrations.Unregister)
	secured.POST("/events/{id}/registrations/{userId}/payment", h.Registrations.RecordPayment)
	secured.POST("/events/{id}/check-in", h.Registrations.CheckIn)
	secured.GET("/events/{id}/ticket", h.Registrations.TicketQR)
	secured.POST("/events/{id}/feedback", h.Registrations.SubmitFeedback)
	secured.PUT("/events/{id}/feedback", h.Registrations.UpdateFeedback)

	// Budget
	secured.PUT("/events/{id}/budget", h.Budget.SetBudget)
	secured.POST("/events/{id}/expenses", h.Budget.AddExpense)
	secured.POST("/events/{id}/expenses/{expenseId}/approve", h.Budget.ApproveExpense)
	secured.POST("/events/{id}/expenses/{expenseId}/reject", h.Budget.RejectExpense)

	// Resources
	secured.POST("/resources", h.Resources.CreateResource)
	secured.POST("/resources/{id}/assignments", h.Resources.Assign)
	secured.DELETE("/resources/{id}/assignments/{eventId}", h.Resources.Release)
	secured.POST("/resources/{id}/assignments/{eventId}/approve", h.Resources.ApproveAssignment)
	secured.POST("/resources/{id}/assignments/{eventId}/reject", h.Resources.RejectAssignment)
	secured.PUT("/resources/{id}/maintenance", h.Resources.SetMaintenance)
	secured.PUT("/resources/{id}/availability", h.Resources.SetAvailability)
}
