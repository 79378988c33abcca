package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"campus-events/internal/notify"
	"campus-events/internal/status"
	"campus-events/models"
	"campus-events/utils"
)

type CreateResourceRequest struct {
	Name     string                  `json:"name"`
	Type     models.ResourceType     `json:"type"`
	Category models.ResourceCategory `json:"category"`
	Location string                  `json:"location"`
	Capacity int                     `json:"capacity"`
}

type Utilization struct {
	ResourceID           string    `json:"resource_id"`
	WindowStart          time.Time `json:"window_start"`
	WindowEnd            time.Time `json:"window_end"`
	Assignments          int       `json:"assignments"`
	BookedHours          float64   `json:"booked_hours"`
	UtilizationPercent   float64   `json:"utilization_percent"`
	AverageDurationHours float64   `json:"average_duration_hours"`
}

type AllocationService struct {
	base
}

func NewAllocationService(deps Deps) *AllocationService {
	return &AllocationService{base: newBase(deps)}
}

func (s *AllocationService) Get(ctx context.Context, id string) (models.Resource, error) {
	return s.Store.GetResource(ctx, id)
}

func (s *AllocationService) List(ctx context.Context) ([]models.Resource, error) {
	return s.Store.ListResources(ctx)
}

func (s *AllocationService) CreateResource(ctx context.Context, req CreateResourceRequest) (r models.Resource, err error) {
	ctx, done := s.begin(ctx, "create_resource")
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Resource{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Resource{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return models.Resource{}, status.Validation("resource name is required")
	}
	if !req.Type.Valid() {
		return models.Resource{}, status.Validation("unknown resource type %q", req.Type)
	}
	if req.Category == "" {
		req.Category = models.ResourceCategoryOther
	}
	if !req.Category.Valid() {
		return models.Resource{}, status.Validation("unknown resource category %q", req.Category)
	}
	if req.Capacity < 0 {
		return models.Resource{}, status.Validation("capacity must not be negative")
	}

	return s.Store.CreateResource(ctx, models.Resource{
		ID:                s.NewID(),
		Name:              strings.TrimSpace(req.Name),
		Type:              req.Type,
		Category:          req.Category,
		Location:          req.Location,
		Capacity:          req.Capacity,
		IsAvailable:       true,
		MaintenanceStatus: models.MaintenanceOperational,
		AssignedTo:        []models.Assignment{},
	})
}

// IsAvailableForPeriod is false for resources that are switched off or under
// maintenance, and otherwise false iff a pending or approved assignment
// overlaps [start, end).
func IsAvailableForPeriod(r models.Resource, start, end time.Time) bool {
	return r.Usable() && blockingOverlap(r, start, end) == nil
}

func blockingOverlap(r models.Resource, start, end time.Time) *models.Assignment {
	for i, a := range r.AssignedTo {
		if a.Status.Blocking() && utils.Overlaps(start, end, a.Start, a.End) {
			return &r.AssignedTo[i]
		}
	}
	return nil
}

func validWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return status.Validation("start and end are required")
	}
	if !start.Before(end) {
		return status.Validation("start must be before end")
	}
	return nil
}

func (s *AllocationService) CheckAvailability(ctx context.Context, resourceID string, start, end time.Time) (available bool, err error) {
	ctx, done := s.begin(ctx, "check_resource_availability", attribute.String("resource_id", resourceID))
	defer done(&err)

	if err := validWindow(start, end); err != nil {
		return false, err
	}
	r, err := s.Store.GetResource(ctx, resourceID)
	if err != nil {
		return false, err
	}
	return IsAvailableForPeriod(r, start, end), nil
}

// Assign reserves [start, end) on the resource for the event. Availability is
// re-checked inside the resource update so two racing assignments cannot
// both succeed.
func (s *AllocationService) Assign(ctx context.Context, resourceID, eventID string, start, end time.Time) (r models.Resource, err error) {
	ctx, done := s.begin(ctx, "assign_resource",
		attribute.String("resource_id", resourceID),
		attribute.String("event_id", eventID),
	)
	defer done(&err)

	if err := validWindow(start, end); err != nil {
		return models.Resource{}, err
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Resource{}, err
	}
	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return models.Resource{}, err
	}
	if err := requireOwner(user, ev); err != nil {
		return models.Resource{}, err
	}

	r, err = s.Store.UpdateResource(ctx, resourceID, func(r *models.Resource) error {
		if !r.Usable() {
			return status.WithMetadata(status.KindConflict, "resource is not available", map[string]string{
				"resource_id":        r.ID,
				"maintenance_status": string(r.MaintenanceStatus),
			})
		}
		if clash := blockingOverlap(*r, start, end); clash != nil {
			return status.WithMetadata(status.KindConflict, "resource is already booked for an overlapping period", map[string]string{
				"resource_id":       r.ID,
				"conflict_event_id": clash.EventID,
				"conflict_start":    clash.Start.Format(time.RFC3339),
				"conflict_end":      clash.End.Format(time.RFC3339),
			})
		}
		r.AssignedTo = append(r.AssignedTo, models.Assignment{
			EventID:    eventID,
			Start:      start,
			End:        end,
			Status:     models.AssignmentPending,
			AssignedAt: s.Now(),
			AssignedBy: user.ID,
		})
		return nil
	})
	if err != nil {
		return models.Resource{}, err
	}

	s.notify(ctx, notify.Notification{
		Recipients: []string{ev.Organizer.ID},
		Type:       notify.TypeResourceAssigned,
		Message:    fmt.Sprintf("%s requested for %q", r.Name, ev.Title),
		Metadata:   map[string]string{"event_id": eventID, "resource_id": resourceID},
	})
	return r, nil
}

// Release completes the event's pending or approved assignment, freeing its
// window.
func (s *AllocationService) Release(ctx context.Context, resourceID, eventID string) (r models.Resource, err error) {
	ctx, done := s.begin(ctx, "release_resource",
		attribute.String("resource_id", resourceID),
		attribute.String("event_id", eventID),
	)
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Resource{}, err
	}
	if err := s.authorizeForEvent(ctx, user, eventID); err != nil {
		return models.Resource{}, err
	}
	return s.Store.UpdateResource(ctx, resourceID, func(r *models.Resource) error {
		i := r.FindBlockingAssignment(eventID)
		if i < 0 {
			return status.NotFound("assignment", eventID)
		}
		r.AssignedTo[i].Status = models.AssignmentCompleted
		return nil
	})
}

func (s *AllocationService) ApproveAssignment(ctx context.Context, resourceID, eventID string) (models.Resource, error) {
	return s.decideAssignment(ctx, "approve_assignment", resourceID, eventID, models.AssignmentApproved)
}

func (s *AllocationService) RejectAssignment(ctx context.Context, resourceID, eventID string) (models.Resource, error) {
	return s.decideAssignment(ctx, "reject_assignment", resourceID, eventID, models.AssignmentRejected)
}

func (s *AllocationService) decideAssignment(ctx context.Context, op, resourceID, eventID string, decision models.AssignmentStatus) (r models.Resource, err error) {
	ctx, done := s.begin(ctx, op,
		attribute.String("resource_id", resourceID),
		attribute.String("event_id", eventID),
	)
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Resource{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Resource{}, err
	}
	r, err = s.Store.UpdateResource(ctx, resourceID, func(r *models.Resource) error {
		i := r.FindBlockingAssignment(eventID)
		if i < 0 {
			return status.NotFound("assignment", eventID)
		}
		if r.AssignedTo[i].Status != models.AssignmentPending {
			return status.StateGuard("assignment is already %s", r.AssignedTo[i].Status)
		}
		r.AssignedTo[i].Status = decision
		return nil
	})
	if err != nil {
		return models.Resource{}, err
	}

	if ev, err := s.Store.GetEvent(ctx, eventID); err == nil {
		s.notify(ctx, notify.Notification{
			Recipients: []string{ev.Organizer.ID},
			Type:       notify.TypeResourceDecided,
			Message:    fmt.Sprintf("%s for %q was %s", r.Name, ev.Title, decision),
			Metadata:   map[string]string{"event_id": eventID, "resource_id": resourceID, "status": string(decision)},
		})
	}
	return r, nil
}

func (s *AllocationService) SetMaintenance(ctx context.Context, resourceID string, ms models.MaintenanceStatus) (r models.Resource, err error) {
	ctx, done := s.begin(ctx, "set_maintenance", attribute.String("resource_id", resourceID))
	defer done(&err)

	if !ms.Valid() {
		return models.Resource{}, status.Validation("unknown maintenance status %q", ms)
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Resource{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Resource{}, err
	}
	return s.Store.UpdateResource(ctx, resourceID, func(r *models.Resource) error {
		r.MaintenanceStatus = ms
		return nil
	})
}

func (s *AllocationService) SetAvailability(ctx context.Context, resourceID string, available bool) (r models.Resource, err error) {
	ctx, done := s.begin(ctx, "set_resource_availability", attribute.String("resource_id", resourceID))
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Resource{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Resource{}, err
	}
	return s.Store.UpdateResource(ctx, resourceID, func(r *models.Resource) error {
		r.IsAvailable = available
		return nil
	})
}

// UtilizationStats reports how much of [start, end) the resource is booked.
// Rejected assignments are ignored; durations are clipped to the window.
func (s *AllocationService) UtilizationStats(ctx context.Context, resourceID string, start, end time.Time) (u Utilization, err error) {
	ctx, done := s.begin(ctx, "resource_utilization", attribute.String("resource_id", resourceID))
	defer done(&err)

	if err := validWindow(start, end); err != nil {
		return Utilization{}, err
	}
	r, err := s.Store.GetResource(ctx, resourceID)
	if err != nil {
		return Utilization{}, err
	}

	u = Utilization{ResourceID: r.ID, WindowStart: start, WindowEnd: end}
	var booked time.Duration
	for _, a := range r.AssignedTo {
		if a.Status == models.AssignmentRejected {
			continue
		}
		d := utils.Intersection(a.Start, a.End, start, end)
		if d <= 0 {
			continue
		}
		u.Assignments++
		booked += d
	}
	u.BookedHours = booked.Hours()
	u.UtilizationPercent = float64(booked) / float64(end.Sub(start)) * 100
	if u.Assignments > 0 {
		u.AverageDurationHours = u.BookedHours / float64(u.Assignments)
	}
	return u, nil
}

// authorizeForEvent lets admins through and otherwise requires the caller to
// organize eventID.
func (s *AllocationService) authorizeForEvent(ctx context.Context, user models.User, eventID string) error {
	if user.IsAdmin() {
		return nil
	}
	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return requireOwner(user, ev)
}
