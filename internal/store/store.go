// Package store persists events and resources. Every implementation
// serializes read-modify-write sequences per entity: UpdateEvent and
// UpdateResource run the mutation against a private copy and commit it only
// if no other writer touched the entity in between.
package store

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"time"

	"campus-events/internal/status"
	"campus-events/models"
)

const (
	DefaultLockTimeout = 2 * time.Second
	DefaultMaxRetries  = 5
)

// EventMutation edits ev in place. Returning an error aborts the update and
// the error is handed back to the caller unchanged.
type EventMutation func(ev *models.Event) error

type ResourceMutation func(r *models.Resource) error

// EventGuard vetoes a delete by returning an error.
type EventGuard func(ev models.Event) error

type Store interface {
	CreateEvent(ctx context.Context, ev models.Event) (models.Event, error)
	GetEvent(ctx context.Context, id string) (models.Event, error)
	ListEvents(ctx context.Context, q EventQuery) ([]models.Event, error)
	UpdateEvent(ctx context.Context, id string, fn EventMutation) (models.Event, error)
	DeleteEvent(ctx context.Context, id string, guard EventGuard) error

	CreateResource(ctx context.Context, r models.Resource) (models.Resource, error)
	GetResource(ctx context.Context, id string) (models.Resource, error)
	ListResources(ctx context.Context) ([]models.Resource, error)
	UpdateResource(ctx context.Context, id string, fn ResourceMutation) (models.Resource, error)
}

// EventQuery filters ListEvents. Zero fields match everything; From and To
// bound Date inclusively.
type EventQuery struct {
	Venue       string
	Date        string
	From        string
	To          string
	Statuses    []models.EventStatus
	OrganizerID string
	ExcludeID   string
}

func (q EventQuery) Match(ev models.Event) bool {
	if q.ExcludeID != "" && ev.ID == q.ExcludeID {
		return false
	}
	if q.Venue != "" && ev.Venue != q.Venue {
		return false
	}
	if q.Date != "" && ev.Date != q.Date {
		return false
	}
	// YYYY-MM-DD compares lexically in calendar order.
	if q.From != "" && ev.Date < q.From {
		return false
	}
	if q.To != "" && ev.Date > q.To {
		return false
	}
	if q.OrganizerID != "" && ev.Organizer.ID != q.OrganizerID {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, ev.Status) {
		return false
	}
	return true
}

// Blocking restricts q to events that occupy their venue.
func (q EventQuery) Blocking() EventQuery {
	q.Statuses = []models.EventStatus{models.EventStatusPending, models.EventStatusApproved}
	return q
}

type Options struct {
	LockTimeout time.Duration
	MaxRetries  int
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func sortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
}

func sortResources(resources []models.Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].ID < resources[j].ID
	})
}

func eventNotFound(id string) error {
	return status.NotFound("event", id)
}

func resourceNotFound(id string) error {
	return status.NotFound("resource", id)
}

func retriesExhausted(entity, id string, attempts int) error {
	return status.WithMetadata(status.KindTransientConflict, "concurrent update, retry budget exhausted", map[string]string{
		"entity":   entity,
		"id":       id,
		"attempts": strconv.Itoa(attempts),
	})
}

// applyEvent runs fn on a copy of current and stamps the bookkeeping fields.
// Identity and creation time cannot be changed by a mutation.
func applyEvent(current models.Event, fn EventMutation, now time.Time) (models.Event, error) {
	next := current.Clone()
	if err := fn(&next); err != nil {
		return models.Event{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = now
	return next, nil
}

func applyResource(current models.Resource, fn ResourceMutation, now time.Time) (models.Resource, error) {
	next := current.Clone()
	if err := fn(&next); err != nil {
		return models.Resource{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = now
	return next, nil
}

func stampNewEvent(ev models.Event, now time.Time) models.Event {
	ev = ev.Clone()
	ev.Version = 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now
	return ev
}

func stampNewResource(r models.Resource, now time.Time) models.Resource {
	r = r.Clone()
	r.Version = 1
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return r
}
