package services

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campus-events/internal/identity"
	"campus-events/internal/notify"
	"campus-events/internal/status"
	"campus-events/internal/store"
	"campus-events/internal/telemetry"
	"campus-events/models"
	"campus-events/monitoring"
)

// Settings are the engine's tunable policies.
type Settings struct {
	// CancellationLead is how long before the start an approved event
	// stops being cancellable.
	CancellationLead time.Duration
	// ClashHorizonDays is how many days after the requested date the clash
	// check scans for alternative dates.
	ClashHorizonDays    int
	MaxAlternativeDates int
	MaxSuggestedSlots   int
	// CandidateSlots are tried in order when suggesting another start time.
	CandidateSlots []string
	// Location interprets event dates and times.
	Location *time.Location
}

func DefaultSettings() Settings {
	return Settings{
		CancellationLead:    24 * time.Hour,
		ClashHorizonDays:    7,
		MaxAlternativeDates: 5,
		MaxSuggestedSlots:   3,
		CandidateSlots:      []string{"09:00", "10:00", "11:00", "13:00", "15:00", "16:00", "17:00"},
		Location:            time.UTC,
	}
}

// Deps are the collaborators every service receives.
type Deps struct {
	Store    store.Store
	Notifier notify.Notifier
	Identity identity.Provider
	Monitor  *monitoring.Monitor
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Now      func() time.Time
	NewID    func() string
	Settings Settings
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Identity == nil {
		d.Identity = identity.ContextProvider{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tracer == nil {
		d.Tracer = telemetry.Tracer()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	defaults := DefaultSettings()
	if d.Settings.CancellationLead <= 0 {
		d.Settings.CancellationLead = defaults.CancellationLead
	}
	if d.Settings.ClashHorizonDays <= 0 {
		d.Settings.ClashHorizonDays = defaults.ClashHorizonDays
	}
	if d.Settings.MaxAlternativeDates <= 0 {
		d.Settings.MaxAlternativeDates = defaults.MaxAlternativeDates
	}
	if d.Settings.MaxSuggestedSlots <= 0 {
		d.Settings.MaxSuggestedSlots = defaults.MaxSuggestedSlots
	}
	if len(d.Settings.CandidateSlots) == 0 {
		d.Settings.CandidateSlots = defaults.CandidateSlots
	}
	if d.Settings.Location == nil {
		d.Settings.Location = defaults.Location
	}
	return d
}

// Engine bundles the scheduling and allocation services over one set of
// collaborators.
type Engine struct {
	Conflicts    *ConflictService
	Lifecycle    *LifecycleService
	Allocation   *AllocationService
	Registration *RegistrationService
	Feedback     *FeedbackService
	Budget       *BudgetService
}

func NewEngine(deps Deps) *Engine {
	deps = deps.withDefaults()
	conflicts := NewConflictService(deps)
	return &Engine{
		Conflicts:    conflicts,
		Lifecycle:    NewLifecycleService(deps, conflicts),
		Allocation:   NewAllocationService(deps),
		Registration: NewRegistrationService(deps),
		Feedback:     NewFeedbackService(deps),
		Budget:       NewBudgetService(deps),
	}
}

type base struct {
	Deps
}

func newBase(deps Deps) base {
	return base{Deps: deps.withDefaults()}
}

// begin opens a span for op. The returned func must be deferred with the
// operation's named error; it records the outcome, logs rejected mutations
// and turns errors outside the taxonomy into logged internal errors.
func (b *base) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := b.Now()
	ctx, span := b.Tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		outcome := "ok"
		if errp != nil && *errp != nil {
			err := *errp
			var se *status.Error
			if !errors.As(err, &se) {
				b.Logger.ErrorContext(ctx, "Unexpected failure", "operation", op, "error", err)
				err = status.Wrap(status.KindInternal, op+" failed", err)
				*errp = err
			} else if rejection(se.Kind) {
				b.logRejection(ctx, op, se, attrs)
			}
			outcome = string(status.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		b.Monitor.TrackOperation(op, outcome, b.Now().Sub(start))
		span.End()
	}
}

func rejection(kind status.Kind) bool {
	switch kind {
	case status.KindStateGuard, status.KindCapacityExceeded, status.KindDuplicate, status.KindConflict:
		return true
	}
	return false
}

func (b *base) logRejection(ctx context.Context, op string, se *status.Error, attrs []attribute.KeyValue) {
	args := []any{"operation", op, "kind", se.Kind, "reason", se.Message}
	seen := make(map[string]bool, len(attrs)+len(se.Metadata))
	for _, a := range attrs {
		args = append(args, string(a.Key), a.Value.Emit())
		seen[string(a.Key)] = true
	}
	for _, k := range slices.Sorted(maps.Keys(se.Metadata)) {
		if !seen[k] {
			args = append(args, k, se.Metadata[k])
			seen[k] = true
		}
	}
	if !seen["user_id"] {
		if user, err := b.caller(ctx); err == nil {
			args = append(args, "user_id", user.ID)
		}
	}
	b.Logger.InfoContext(ctx, "Operation rejected", args...)
}

func (b *base) caller(ctx context.Context) (models.User, error) {
	return b.Identity.CurrentUser(ctx)
}

// notify hands n to the notifier. Delivery problems are logged; the change
// that triggered the notification is already committed.
func (b *base) notify(ctx context.Context, n notify.Notification) {
	if len(n.Recipients) == 0 {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = b.Now()
	}
	if err := b.Notifier.Notify(ctx, n); err != nil {
		b.Logger.WarnContext(ctx, "Failed to deliver notification", "type", n.Type, "recipients", len(n.Recipients), "error", err)
	}
}

func requireAdmin(user models.User) error {
	if !user.IsAdmin() {
		return status.WithMetadata(status.KindStateGuard, "admin role required", map[string]string{
			"user_id":     user.ID,
			"active_role": string(user.ActiveRole),
		})
	}
	return nil
}

// requireOwner passes for the event's organizer and for admins.
func requireOwner(user models.User, ev models.Event) error {
	if user.IsAdmin() || (user.ID != "" && user.ID == ev.Organizer.ID) {
		return nil
	}
	return status.WithMetadata(status.KindStateGuard, "only the organizer or an admin may do this", map[string]string{
		"user_id":  user.ID,
		"event_id": ev.ID,
	})
}
