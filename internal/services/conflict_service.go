package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"campus-events/internal/status"
	"campus-events/internal/store"
	"campus-events/models"
	"campus-events/utils"
)

type ClashRequest struct {
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	DurationHours float64 `json:"duration"`
	Venue         string  `json:"venue"`
	// ExcludeEventID skips the event being edited.
	ExcludeEventID string `json:"exclude_event_id,omitempty"`
}

type ClashConflict struct {
	EventID       string  `json:"event_id"`
	Title         string  `json:"title"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	DurationHours float64 `json:"duration"`
	OrganizerID   string  `json:"organizer_id"`
	OrganizerName string  `json:"organizer_name"`
}

// ClashResult is always returned, even when the check itself failed; Error
// then carries the reason and Available is false.
type ClashResult struct {
	Available        bool            `json:"available"`
	Conflicts        []ClashConflict `json:"conflicts"`
	AlternativeDates []string        `json:"alternative_dates,omitempty"`
	SuggestedSlots   []string        `json:"suggested_slots,omitempty"`
	Error            *status.Error   `json:"error,omitempty"`
}

type ConflictService struct {
	base
}

func NewConflictService(deps Deps) *ConflictService {
	return &ConflictService{base: newBase(deps)}
}

// CheckClash reports which pending or approved events at the venue overlap
// the requested slot that day. When something overlaps it also proposes
// free dates in the following days and free start times on the same day.
func (s *ConflictService) CheckClash(ctx context.Context, req ClashRequest) (result ClashResult) {
	var err error
	ctx, done := s.begin(ctx, "check_clash",
		attribute.String("venue", req.Venue),
		attribute.String("date", req.Date),
	)
	defer func() {
		done(&err)
		if err != nil {
			result = ClashResult{Conflicts: []ClashConflict{}, Error: status.AsError(err)}
		}
	}()

	result, err = s.checkClash(ctx, req)
	return result
}

func (s *ConflictService) checkClash(ctx context.Context, req ClashRequest) (ClashResult, error) {
	loc := s.Settings.Location
	venue := strings.TrimSpace(req.Venue)
	if venue == "" {
		return ClashResult{}, status.Validation("venue is required")
	}
	candidate := models.Event{Date: req.Date, Time: req.Time, DurationHours: req.DurationHours}
	if req.DurationHours < 0 {
		return ClashResult{}, status.Validation("duration must not be negative")
	}
	start, end, err := candidate.Interval(loc)
	if err != nil {
		return ClashResult{}, status.Validation("date must be YYYY-MM-DD and time HH:MM")
	}

	sameDay, err := s.Store.ListEvents(ctx, store.EventQuery{
		Venue:     venue,
		Date:      req.Date,
		ExcludeID: req.ExcludeEventID,
	}.Blocking())
	if err != nil {
		return ClashResult{}, err
	}

	result := ClashResult{Available: true, Conflicts: []ClashConflict{}}
	for _, ev := range sameDay {
		if !s.overlaps(ev, start, end) {
			continue
		}
		result.Conflicts = append(result.Conflicts, ClashConflict{
			EventID:       ev.ID,
			Title:         ev.Title,
			Date:          ev.Date,
			Time:          ev.Time,
			DurationHours: ev.Duration().Hours(),
			OrganizerID:   ev.Organizer.ID,
			OrganizerName: ev.Organizer.Name,
		})
	}
	if len(result.Conflicts) == 0 {
		return result, nil
	}

	result.Available = false
	result.AlternativeDates, err = s.alternativeDates(ctx, venue, start, req.ExcludeEventID)
	if err != nil {
		return ClashResult{}, err
	}
	result.SuggestedSlots = s.suggestedSlots(req.Date, candidate.Duration(), sameDay)
	return result, nil
}

func (s *ConflictService) overlaps(ev models.Event, start, end time.Time) bool {
	evStart, evEnd, err := ev.Interval(s.Settings.Location)
	if err != nil {
		s.Logger.Warn("Skipping event with malformed schedule", "event_id", ev.ID, "date", ev.Date, "time", ev.Time)
		return false
	}
	return utils.Overlaps(start, end, evStart, evEnd)
}

// alternativeDates lists the following days on which the venue carries no
// pending or approved event at all.
func (s *ConflictService) alternativeDates(ctx context.Context, venue string, from time.Time, excludeID string) ([]string, error) {
	days := make([]string, 0, s.Settings.ClashHorizonDays)
	for i := 1; i <= s.Settings.ClashHorizonDays; i++ {
		days = append(days, from.AddDate(0, 0, i).Format(models.DateLayout))
	}
	busy, err := s.Store.ListEvents(ctx, store.EventQuery{
		Venue:     venue,
		From:      days[0],
		To:        days[len(days)-1],
		ExcludeID: excludeID,
	}.Blocking())
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(busy))
	for _, ev := range busy {
		taken[ev.Date] = true
	}

	out := make([]string, 0, s.Settings.MaxAlternativeDates)
	for _, day := range days {
		if taken[day] {
			continue
		}
		out = append(out, day)
		if len(out) == s.Settings.MaxAlternativeDates {
			break
		}
	}
	return out, nil
}

// suggestedSlots walks the candidate start times in their configured order
// and keeps the first few that fit between the day's events.
func (s *ConflictService) suggestedSlots(date string, duration time.Duration, sameDay []models.Event) []string {
	out := make([]string, 0, s.Settings.MaxSuggestedSlots)
	for _, slot := range s.Settings.CandidateSlots {
		start, err := models.ParseStart(date, slot, s.Settings.Location)
		if err != nil {
			continue
		}
		end := start.Add(duration)
		free := true
		for _, ev := range sameDay {
			if s.overlaps(ev, start, end) {
				free = false
				break
			}
		}
		if free {
			out = append(out, slot)
			if len(out) == s.Settings.MaxSuggestedSlots {
				break
			}
		}
	}
	return out
}

// VenueAvailability is the coarse check recorded on an event when it is
// saved: any other pending or approved event at the same venue on the same
// date counts as a conflict, whatever its time.
func (s *ConflictService) VenueAvailability(ctx context.Context, ev models.Event) (models.VenueAvailability, error) {
	others, err := s.Store.ListEvents(ctx, store.EventQuery{
		Venue:     ev.Venue,
		Date:      ev.Date,
		ExcludeID: ev.ID,
	}.Blocking())
	if err != nil {
		return models.VenueAvailability{}, err
	}
	ids := make([]string, 0, len(others))
	for _, other := range others {
		ids = append(ids, other.ID)
	}
	return models.VenueAvailability{Available: len(ids) == 0, Conflicts: ids}, nil
}
