package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"campus-events/internal/status"
	"campus-events/models"
)

type FeedbackService struct {
	base
}

func NewFeedbackService(deps Deps) *FeedbackService {
	return &FeedbackService{base: newBase(deps)}
}

func validateRating(rating int) error {
	if rating < models.MinRating || rating > models.MaxRating {
		return status.Validation("rating must be between %d and %d", models.MinRating, models.MaxRating)
	}
	return nil
}

func recomputeRating(ev *models.Event) {
	ev.AverageRating = models.MeanRating(ev.Feedback)
	ev.TotalRatings = len(ev.Feedback)
}

// Submit records the caller's one feedback for an event they registered for.
func (s *FeedbackService) Submit(ctx context.Context, eventID string, rating int, review string) (fb models.Feedback, err error) {
	ctx, done := s.begin(ctx, "submit_feedback", attribute.String("event_id", eventID))
	defer done(&err)

	if err := validateRating(rating); err != nil {
		return models.Feedback{}, err
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Feedback{}, err
	}
	_, err = s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if ev.FindAttendee(user.ID) < 0 {
			return status.WithMetadata(status.KindStateGuard, "only registered attendees can leave feedback", map[string]string{
				"event_id": ev.ID,
				"user_id":  user.ID,
			})
		}
		if ev.FindFeedback(user.ID) >= 0 {
			return status.WithMetadata(status.KindDuplicate, "feedback already submitted", map[string]string{
				"event_id": ev.ID,
				"user_id":  user.ID,
			})
		}
		now := s.Now()
		fb = models.Feedback{UserID: user.ID, Rating: rating, Review: review, CreatedAt: now, UpdatedAt: now}
		ev.Feedback = append(ev.Feedback, fb)
		recomputeRating(ev)
		return nil
	})
	if err != nil {
		return models.Feedback{}, err
	}
	return fb, nil
}

// Update replaces the caller's existing rating and review.
func (s *FeedbackService) Update(ctx context.Context, eventID string, rating int, review string) (fb models.Feedback, err error) {
	ctx, done := s.begin(ctx, "update_feedback", attribute.String("event_id", eventID))
	defer done(&err)

	if err := validateRating(rating); err != nil {
		return models.Feedback{}, err
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Feedback{}, err
	}
	_, err = s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		i := ev.FindFeedback(user.ID)
		if i < 0 {
			return status.NotFound("feedback", user.ID)
		}
		ev.Feedback[i].Rating = rating
		ev.Feedback[i].Review = review
		ev.Feedback[i].UpdatedAt = s.Now()
		fb = ev.Feedback[i]
		recomputeRating(ev)
		return nil
	})
	if err != nil {
		return models.Feedback{}, err
	}
	return fb, nil
}
