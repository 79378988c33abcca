package models

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

type Feedback struct {
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Event) FindFeedback(userID string) int {
	for i, f := range e.Feedback {
		if f.UserID == userID {
			return i
		}
	}
	return -1
}

// MeanRating is the unweighted mean of all ratings, 0 without feedback.
func MeanRating(feedback []Feedback) float64 {
	if len(feedback) == 0 {
		return 0
	}
	sum := 0
	for _, f := range feedback {
		sum += f.Rating
	}
	return float64(sum) / float64(len(feedback))
}
