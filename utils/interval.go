package utils

import "time"

// Overlaps reports whether the half-open intervals [startA, endA) and
// [startB, endB) share any instant. Empty or inverted intervals never overlap,
// and touching endpoints do not count.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	if !startA.Before(endA) || !startB.Before(endB) {
		return false
	}
	return startA.Before(endB) && startB.Before(endA)
}

// Intersection returns how long the two intervals overlap, zero if they don't.
func Intersection(startA, endA, startB, endB time.Time) time.Duration {
	if !Overlaps(startA, endA, startB, endB) {
		return 0
	}
	start := startA
	if startB.After(start) {
		start = startB
	}
	end := endA
	if endB.Before(end) {
		end = endB
	}
	return end.Sub(start)
}
