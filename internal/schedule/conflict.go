package schedule

import "time"

// HasConflict reports whether a proposed interval collides with an existing
// appointment's interval once the existing side is padded by buffer on both
// ends. The buffer is applied to the existing interval only; the repository
// overlap query pads the same way, so the two stay in agreement.
func HasConflict(newStart, newEnd, existingStart, existingEnd time.Time, buffer time.Duration) bool {
	paddedStart := existingStart.Add(-buffer)
	paddedEnd := existingEnd.Add(buffer)
	return newStart.Before(paddedEnd) && newEnd.After(paddedStart)
}
