package facade

import "time"

func timeSinceStart(startedAt time.Time) float64 {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt).Seconds()
}
