// Package schedule selects queue records that are eligible for delivery.
package schedule

import (
	"time"

	"snacklock/internal/model"
)

// Due returns the records that are pending and whose send time has passed,
// preserving their relative order. It is a pure filter over the snapshot:
// it never mutates records, and repeated calls with the same inputs return
// the same result. Selection is not claiming — a record stays pending
// until the dispatcher records an outcome.
func Due(records []model.Notification, now time.Time) []model.Notification {
	due := make([]model.Notification, 0)
	for _, n := range records {
		if n.Status == model.StatusPending && !n.SendAt.After(now) {
			due = append(due, n)
		}
	}
	return due
}
