package schedule

import "time"

// PickWindow selects the availability window that applies to date. Zero
// matches is the normal "closed that day" case and yields nil. More than one
// active match is a configuration error; the most recently created window
// wins so the outcome is deterministic rather than ordering-dependent.
func PickWindow(windows []AvailabilityWindow, date time.Time) *AvailabilityWindow {
	var best *AvailabilityWindow
	for i := range windows {
		w := &windows[i]
		if !w.Covers(date) {
			continue
		}
		if best == nil || w.CreatedAt.After(best.CreatedAt) {
			best = w
		}
	}
	return best
}
