package schedule

import "time"

// GenerateSlots partitions the window's [Start, End) range into candidate
// slots of durationMinutes, advancing by granularityMinutes (zero means
// back-to-back, i.e. advance by the duration). Candidates whose end would
// pass the window end are dropped; there is no partial trailing slot. The
// result is ascending by start time, which auto-fill relies on.
//
// A duration longer than the whole window yields an empty slice, not an
// error. Elapsed-time filtering for today is a separate step (FilterElapsed)
// so this function stays deterministic for identical inputs.
func GenerateSlots(w AvailabilityWindow, date time.Time, durationMinutes, granularityMinutes int) []Slot {
	if durationMinutes <= 0 {
		return nil
	}
	step := granularityMinutes
	if step <= 0 {
		step = durationMinutes
	}

	day := DayKey(date)
	var out []Slot
	for start := w.Start; start.Add(durationMinutes) <= w.End; start = start.Add(step) {
		out = append(out, Slot{
			PractitionerID:  w.PractitionerID,
			ClinicID:        w.ClinicID,
			Date:            day,
			Start:           start,
			DurationMinutes: durationMinutes,
		})
	}
	return out
}

// FilterElapsed drops slots whose start has already passed when their date is
// now's day. Slots on other days pass through untouched. Callers supply the
// wall clock at evaluation time so the result is never stale.
func FilterElapsed(slots []Slot, now time.Time) []Slot {
	today := DayKey(now)
	cutoff := MinutesOfDay(now)

	out := slots[:0:0]
	for _, s := range slots {
		if s.Date == today && s.Start <= cutoff {
			continue
		}
		out = append(out, s)
	}
	return out
}

// OnGrid reports whether start lies on the candidate grid the window and
// granularity define. Booking only grid-aligned starts keeps the storage
// uniqueness key (date + start minute) meaningful.
func OnGrid(w AvailabilityWindow, start TimeOfDay, granularityMinutes int) bool {
	if start < w.Start {
		return false
	}
	if granularityMinutes <= 0 {
		return start == w.Start
	}
	return int(start-w.Start)%granularityMinutes == 0
}

// NextOnGrid rounds t up to the nearest grid boundary at or after it.
func NextOnGrid(w AvailabilityWindow, t TimeOfDay, granularityMinutes int) TimeOfDay {
	if t <= w.Start {
		return w.Start
	}
	if granularityMinutes <= 0 {
		return t
	}
	offset := int(t - w.Start)
	rem := offset % granularityMinutes
	if rem == 0 {
		return t
	}
	return t.Add(granularityMinutes - rem)
}
