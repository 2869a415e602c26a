package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Overlaps implements the strict half-open interval test: [s1, s1+d1) and
// [s2, s2+d2) overlap iff s1 < s2+d2 && s2 < s1+d1. An appointment ending
// exactly when another starts does not overlap.
func Overlaps(s1 TimeOfDay, d1 int, s2 TimeOfDay, d2 int) bool {
	return s1 < s2.Add(d2) && s2 < s1.Add(d1)
}

// HasConflict reports whether the proposed interval overlaps any occupying
// appointment for the same practitioner, clinic and date. excludeID skips one
// appointment, used on reschedule so an appointment never conflicts with
// itself. Pure: identical inputs always give identical answers, which lets
// the booking transaction re-evaluate it inside its retry loop.
func HasConflict(practitionerID, clinicID uuid.UUID, date time.Time, start TimeOfDay, durationMinutes int, occupying []Appointment, excludeID uuid.UUID) bool {
	day := DayKey(date)
	for _, a := range occupying {
		if a.ID == excludeID {
			continue
		}
		if a.PractitionerID != practitionerID || a.ClinicID != clinicID {
			continue
		}
		if DayKey(a.Date) != day {
			continue
		}
		if !a.Status.Occupying() {
			continue
		}
		if Overlaps(start, durationMinutes, a.Start, a.DurationMinutes) {
			return true
		}
	}
	return false
}

// OccupancyBuckets aggregates occupying appointments across all practitioners
// into fixed-size time buckets for the clinic capacity view. Advisory only:
// this aggregate never gates a booking decision.
func OccupancyBuckets(occupying []Appointment, granularityMinutes int) map[TimeOfDay]int {
	if granularityMinutes <= 0 {
		granularityMinutes = 30
	}
	buckets := make(map[TimeOfDay]int)
	for _, a := range occupying {
		if !a.Status.Occupying() {
			continue
		}
		first := TimeOfDay(int(a.Start) / granularityMinutes * granularityMinutes)
		for b := first; b < a.End(); b = b.Add(granularityMinutes) {
			buckets[b]++
		}
	}
	return buckets
}
