package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a clock time expressed as minutes since midnight. Interval
// arithmetic over appointments stays integer-only, which keeps the conflict
// predicate free of timezone and DST concerns inside a single clinic day.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// DayKey formats a date the way lock and cache partition keys expect it.
func DayKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// SameDay reports whether two instants fall on the same calendar day in the
// location of a.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// MinutesOfDay converts an instant to its TimeOfDay in its own location.
func MinutesOfDay(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Occupying reports whether the status blocks its time interval. Terminal
// statuses never participate in conflict detection.
func (s AppointmentStatus) Occupying() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

// OccupyingStatuses is the storage-layer filter for conflict reads.
var OccupyingStatuses = []string{
	string(StatusScheduled),
	string(StatusConfirmed),
	string(StatusInProgress),
}

// AvailabilityWindow is a recurring weekly working range for a practitioner
// at a clinic. Owned by clinic administration; read-only to this package.
type AvailabilityWindow struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	ClinicID       uuid.UUID
	DayOfWeek      time.Weekday
	Start          TimeOfDay
	End            TimeOfDay
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time
	Active         bool
	CreatedAt      time.Time
}

// Covers reports whether the window applies to the given date.
func (w AvailabilityWindow) Covers(date time.Time) bool {
	if !w.Active || w.DayOfWeek != date.Weekday() {
		return false
	}
	day := DayKey(date)
	if DayKey(w.EffectiveFrom) > day {
		return false
	}
	if w.EffectiveUntil != nil && DayKey(*w.EffectiveUntil) < day {
		return false
	}
	return true
}

type Appointment struct {
	ID              uuid.UUID
	PractitionerID  uuid.UUID
	ClinicID        uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	Start           TimeOfDay
	DurationMinutes int
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is the exclusive end of the appointment interval.
func (a Appointment) End() TimeOfDay {
	return a.Start.Add(a.DurationMinutes)
}

// Slot is a candidate bookable interval derived from an availability window.
// Never persisted; always recomputed from current windows and appointments.
type Slot struct {
	PractitionerID  uuid.UUID `json:"practitioner_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	Date            string    `json:"date"`
	Start           TimeOfDay `json:"start_minute"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (s Slot) End() TimeOfDay {
	return s.Start.Add(s.DurationMinutes)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Practitioner struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
