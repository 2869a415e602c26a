package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUniquenessViolation is returned by the storage layer when an insert or
// update trips the occupying-slot uniqueness constraint. The booking
// transaction translates it to ErrConflict.
var ErrUniquenessViolation = errors.New("occupying slot uniqueness violated")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// ActiveWindowFor returns the availability window covering the date, or
	// (nil, nil) when the practitioner is closed that day. Ties between
	// misconfigured overlapping windows resolve to the most recently created.
	ActiveWindowFor(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time) (*AvailabilityWindow, error)

	// Conflict reads.
	LoadOccupying(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time) ([]Appointment, error)
	LoadClinicOccupying(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Creation and mutation. Both honor the occupying-slot uniqueness
	// constraint and surface ErrUniquenessViolation when it fires.
	InsertAppointment(ctx context.Context, appt *Appointment) error
	UpdateAppointmentTime(ctx context.Context, id, practitionerID uuid.UUID, date time.Time, start TimeOfDay, durationMinutes int) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Directory read for the cross-practitioner auto-fill mode. Ordered by
	// practitioner id so candidate iteration is stable.
	EligiblePractitioners(ctx context.Context, clinicID uuid.UUID, serviceType string) ([]uuid.UUID, error)

	// Event logging.
	InsertEvent(ctx context.Context, ev EventLog) error
}
