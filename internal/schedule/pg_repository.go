package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var dow int
	var start, end int
	var until *time.Time

	err := row.Scan(
		&w.ID,
		&w.PractitionerID,
		&w.ClinicID,
		&dow,
		&start,
		&end,
		&w.EffectiveFrom,
		&until,
		&w.Active,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	w.DayOfWeek = time.Weekday(dow)
	w.Start = TimeOfDay(start)
	w.End = TimeOfDay(end)
	w.EffectiveUntil = until
	return &w, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, duration int
	var status string

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.ClinicID,
		&a.PatientID,
		&a.Date,
		&start,
		&duration,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = TimeOfDay(start)
	a.DurationMinutes = duration
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

const appointmentColumns = `id, practitioner_id, clinic_id, patient_id, date, start_minute, duration_minutes, status, created_at, updated_at`

// Interface methods

func (r *PgRepository) ActiveWindowFor(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time) (*AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, clinic_id, day_of_week, start_minute, end_minute,
		       effective_from, effective_until, is_active, created_at
		FROM availability_windows
		WHERE practitioner_id = $1
		  AND clinic_id = $2
		  AND day_of_week = $3
		  AND is_active
		  AND effective_from <= $4
		  AND (effective_until IS NULL OR effective_until >= $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, practitionerID, clinicID, int(date.Weekday()), date)
	return scanWindow(row)
}

func (r *PgRepository) LoadOccupying(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND clinic_id = $2
		  AND date = $3
		  AND status = ANY($4)
		ORDER BY start_minute
	`, practitionerID, clinicID, date, OccupyingStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) LoadClinicOccupying(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND date = $2
		  AND status = ANY($3)
		ORDER BY start_minute, practitioner_id
	`, clinicID, date, OccupyingStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, appt *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, clinic_id, patient_id, date, start_minute, duration_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PractitionerID, appt.ClinicID, appt.PatientID, appt.Date, int(appt.Start), appt.DurationMinutes, string(appt.Status))

	saved, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUniquenessViolation
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	*appt = *saved
	return nil
}

func (r *PgRepository) UpdateAppointmentTime(ctx context.Context, id, practitionerID uuid.UUID, date time.Time, start TimeOfDay, durationMinutes int) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET practitioner_id = $2,
		    date = $3,
		    start_minute = $4,
		    duration_minutes = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($6)
		RETURNING `+appointmentColumns+`
	`, id, practitionerID, date, int(start), durationMinutes, OccupyingStatuses)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUniquenessViolation
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) EligiblePractitioners(ctx context.Context, clinicID uuid.UUID, serviceType string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT practitioner_id
		FROM practitioner_services
		WHERE clinic_id = $1
		  AND service_type = $2
		ORDER BY practitioner_id
	`, clinicID, serviceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
