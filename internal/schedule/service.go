package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/config"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/events"
	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/metrics"
	redisclient "github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
)

// SlotCache caches the per-day open-slot computation. Implementations must
// treat failures as misses; the service always recomputes on a miss.
type SlotCache interface {
	Get(ctx context.Context, partitionKey, variant string) ([]byte, bool)
	Set(ctx context.Context, partitionKey, variant string, data []byte)
	Invalidate(ctx context.Context, partitionKey string)
}

// BookingRequest is the typed request the boundary layer produces. By the
// time one reaches Book, parsing and format validation are done.
type BookingRequest struct {
	PractitionerID     uuid.UUID
	ClinicID           uuid.UUID
	PatientID          uuid.UUID
	Date               time.Time
	Start              TimeOfDay
	DurationMinutes    int
	GranularityMinutes int // 0 means the duration itself
}

func (r BookingRequest) validate() error {
	if r.PractitionerID == uuid.Nil || r.ClinicID == uuid.Nil || r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if r.Start < 0 || r.Start.Add(r.DurationMinutes) > 24*60 {
		return fmt.Errorf("%w: interval outside the day", ErrValidation)
	}
	return nil
}

func (r BookingRequest) granularity() int {
	if r.GranularityMinutes > 0 {
		return r.GranularityMinutes
	}
	return r.DurationMinutes
}

// RescheduleRequest moves an existing appointment. Zero values keep the
// current practitioner and duration.
type RescheduleRequest struct {
	AppointmentID      uuid.UUID
	NewPractitionerID  uuid.UUID // uuid.Nil keeps the current one
	NewDate            time.Time
	NewStart           TimeOfDay
	NewDurationMinutes int // 0 keeps the current one
	GranularityMinutes int
}

// Service is the booking transaction: the only component allowed to create
// or move appointments. Commits are serialized per (practitioner, clinic,
// date) partition by the locker, and the storage uniqueness constraint backs
// the in-lock conflict re-check.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	cache  SlotCache
	bus    *events.Bus
	cfg    config.Config
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// WithSlotCache attaches an optional open-slot cache.
func (s *Service) WithSlotCache(c SlotCache) *Service {
	s.cache = c
	return s
}

// WithBus attaches the post-commit notification bus.
func (s *Service) WithBus(b *events.Bus) *Service {
	s.bus = b
	return s
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	s.now = fn
	return s
}

func partitionKey(practitionerID, clinicID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", practitionerID, clinicID, DayKey(date))
}

// OpenSlots returns the conflict-free candidate slots for a practitioner on
// a date. The cached computation excludes the elapsed-time filter so that
// "already started" slots drop out at evaluation time, not at cache-fill
// time.
func (s *Service) OpenSlots(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time, durationMinutes, granularityMinutes int) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	key := partitionKey(practitionerID, clinicID, date)
	variant := fmt.Sprintf("%d:%d", durationMinutes, granularityMinutes)

	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key, variant); ok {
			var slots []Slot
			if err := json.Unmarshal(data, &slots); err == nil {
				metrics.IncSlotCache("hit")
				return FilterElapsed(slots, s.now()), nil
			}
		}
		metrics.IncSlotCache("miss")
	}

	slots, err := s.openSlotsFresh(ctx, practitionerID, clinicID, date, durationMinutes, granularityMinutes)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(slots); err == nil {
			s.cache.Set(ctx, key, variant, data)
		}
	}

	return FilterElapsed(slots, s.now()), nil
}

// openSlotsFresh recomputes open slots from current windows and appointments,
// bypassing the cache. Auto-fill selection always uses this path so a stale
// cache can never steer a booking decision.
func (s *Service) openSlotsFresh(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time, durationMinutes, granularityMinutes int) ([]Slot, error) {
	window, err := s.repo.ActiveWindowFor(ctx, practitionerID, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("load availability window: %w", err)
	}
	if window == nil {
		return nil, nil
	}

	candidates := GenerateSlots(*window, date, durationMinutes, granularityMinutes)
	if len(candidates) == 0 {
		return nil, nil
	}

	occupying, err := s.repo.LoadOccupying(ctx, practitionerID, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("load occupying appointments: %w", err)
	}

	open := candidates[:0:0]
	for _, c := range candidates {
		if !HasConflict(practitionerID, clinicID, date, c.Start, c.DurationMinutes, occupying, uuid.Nil) {
			open = append(open, c)
		}
	}
	return open, nil
}

// Occupancy aggregates booked intervals per time bucket across all
// practitioners at a clinic. Advisory capacity view only.
func (s *Service) Occupancy(ctx context.Context, clinicID uuid.UUID, date time.Time, granularityMinutes int) (map[TimeOfDay]int, error) {
	occupying, err := s.repo.LoadClinicOccupying(ctx, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("load clinic appointments: %w", err)
	}
	return OccupancyBuckets(occupying, granularityMinutes), nil
}

// Book commits a new appointment. The conflict check runs again inside the
// day-partition lock because availability may change between initial
// validation and commit; a storage uniqueness violation is translated to
// ErrConflict as the last line of defense. Lock contention is retried with
// backoff a bounded number of times, then surfaces ErrNotAvailable.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		metrics.IncBooking("validation")
		return nil, err
	}
	if DayKey(req.Date) < DayKey(s.now()) {
		metrics.IncBooking("not_available")
		return nil, fmt.Errorf("%w: date is in the past", ErrNotAvailable)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if err := s.checkWithinWindow(ctx, req.PractitionerID, req.ClinicID, req.Date, req.Start, req.DurationMinutes, req.granularity()); err != nil {
		metrics.IncBooking("not_available")
		return nil, err
	}

	var created *Appointment
	commit := func(lockCtx context.Context) error {
		occupying, err := s.repo.LoadOccupying(lockCtx, req.PractitionerID, req.ClinicID, req.Date)
		if err != nil {
			return fmt.Errorf("load occupying appointments: %w", err)
		}
		if HasConflict(req.PractitionerID, req.ClinicID, req.Date, req.Start, req.DurationMinutes, occupying, uuid.Nil) {
			return ErrConflict
		}

		appt := &Appointment{
			ID:              uuid.New(),
			PractitionerID:  req.PractitionerID,
			ClinicID:        req.ClinicID,
			PatientID:       req.PatientID,
			Date:            req.Date,
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Status:          StatusScheduled,
		}
		if err := s.repo.InsertAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrUniquenessViolation) {
				return ErrConflict
			}
			return err
		}

		created = appt
		return nil
	}

	err := s.withLockRetry(ctx, partitionKey(req.PractitionerID, req.ClinicID, req.Date), commit)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.IncBooking("conflict")
		} else if errors.Is(err, ErrNotAvailable) {
			metrics.IncBooking("not_available")
		} else {
			metrics.IncBooking("error")
		}
		return nil, err
	}

	metrics.IncBooking("booked")
	s.afterCommit(ctx, created, events.AppointmentBooked, EventAppointmentBooked, nil)
	return created, nil
}

// Reschedule moves an appointment to a new practitioner/date/time, re-running
// validation and the conflict check with the appointment's own id excluded so
// it never conflicts with itself.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	if req.AppointmentID == uuid.Nil {
		metrics.IncReschedule("validation")
		return nil, fmt.Errorf("%w: missing appointment id", ErrValidation)
	}

	current, err := s.repo.GetAppointmentByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Occupying() {
		metrics.IncReschedule("validation")
		return nil, fmt.Errorf("%w: appointment is %s", ErrValidation, current.Status)
	}

	practitionerID := req.NewPractitionerID
	if practitionerID == uuid.Nil {
		practitionerID = current.PractitionerID
	}
	duration := req.NewDurationMinutes
	if duration == 0 {
		duration = current.DurationMinutes
	}
	if duration < 0 {
		metrics.IncReschedule("validation")
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	granularity := req.GranularityMinutes
	if granularity <= 0 {
		granularity = duration
	}

	if DayKey(req.NewDate) < DayKey(s.now()) {
		metrics.IncReschedule("not_available")
		return nil, fmt.Errorf("%w: date is in the past", ErrNotAvailable)
	}
	if err := s.checkWithinWindow(ctx, practitionerID, current.ClinicID, req.NewDate, req.NewStart, duration, granularity); err != nil {
		metrics.IncReschedule("not_available")
		return nil, err
	}

	var updated *Appointment
	commit := func(lockCtx context.Context) error {
		occupying, err := s.repo.LoadOccupying(lockCtx, practitionerID, current.ClinicID, req.NewDate)
		if err != nil {
			return fmt.Errorf("load occupying appointments: %w", err)
		}
		if HasConflict(practitionerID, current.ClinicID, req.NewDate, req.NewStart, duration, occupying, current.ID) {
			return ErrConflict
		}

		appt, err := s.repo.UpdateAppointmentTime(lockCtx, current.ID, practitionerID, req.NewDate, req.NewStart, duration)
		if err != nil {
			if errors.Is(err, ErrUniquenessViolation) {
				return ErrConflict
			}
			return err
		}

		updated = appt
		return nil
	}

	// The lock covers the insertion target. The vacated interval only
	// shrinks the old partition's occupancy, which cannot create conflicts.
	err = s.withLockRetry(ctx, partitionKey(practitionerID, current.ClinicID, req.NewDate), commit)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.IncReschedule("conflict")
		} else if errors.Is(err, ErrNotAvailable) {
			metrics.IncReschedule("not_available")
		} else {
			metrics.IncReschedule("error")
		}
		return nil, err
	}

	metrics.IncReschedule("rescheduled")
	if s.cache != nil {
		s.cache.Invalidate(ctx, partitionKey(current.PractitionerID, current.ClinicID, current.Date))
	}
	s.afterCommit(ctx, updated, events.AppointmentRescheduled, EventAppointmentRescheduled, map[string]any{
		"previous_date":  DayKey(current.Date),
		"previous_start": current.Start.String(),
	})
	return updated, nil
}

// Cancel is a plain terminal-state transition. It lives here rather than in
// the conflict core so the slot cache invalidation cannot be forgotten.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Occupying() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrValidation, current.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, StatusCancelled)
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, events.AppointmentCancelled, EventAppointmentCancelled, nil)
	return updated, nil
}

// GetAppointment retrieves an appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// checkWithinWindow rejects intervals no availability window covers.
func (s *Service) checkWithinWindow(ctx context.Context, practitionerID, clinicID uuid.UUID, date time.Time, start TimeOfDay, durationMinutes, granularityMinutes int) error {
	window, err := s.repo.ActiveWindowFor(ctx, practitionerID, clinicID, date)
	if err != nil {
		return fmt.Errorf("load availability window: %w", err)
	}
	if window == nil {
		return fmt.Errorf("%w: practitioner is closed on %s", ErrNotAvailable, DayKey(date))
	}
	if start < window.Start || start.Add(durationMinutes) > window.End {
		return fmt.Errorf("%w: interval outside working window", ErrNotAvailable)
	}
	if !OnGrid(*window, start, granularityMinutes) {
		return fmt.Errorf("%w: start not on the slot grid", ErrNotAvailable)
	}
	return nil
}

// withLockRetry serializes fn on the partition lock, retrying contention with
// backoff up to the configured attempt budget. Exhaustion surfaces
// ErrNotAvailable; a booking attempt never hangs on the serialization point.
func (s *Service) withLockRetry(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	attempts := s.cfg.BookMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.BookRetryBackoff * time.Duration(attempt)):
			}
		}

		err := s.locker.WithDayLock(ctx, key, fn)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.log.Debug().Str("partition", key).Int("attempt", attempt+1).Msg("booking lock busy")
			continue
		}
		return err
	}

	return fmt.Errorf("%w: booking lock busy for partition %s", ErrNotAvailable, key)
}

// afterCommit performs the fire-and-forget post-commit work: cache
// invalidation, audit row, notification event. None of it can fail the
// booking that already happened.
func (s *Service) afterCommit(ctx context.Context, appt *Appointment, busType events.Type, logType string, extra map[string]any) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, partitionKey(appt.PractitionerID, appt.ClinicID, appt.Date))
	}

	payload := map[string]any{
		"practitioner_id": appt.PractitionerID.String(),
		"clinic_id":       appt.ClinicID.String(),
		"patient_id":      appt.PatientID.String(),
		"date":            DayKey(appt.Date),
		"start":           appt.Start.String(),
		"duration":        appt.DurationMinutes,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.logEvent(ctx, appt.ID, logType, payload)

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:           busType,
			AppointmentID:  appt.ID,
			PractitionerID: appt.PractitionerID,
			ClinicID:       appt.ClinicID,
			Date:           DayKey(appt.Date),
			Start:          appt.Start.String(),
		})
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("insert event log")
	}
}
