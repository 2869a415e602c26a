package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/metrics"
)

type AutoFillMode string

const (
	ModeFirstAvailable      AutoFillMode = "first_available"
	ModeAcrossPractitioners AutoFillMode = "across_practitioners"
	ModeNextAfterLast       AutoFillMode = "next_after_last"
)

// AutoFillRequest asks the scheduler to pick a slot itself. PractitionerID is
// required except in across-practitioners mode, which selects among the
// clinic's eligible practitioners for the service type instead.
type AutoFillRequest struct {
	Mode               AutoFillMode
	PractitionerID     uuid.UUID
	ClinicID           uuid.UUID
	PatientID          uuid.UUID
	ServiceType        string
	Date               time.Time
	DurationMinutes    int
	GranularityMinutes int
}

func (r AutoFillRequest) validate() error {
	if r.ClinicID == uuid.Nil || r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if r.Mode == ModeAcrossPractitioners {
		if r.ServiceType == "" {
			return fmt.Errorf("%w: service type required", ErrValidation)
		}
	} else if r.PractitionerID == uuid.Nil {
		return fmt.Errorf("%w: missing practitioner id", ErrValidation)
	}
	return nil
}

// AutoFill dispatches to the mode-specific strategy.
func (s *Service) AutoFill(ctx context.Context, req AutoFillRequest) (*Appointment, error) {
	switch req.Mode {
	case ModeFirstAvailable:
		return s.FirstAvailable(ctx, req)
	case ModeAcrossPractitioners:
		return s.FirstAvailableAcross(ctx, req)
	case ModeNextAfterLast:
		return s.NextAfterLast(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown auto-fill mode %q", ErrValidation, req.Mode)
	}
}

// FirstAvailable books the earliest open slot for one practitioner, advancing
// day by day up to the configured horizon. A fully booked day yields no
// candidates and moves on to the next. Conflicts from racing actors are
// retried a bounded number of times before failing.
func (s *Service) FirstAvailable(ctx context.Context, req AutoFillRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	horizon := s.cfg.AutoFillHorizonDays
	if horizon < 0 {
		horizon = 0
	}

	conflicts := 0
	for d := 0; d <= horizon; d++ {
		date := req.Date.AddDate(0, 0, d)

		slots, err := s.openSlotsFresh(ctx, req.PractitionerID, req.ClinicID, date, req.DurationMinutes, req.GranularityMinutes)
		if err != nil {
			return nil, err
		}
		slots = FilterElapsed(slots, s.now())

		for _, slot := range slots {
			appt, err := s.Book(ctx, BookingRequest{
				PractitionerID:     req.PractitionerID,
				ClinicID:           req.ClinicID,
				PatientID:          req.PatientID,
				Date:               date,
				Start:              slot.Start,
				DurationMinutes:    req.DurationMinutes,
				GranularityMinutes: req.GranularityMinutes,
			})
			if err == nil {
				s.markAutoFill(ModeFirstAvailable, "booked")
				return appt, nil
			}
			if errors.Is(err, ErrConflict) {
				// A concurrent actor took the slot between generation and
				// commit; try the next candidate within the retry budget.
				conflicts++
				if conflicts >= s.cfg.AutoFillMaxRetries {
					s.markAutoFill(ModeFirstAvailable, "conflict")
					return nil, err
				}
				if err := s.autoFillBackoff(ctx, conflicts); err != nil {
					return nil, err
				}
				continue
			}
			s.markAutoFill(ModeFirstAvailable, "error")
			return nil, err
		}
	}

	s.markAutoFill(ModeFirstAvailable, "not_available")
	return nil, fmt.Errorf("%w: no open slot within %d day horizon", ErrNotAvailable, horizon)
}

// FirstAvailableAcross books the earliest slot across the clinic's eligible
// practitioners for the requested date. Candidates compare by start time,
// tie-broken by practitioner id, so the choice is deterministic. On a
// conflict the whole selection re-runs against fresh state.
func (s *Service) FirstAvailableAcross(ctx context.Context, req AutoFillRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	practitioners, err := s.repo.EligiblePractitioners(ctx, req.ClinicID, req.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("load eligible practitioners: %w", err)
	}
	if len(practitioners) == 0 {
		s.markAutoFill(ModeAcrossPractitioners, "not_available")
		return nil, fmt.Errorf("%w: no eligible practitioners for %q", ErrNotAvailable, req.ServiceType)
	}

	maxAttempts := s.cfg.AutoFillMaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.autoFillBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		var best *Slot
		for _, pid := range practitioners {
			slots, err := s.openSlotsFresh(ctx, pid, req.ClinicID, req.Date, req.DurationMinutes, req.GranularityMinutes)
			if err != nil {
				return nil, err
			}
			slots = FilterElapsed(slots, s.now())
			if len(slots) == 0 {
				continue
			}

			c := slots[0]
			if best == nil || c.Start < best.Start ||
				(c.Start == best.Start && c.PractitionerID.String() < best.PractitionerID.String()) {
				candidate := c
				best = &candidate
			}
		}

		if best == nil {
			s.markAutoFill(ModeAcrossPractitioners, "not_available")
			return nil, fmt.Errorf("%w: all eligible practitioners are booked", ErrNotAvailable)
		}

		appt, err := s.Book(ctx, BookingRequest{
			PractitionerID:     best.PractitionerID,
			ClinicID:           req.ClinicID,
			PatientID:          req.PatientID,
			Date:               req.Date,
			Start:              best.Start,
			DurationMinutes:    req.DurationMinutes,
			GranularityMinutes: req.GranularityMinutes,
		})
		if err == nil {
			s.markAutoFill(ModeAcrossPractitioners, "booked")
			return appt, nil
		}
		if errors.Is(err, ErrConflict) {
			continue
		}
		s.markAutoFill(ModeAcrossPractitioners, "error")
		return nil, err
	}

	s.markAutoFill(ModeAcrossPractitioners, "conflict")
	return nil, fmt.Errorf("%w: lost the slot race %d times", ErrConflict, maxAttempts)
}

// NextAfterLast books the first grid slot after the practitioner's latest
// booking of the day. With no bookings yet it degenerates to the first slot
// of the day. On a conflict the latest end is re-read, so the candidate
// naturally advances past whatever the concurrent actor booked.
func (s *Service) NextAfterLast(ctx context.Context, req AutoFillRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	window, err := s.repo.ActiveWindowFor(ctx, req.PractitionerID, req.ClinicID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("load availability window: %w", err)
	}
	if window == nil {
		s.markAutoFill(ModeNextAfterLast, "not_available")
		return nil, fmt.Errorf("%w: practitioner is closed on %s", ErrNotAvailable, DayKey(req.Date))
	}

	granularity := req.GranularityMinutes
	if granularity <= 0 {
		granularity = req.DurationMinutes
	}

	maxAttempts := s.cfg.AutoFillMaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.autoFillBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		occupying, err := s.repo.LoadOccupying(ctx, req.PractitionerID, req.ClinicID, req.Date)
		if err != nil {
			return nil, fmt.Errorf("load occupying appointments: %w", err)
		}

		candidate := window.Start
		for _, a := range occupying {
			if end := a.End(); end > candidate {
				candidate = end
			}
		}
		candidate = NextOnGrid(*window, candidate, granularity)

		now := s.now()
		if SameDay(req.Date, now) && candidate <= MinutesOfDay(now) {
			candidate = NextOnGrid(*window, MinutesOfDay(now)+1, granularity)
		}

		if candidate.Add(req.DurationMinutes) > window.End {
			s.markAutoFill(ModeNextAfterLast, "not_available")
			return nil, fmt.Errorf("%w: day is full past %s", ErrNotAvailable, candidate)
		}

		appt, err := s.Book(ctx, BookingRequest{
			PractitionerID:     req.PractitionerID,
			ClinicID:           req.ClinicID,
			PatientID:          req.PatientID,
			Date:               req.Date,
			Start:              candidate,
			DurationMinutes:    req.DurationMinutes,
			GranularityMinutes: granularity,
		})
		if err == nil {
			s.markAutoFill(ModeNextAfterLast, "booked")
			return appt, nil
		}
		if errors.Is(err, ErrConflict) {
			continue
		}
		s.markAutoFill(ModeNextAfterLast, "error")
		return nil, err
	}

	s.markAutoFill(ModeNextAfterLast, "conflict")
	return nil, fmt.Errorf("%w: lost the slot race %d times", ErrConflict, maxAttempts)
}

func (s *Service) markAutoFill(mode AutoFillMode, outcome string) {
	metrics.IncAutoFill(string(mode), outcome)
}

func (s *Service) autoFillBackoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.BookRetryBackoff * time.Duration(attempt)):
		return nil
	}
}
