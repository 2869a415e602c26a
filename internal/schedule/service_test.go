package schedule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/config"
	redisclient "github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/redis"
)

// fakeRepo is an in-memory Repository that enforces the same occupying-slot
// uniqueness rule as the Postgres partial index.
type fakeRepo struct {
	mu        sync.Mutex
	windows   []AvailabilityWindow
	appts     map[uuid.UUID]*Appointment
	patients  map[uuid.UUID]Patient
	eligible  map[string][]uuid.UUID
	events    []EventLog
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		appts:    make(map[uuid.UUID]*Appointment),
		patients: make(map[uuid.UUID]Patient),
		eligible: make(map[string][]uuid.UUID),
	}
}

func (r *fakeRepo) addWindow(practitionerID, clinicID uuid.UUID, dow time.Weekday, start, end TimeOfDay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, AvailabilityWindow{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		ClinicID:       clinicID,
		DayOfWeek:      dow,
		Start:          start,
		End:            end,
		EffectiveFrom:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:         true,
		CreatedAt:      time.Now(),
	})
}

func (r *fakeRepo) addPatient() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.patients[id] = Patient{ID: id, Name: "patient"}
	return id
}

func (r *fakeRepo) addAppointment(practitionerID, clinicID, patientID uuid.UUID, date time.Time, start TimeOfDay, duration int, status AppointmentStatus) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.appts[id] = &Appointment{
		ID:              id,
		PractitionerID:  practitionerID,
		ClinicID:        clinicID,
		PatientID:       patientID,
		Date:            date,
		Start:           start,
		DurationMinutes: duration,
		Status:          status,
	}
	return id
}

func (r *fakeRepo) ActiveWindowFor(_ context.Context, practitionerID, clinicID uuid.UUID, date time.Time) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []AvailabilityWindow
	for _, w := range r.windows {
		if w.PractitionerID == practitionerID && w.ClinicID == clinicID {
			candidates = append(candidates, w)
		}
	}
	return PickWindow(candidates, date), nil
}

func (r *fakeRepo) LoadOccupying(_ context.Context, practitionerID, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.PractitionerID == practitionerID && a.ClinicID == clinicID &&
			DayKey(a.Date) == DayKey(date) && a.Status.Occupying() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (r *fakeRepo) LoadClinicOccupying(_ context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.ClinicID == clinicID && DayKey(a.Date) == DayKey(date) && a.Status.Occupying() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *fakeRepo) InsertAppointment(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, a := range r.appts {
		if a.PractitionerID == appt.PractitionerID && a.ClinicID == appt.ClinicID &&
			DayKey(a.Date) == DayKey(appt.Date) && a.Start == appt.Start && a.Status.Occupying() {
			return ErrUniquenessViolation
		}
	}
	cp := *appt
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.appts[cp.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateAppointmentTime(_ context.Context, id, practitionerID uuid.UUID, date time.Time, start TimeOfDay, duration int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || !a.Status.Occupying() {
		return nil, ErrAppointmentNotFound
	}
	for _, other := range r.appts {
		if other.ID == id {
			continue
		}
		if other.PractitionerID == practitionerID && other.ClinicID == a.ClinicID &&
			DayKey(other.Date) == DayKey(date) && other.Start == start && other.Status.Occupying() {
			return nil, ErrUniquenessViolation
		}
	}
	a.PractitionerID = practitionerID
	a.Date = date
	a.Start = start
	a.DurationMinutes = duration
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) EligiblePractitioners(_ context.Context, clinicID uuid.UUID, serviceType string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := append([]uuid.UUID(nil), r.eligible[clinicID.String()+":"+serviceType]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRepo) occupyingCount(practitionerID uuid.UUID, date time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.PractitionerID == practitionerID && DayKey(a.Date) == DayKey(date) && a.Status.Occupying() {
			n++
		}
	}
	return n
}

// memLocker serializes callers per partition with real mutexes, like the
// Redis locker does across processes.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *memLocker) WithDayLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// busyLocker simulates a partition lock held elsewhere forever.
type busyLocker struct{}

func (busyLocker) WithDayLock(context.Context, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fakeCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key, variant string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key+"|"+variant]
	return data, ok
}

func (c *fakeCache) Set(_ context.Context, key, variant string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key+"|"+variant] = data
}

func (c *fakeCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, key)
	for k := range c.data {
		if strings.HasPrefix(k, key+"|") {
			delete(c.data, k)
		}
	}
}

func testConfig() config.Config {
	return config.Config{
		LockTTL:             time.Second,
		DefaultGranularity:  30,
		BookMaxAttempts:     3,
		BookRetryBackoff:    time.Millisecond,
		AutoFillHorizonDays: 14,
		AutoFillMaxRetries:  5,
	}
}

type fixture struct {
	svc          *Service
	repo         *fakeRepo
	cache        *fakeCache
	practitioner uuid.UUID
	clinic       uuid.UUID
	patient      uuid.UUID
}

// newFixture sets up a practitioner working Mondays 09:00-12:00 with the
// clock fixed to the Tuesday before 2026-09-07.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRepo()
	cache := newFakeCache()
	f := &fixture{
		repo:         repo,
		cache:        cache,
		practitioner: uuid.New(),
		clinic:       uuid.New(),
	}
	f.patient = repo.addPatient()
	repo.addWindow(f.practitioner, f.clinic, time.Monday, 9*60, 12*60)

	f.svc = NewService(repo, &memLocker{}, testConfig(), zerolog.Nop()).
		WithSlotCache(cache).
		WithClock(func() time.Time {
			return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
		})
	return f
}

func (f *fixture) bookingRequest(start TimeOfDay) BookingRequest {
	return BookingRequest{
		PractitionerID:  f.practitioner,
		ClinicID:        f.clinic,
		PatientID:       f.patient,
		Date:            monday,
		Start:           start,
		DurationMinutes: 30,
	}
}

func TestBook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t)

		appt, err := f.svc.Book(context.Background(), f.bookingRequest(10*60))
		require.NoError(t, err)
		assert.Equal(t, StatusScheduled, appt.Status)
		assert.Equal(t, TimeOfDay(10*60), appt.Start)
		assert.NotEqual(t, uuid.Nil, appt.ID)

		require.Len(t, f.repo.events, 1)
		assert.Equal(t, EventAppointmentBooked, f.repo.events[0].EventType)
		assert.Contains(t, f.cache.invalidated, partitionKey(f.practitioner, f.clinic, monday))
	})

	t.Run("conflict with existing appointment", func(t *testing.T) {
		f := newFixture(t)
		f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusConfirmed)

		_, err := f.svc.Book(context.Background(), f.bookingRequest(10*60+0))
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("back to back succeeds", func(t *testing.T) {
		f := newFixture(t)
		f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusScheduled)

		_, err := f.svc.Book(context.Background(), f.bookingRequest(10*60+30))
		assert.NoError(t, err)
	})

	t.Run("past date", func(t *testing.T) {
		f := newFixture(t)
		req := f.bookingRequest(10 * 60)
		req.Date = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("closed day", func(t *testing.T) {
		f := newFixture(t)
		req := f.bookingRequest(10 * 60)
		req.Date = monday.AddDate(0, 0, 1) // Tuesday, no window

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("outside window", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Book(context.Background(), f.bookingRequest(11*60+45))
		assert.ErrorIs(t, err, ErrNotAvailable, "slot would end past the window")
	})

	t.Run("off grid start", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Book(context.Background(), f.bookingRequest(10*60+10))
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("invalid duration", func(t *testing.T) {
		f := newFixture(t)
		req := f.bookingRequest(10 * 60)
		req.DurationMinutes = 0

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown patient", func(t *testing.T) {
		f := newFixture(t)
		req := f.bookingRequest(10 * 60)
		req.PatientID = uuid.New()

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, ErrPatientNotFound)
	})

	t.Run("uniqueness violation becomes conflict", func(t *testing.T) {
		f := newFixture(t)
		f.repo.insertErr = ErrUniquenessViolation

		_, err := f.svc.Book(context.Background(), f.bookingRequest(10*60))
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("lock exhaustion surfaces not available", func(t *testing.T) {
		f := newFixture(t)
		f.svc.locker = busyLocker{}

		_, err := f.svc.Book(context.Background(), f.bookingRequest(10*60))
		assert.ErrorIs(t, err, ErrNotAvailable)
	})
}

func TestBookConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)

	const racers = 8
	patients := make([]uuid.UUID, racers)
	for i := range patients {
		patients[i] = f.repo.addPatient()
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			req := f.bookingRequest(10 * 60)
			req.PatientID = patients[i]
			_, errs[i] = f.svc.Book(context.Background(), req)
		}(i)
	}

	close(start)
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins, "exactly one racer wins the slot")
	assert.Equal(t, racers-1, conflicts)
	assert.Equal(t, 1, f.repo.occupyingCount(f.practitioner, monday))
}

func TestReschedule(t *testing.T) {
	t.Run("to own current time never self-conflicts", func(t *testing.T) {
		f := newFixture(t)
		id := f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusScheduled)

		appt, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
			AppointmentID: id,
			NewDate:       monday,
			NewStart:      10 * 60,
		})
		require.NoError(t, err)
		assert.Equal(t, TimeOfDay(10*60), appt.Start)
	})

	t.Run("into occupied interval conflicts", func(t *testing.T) {
		f := newFixture(t)
		id := f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusScheduled)
		f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60+30, 30, StatusScheduled)

		// 10:15-10:45 overlaps the 10:30-11:00 appointment.
		_, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
			AppointmentID:      id,
			NewDate:            monday,
			NewStart:           10*60 + 15,
			GranularityMinutes: 15,
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("moves to a free slot", func(t *testing.T) {
		f := newFixture(t)
		id := f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusScheduled)

		appt, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
			AppointmentID: id,
			NewDate:       monday,
			NewStart:      11 * 60,
		})
		require.NoError(t, err)
		assert.Equal(t, TimeOfDay(11*60), appt.Start)

		// Both the old and new day partitions were invalidated.
		assert.Contains(t, f.cache.invalidated, partitionKey(f.practitioner, f.clinic, monday))
	})

	t.Run("terminal appointment rejected", func(t *testing.T) {
		f := newFixture(t)
		id := f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusCancelled)

		_, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
			AppointmentID: id,
			NewDate:       monday,
			NewStart:      11 * 60,
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown appointment", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
			AppointmentID: uuid.New(),
			NewDate:       monday,
			NewStart:      11 * 60,
		})
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	id := f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 10*60, 30, StatusConfirmed)

	appt, err := f.svc.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
	assert.Contains(t, f.cache.invalidated, partitionKey(f.practitioner, f.clinic, monday),
		"terminal transition must invalidate the cached slot computation")

	_, err = f.svc.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, ErrValidation, "already terminal")
}

func TestOpenSlots(t *testing.T) {
	t.Run("excludes booked intervals", func(t *testing.T) {
		f := newFixture(t)
		f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 9*60+30, 30, StatusScheduled)

		slots, err := f.svc.OpenSlots(context.Background(), f.practitioner, f.clinic, monday, 30, 30)
		require.NoError(t, err)

		starts := make([]string, 0, len(slots))
		for _, s := range slots {
			starts = append(starts, s.Start.String())
		}
		assert.Equal(t, []string{"09:00", "10:00", "10:30", "11:00", "11:30"}, starts)
	})

	t.Run("closed day yields empty, not error", func(t *testing.T) {
		f := newFixture(t)

		slots, err := f.svc.OpenSlots(context.Background(), f.practitioner, f.clinic, monday.AddDate(0, 0, 1), 30, 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("second call served from cache", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.svc.OpenSlots(context.Background(), f.practitioner, f.clinic, monday, 30, 30)
		require.NoError(t, err)
		require.NotEmpty(t, f.cache.data)

		second, err := f.svc.OpenSlots(context.Background(), f.practitioner, f.clinic, monday, 30, 30)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("booking invalidates cached day", func(t *testing.T) {
		f := newFixture(t)

		before, err := f.svc.OpenSlots(context.Background(), f.practitioner, f.clinic, monday, 30, 30)
		require.NoError(t, err)
		require.Len(t, before, 6)

		_, err = f.svc.Book(context.Background(), f.bookingRequest(9*60))
		require.NoError(t, err)

		after, err := f.svc.OpenSlots(context.Background(), f.practitioner, f.clinic, monday, 30, 30)
		require.NoError(t, err)
		assert.Len(t, after, 5)
	})
}

func TestOccupancy(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.repo.addAppointment(f.practitioner, f.clinic, f.patient, monday, 9*60, 30, StatusScheduled)
	f.repo.addAppointment(other, f.clinic, f.patient, monday, 9*60, 60, StatusConfirmed)

	buckets, err := f.svc.Occupancy(context.Background(), f.clinic, monday, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, buckets[9*60])
	assert.Equal(t, 1, buckets[9*60+30])
}
