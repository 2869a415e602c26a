package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickWindow(t *testing.T) {
	practitioner := uuid.New()
	clinic := uuid.New()

	base := AvailabilityWindow{
		ID:             uuid.New(),
		PractitionerID: practitioner,
		ClinicID:       clinic,
		DayOfWeek:      time.Monday,
		Start:          9 * 60,
		End:            17 * 60,
		EffectiveFrom:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:         true,
		CreatedAt:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("weekday mismatch yields nil", func(t *testing.T) {
		tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
		assert.Nil(t, PickWindow([]AvailabilityWindow{base}, tuesday))
	})

	t.Run("no windows is the normal closed case", func(t *testing.T) {
		assert.Nil(t, PickWindow(nil, monday))
	})

	t.Run("matching window selected", func(t *testing.T) {
		got := PickWindow([]AvailabilityWindow{base}, monday)
		require.NotNil(t, got)
		assert.Equal(t, base.ID, got.ID)
	})

	t.Run("inactive window skipped", func(t *testing.T) {
		w := base
		w.Active = false
		assert.Nil(t, PickWindow([]AvailabilityWindow{w}, monday))
	})

	t.Run("effective range bounds", func(t *testing.T) {
		w := base
		w.EffectiveFrom = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		assert.Nil(t, PickWindow([]AvailabilityWindow{w}, monday), "not yet effective")

		until := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		w = base
		w.EffectiveUntil = &until
		assert.Nil(t, PickWindow([]AvailabilityWindow{w}, monday), "expired")

		lastDay := monday
		w = base
		w.EffectiveUntil = &lastDay
		assert.NotNil(t, PickWindow([]AvailabilityWindow{w}, monday), "inclusive on the last day")
	})

	t.Run("most recently created wins on overlap", func(t *testing.T) {
		older := base
		newer := base
		newer.ID = uuid.New()
		newer.Start = 10 * 60
		newer.CreatedAt = older.CreatedAt.Add(time.Hour)

		got := PickWindow([]AvailabilityWindow{older, newer}, monday)
		require.NotNil(t, got)
		assert.Equal(t, newer.ID, got.ID)

		// Input ordering must not change the outcome.
		got = PickWindow([]AvailabilityWindow{newer, older}, monday)
		require.NotNil(t, got)
		assert.Equal(t, newer.ID, got.ID)
	})
}
