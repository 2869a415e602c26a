package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/schedule"
)

// Requests below fail at the parse layer, so the handlers never reach the
// service and a nil one is safe.

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("%w: duration must be positive", schedule.ErrValidation), http.StatusBadRequest, "invalid_request"},
		{schedule.ErrConflict, http.StatusConflict, "slot_conflict"},
		{fmt.Errorf("%w: booking lock busy", schedule.ErrNotAvailable), http.StatusUnprocessableEntity, "not_available"},
		{schedule.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{schedule.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{fmt.Errorf("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestBookAppointmentHandlerParsing(t *testing.T) {
	valid := map[string]any{
		"practitioner_id":  uuid.New().String(),
		"clinic_id":        uuid.New().String(),
		"patient_id":       uuid.New().String(),
		"date":             "2026-09-07",
		"start":            "10:00",
		"duration_minutes": 30,
	}

	post := func(t *testing.T, mutate func(m map[string]any)) *httptest.ResponseRecorder {
		t.Helper()
		body := make(map[string]any, len(valid))
		for k, v := range valid {
			body[k] = v
		}
		mutate(body)

		data, err := json.Marshal(body)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(string(data)))
		bookAppointmentHandler(nil)(rec, req)
		return rec
	}

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader("{not json"))
		bookAppointmentHandler(nil)(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)
	})

	t.Run("bad practitioner id", func(t *testing.T) {
		rec := post(t, func(m map[string]any) { m["practitioner_id"] = "not-a-uuid" })
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_practitioner_id", decodeError(t, rec).Error)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := post(t, func(m map[string]any) { m["date"] = "07/09/2026" })
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_date", decodeError(t, rec).Error)
	})

	t.Run("bad start time", func(t *testing.T) {
		rec := post(t, func(m map[string]any) { m["start"] = "10am" })
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_start", decodeError(t, rec).Error)
	})
}

func TestOpenSlotsHandlerParsing(t *testing.T) {
	practitioner := uuid.New().String()
	clinic := uuid.New().String()

	get := func(t *testing.T, id, query string) *httptest.ResponseRecorder {
		t.Helper()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/practitioners/"+id+"/slots?"+query, nil)
		openSlotsHandler(nil)(rec, withURLParam(req, "id", id))
		return rec
	}

	t.Run("bad practitioner id", func(t *testing.T) {
		rec := get(t, "abc", "clinic_id="+clinic+"&date=2026-09-07&duration_minutes=30")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_practitioner_id", decodeError(t, rec).Error)
	})

	t.Run("missing clinic id", func(t *testing.T) {
		rec := get(t, practitioner, "date=2026-09-07&duration_minutes=30")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_clinic_id", decodeError(t, rec).Error)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := get(t, practitioner, "clinic_id="+clinic+"&date=today&duration_minutes=30")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_date", decodeError(t, rec).Error)
	})

	t.Run("missing duration", func(t *testing.T) {
		rec := get(t, practitioner, "clinic_id="+clinic+"&date=2026-09-07")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_duration_minutes", decodeError(t, rec).Error)
	})
}

func TestRescheduleHandlerParsing(t *testing.T) {
	t.Run("bad appointment id in path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/appointments/xyz/reschedule", strings.NewReader(`{}`))
		rescheduleAppointmentHandler(nil)(rec, withURLParam(req, "id", "xyz"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_appointment_id", decodeError(t, rec).Error)
	})

	t.Run("bad new start", func(t *testing.T) {
		body := `{"new_date": "2026-09-07", "new_start": "noon"}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/appointments/x/reschedule", strings.NewReader(body))
		rescheduleAppointmentHandler(nil)(rec, withURLParam(req, "id", uuid.New().String()))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_new_start", decodeError(t, rec).Error)
	})
}

func TestAutoFillHandlerParsing(t *testing.T) {
	t.Run("bad clinic id", func(t *testing.T) {
		body := `{"mode": "first_available", "clinic_id": "nope", "patient_id": "` + uuid.New().String() + `", "date": "2026-09-07", "duration_minutes": 30}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/appointments/autofill", strings.NewReader(body))
		autoFillHandler(nil)(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_clinic_id", decodeError(t, rec).Error)
	})

	t.Run("practitioner id optional but validated when present", func(t *testing.T) {
		body := `{"mode": "first_available", "clinic_id": "` + uuid.New().String() + `", "patient_id": "` + uuid.New().String() + `", "practitioner_id": "nope", "date": "2026-09-07", "duration_minutes": 30}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/appointments/autofill", strings.NewReader(body))
		autoFillHandler(nil)(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_practitioner_id", decodeError(t, rec).Error)
	})
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?n=45&bad=abc", nil)

	assert.Equal(t, 45, queryInt(req, "n", 0))
	assert.Equal(t, 30, queryInt(req, "missing", 30))
	assert.Equal(t, 30, queryInt(req, "bad", 30))
}
