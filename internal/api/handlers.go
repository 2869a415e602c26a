package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/schedule"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the core error taxonomy to HTTP. Conflicts and
// exhausted availability are expected outcomes, not server failures.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, schedule.ErrConflict):
		writeError(w, http.StatusConflict, "slot_conflict", "slot no longer available, please pick another")
	case errors.Is(err, schedule.ErrNotAvailable):
		writeError(w, http.StatusUnprocessableEntity, "not_available", "no slots available for the requested criteria")
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func appointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PractitionerID:  a.PractitionerID,
		ClinicID:        a.ClinicID,
		PatientID:       a.PatientID,
		Date:            schedule.DayKey(a.Date),
		Start:           a.Start.String(),
		End:             a.End().String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
	}
}

func slotsResponse(slots []schedule.Slot) SlotsResponse {
	resp := SlotsResponse{Slots: make([]SlotResponse, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			PractitionerID:  s.PractitionerID,
			ClinicID:        s.ClinicID,
			Date:            s.Date,
			Start:           s.Start.String(),
			End:             s.End().String(),
			DurationMinutes: s.DurationMinutes,
		})
	}
	return resp
}

// Parsing helpers. All format validation happens here so the scheduling core
// only ever sees typed requests.

func parseUUIDField(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateField(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be formatted as "+dateLayout)
		return time.Time{}, false
	}
	return d, true
}

func parseTimeField(w http.ResponseWriter, raw, field string) (schedule.TimeOfDay, bool) {
	t, err := schedule.ParseTimeOfDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be formatted as HH:MM")
		return 0, false
	}
	return t, true
}

func openSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := parseUUIDField(w, chi.URLParam(r, "id"), "practitioner_id")
		if !ok {
			return
		}
		clinicID, ok := parseUUIDField(w, r.URL.Query().Get("clinic_id"), "clinic_id")
		if !ok {
			return
		}
		date, ok := parseDateField(w, r.URL.Query().Get("date"), "date")
		if !ok {
			return
		}

		duration := queryInt(r, "duration_minutes", 0)
		if duration <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration_minutes", "duration_minutes must be a positive integer")
			return
		}
		granularity := queryInt(r, "granularity_minutes", 0)

		slots, err := svc.OpenSlots(r.Context(), practitionerID, clinicID, date, duration, granularity)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slotsResponse(slots))
	}
}

func occupancyHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := parseUUIDField(w, chi.URLParam(r, "id"), "clinic_id")
		if !ok {
			return
		}
		date, ok := parseDateField(w, r.URL.Query().Get("date"), "date")
		if !ok {
			return
		}
		granularity := queryInt(r, "granularity_minutes", 30)

		buckets, err := svc.Occupancy(r.Context(), clinicID, date, granularity)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		starts := make([]schedule.TimeOfDay, 0, len(buckets))
		for b := range buckets {
			starts = append(starts, b)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

		resp := OccupancyResponse{Date: schedule.DayKey(date), Buckets: make([]OccupancyBucket, 0, len(starts))}
		for _, b := range starts {
			resp.Buckets = append(resp.Buckets, OccupancyBucket{Start: b.String(), Booked: buckets[b]})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, ok := parseUUIDField(w, req.PractitionerID, "practitioner_id")
		if !ok {
			return
		}
		clinicID, ok := parseUUIDField(w, req.ClinicID, "clinic_id")
		if !ok {
			return
		}
		patientID, ok := parseUUIDField(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		date, ok := parseDateField(w, req.Date, "date")
		if !ok {
			return
		}
		start, ok := parseTimeField(w, req.Start, "start")
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), schedule.BookingRequest{
			PractitionerID:     practitionerID,
			ClinicID:           clinicID,
			PatientID:          patientID,
			Date:               date,
			Start:              start,
			DurationMinutes:    req.DurationMinutes,
			GranularityMinutes: req.GranularityMinutes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		newPractitionerID := uuid.Nil
		if req.NewPractitionerID != "" {
			var ok bool
			newPractitionerID, ok = parseUUIDField(w, req.NewPractitionerID, "new_practitioner_id")
			if !ok {
				return
			}
		}
		newDate, ok := parseDateField(w, req.NewDate, "new_date")
		if !ok {
			return
		}
		newStart, ok := parseTimeField(w, req.NewStart, "new_start")
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), schedule.RescheduleRequest{
			AppointmentID:      id,
			NewPractitionerID:  newPractitionerID,
			NewDate:            newDate,
			NewStart:           newStart,
			NewDurationMinutes: req.NewDurationMinutes,
			GranularityMinutes: req.GranularityMinutes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func autoFillHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AutoFillAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clinicID, ok := parseUUIDField(w, req.ClinicID, "clinic_id")
		if !ok {
			return
		}
		patientID, ok := parseUUIDField(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		date, ok := parseDateField(w, req.Date, "date")
		if !ok {
			return
		}

		practitionerID := uuid.Nil
		if req.PractitionerID != "" {
			var ok bool
			practitionerID, ok = parseUUIDField(w, req.PractitionerID, "practitioner_id")
			if !ok {
				return
			}
		}

		appt, err := svc.AutoFill(r.Context(), schedule.AutoFillRequest{
			Mode:               schedule.AutoFillMode(req.Mode),
			PractitionerID:     practitionerID,
			ClinicID:           clinicID,
			PatientID:          patientID,
			ServiceType:        req.ServiceType,
			Date:               date,
			DurationMinutes:    req.DurationMinutes,
			GranularityMinutes: req.GranularityMinutes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
