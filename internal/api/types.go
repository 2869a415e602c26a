package api

import (
	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	PractitionerID     string `json:"practitioner_id"`
	ClinicID           string `json:"clinic_id"`
	PatientID          string `json:"patient_id"`
	Date               string `json:"date"`  // 2006-01-02
	Start              string `json:"start"` // 15:04
	DurationMinutes    int    `json:"duration_minutes"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	NewPractitionerID  string `json:"new_practitioner_id,omitempty"`
	NewDate            string `json:"new_date"`
	NewStart           string `json:"new_start"`
	NewDurationMinutes int    `json:"new_duration_minutes,omitempty"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type AutoFillAppointmentRequest struct {
	Mode               string `json:"mode"` // first_available, across_practitioners, next_after_last
	PractitionerID     string `json:"practitioner_id,omitempty"`
	ClinicID           string `json:"clinic_id"`
	PatientID          string `json:"patient_id"`
	ServiceType        string `json:"service_type,omitempty"`
	Date               string `json:"date"`
	DurationMinutes    int    `json:"duration_minutes"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PractitionerID  uuid.UUID `json:"practitioner_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            string    `json:"date"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

type SlotResponse struct {
	PractitionerID  uuid.UUID `json:"practitioner_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	Date            string    `json:"date"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

type SlotsResponse struct {
	Slots []SlotResponse `json:"slots"`
}

type OccupancyBucket struct {
	Start  string `json:"start"`
	Booked int    `json:"booked"`
}

type OccupancyResponse struct {
	Date    string            `json:"date"`
	Buckets []OccupancyBucket `json:"buckets"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
