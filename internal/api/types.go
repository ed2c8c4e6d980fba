package api

import (
	"time"

	"github.com/Rawan10101/Carevo/internal/booking"
)

type BookRequest struct {
	DoctorID       string    `json:"doctor_id"`
	SlotTime       time.Time `json:"slot_time"`
	ClinicID       string    `json:"clinic_id"`
	ClinicName     string    `json:"clinic_name"`
	PatientContact string    `json:"patient_contact,omitempty"`
}

type RescheduleRequest struct {
	SlotTime time.Time `json:"slot_time"`
}

type AddSlotRequest struct {
	Time time.Time `json:"time"`
}

type SlotResponse struct {
	Time           time.Time  `json:"time"`
	IsBooked       bool       `json:"is_booked"`
	PatientID      string     `json:"patient_id,omitempty"`
	PatientContact string     `json:"patient_contact,omitempty"`
	BookedAt       *time.Time `json:"booked_at,omitempty"`
	AppointmentID  string     `json:"appointment_id,omitempty"`
}

type AppointmentResponse struct {
	ID            string     `json:"id"`
	DoctorID      string     `json:"doctor_id"`
	DoctorName    string     `json:"doctor_name"`
	ClinicID      string     `json:"clinic_id"`
	ClinicName    string     `json:"clinic_name"`
	SlotTime      time.Time  `json:"slot_time"`
	Status        string     `json:"status"`
	DisplayStatus string     `json:"display_status,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Appointment is set when a failure left an appointment behind that the
	// caller needs to know about.
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
}

func (r BookRequest) toBooking(patientID string) booking.BookingRequest {
	return booking.BookingRequest{
		PatientID:      patientID,
		DoctorID:       r.DoctorID,
		SlotTime:       slotTimestamp(r.SlotTime),
		Clinic:         booking.ClinicContext{ID: r.ClinicID, Name: r.ClinicName},
		PatientContact: r.PatientContact,
	}
}

// slotTimestamp maps the zero time to the zero Timestamp so the service's
// "slot time is required" check fires.
func slotTimestamp(t time.Time) booking.Timestamp {
	if t.IsZero() {
		return booking.Timestamp{}
	}
	return booking.NewTimestamp(t)
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		Time:           s.Time.Time(),
		IsBooked:       s.IsBooked,
		PatientID:      s.PatientID,
		PatientContact: s.PatientContact,
		BookedAt:       s.BookedAt,
		AppointmentID:  s.AppointmentID,
	}
}

func toSlotResponses(slots []booking.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		DoctorName:  a.DoctorName,
		ClinicID:    a.ClinicID,
		ClinicName:  a.ClinicName,
		SlotTime:    a.SlotTime.Time(),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		CancelledAt: a.CancelledAt,
	}
}

func toAppointmentViews(views []booking.AppointmentView) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(views))
	for _, v := range views {
		resp := toAppointmentResponse(v.Appointment)
		resp.DisplayStatus = string(v.DisplayStatus)
		out = append(out, resp)
	}
	return out
}
