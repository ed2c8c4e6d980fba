package booking

import (
	"time"
)

const (
	CollectionDoctors  = "doctors"
	CollectionPatients = "patients"

	fieldSlots        = "Slots"
	fieldAppointments = "appointments"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// DisplayStatus is derived at read time and never stored.
type DisplayStatus string

const (
	DisplayUpcoming  DisplayStatus = "upcoming"
	DisplayPast      DisplayStatus = "past"
	DisplayCancelled DisplayStatus = "cancelled"
)

// Slot is one bookable unit inside a doctor's Slots sequence. IsBooked and
// the patient fields are set and cleared together.
type Slot struct {
	Time           Timestamp  `json:"time"`
	IsBooked       bool       `json:"isBooked"`
	PatientID      string     `json:"patientId,omitempty"`
	PatientContact string     `json:"patientContact,omitempty"`
	BookedAt       *time.Time `json:"bookedAt,omitempty"`
	AppointmentID  string     `json:"appointmentId,omitempty"`
}

func (s *Slot) book(patientID, contact, appointmentID string, at time.Time) {
	s.IsBooked = true
	s.PatientID = patientID
	s.PatientContact = contact
	s.BookedAt = &at
	s.AppointmentID = appointmentID
}

func (s *Slot) clear() {
	s.IsBooked = false
	s.PatientID = ""
	s.PatientContact = ""
	s.BookedAt = nil
	s.AppointmentID = ""
}

type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Contact   string `json:"contact,omitempty"`
	Slots     []Slot `json:"Slots"`
}

type Patient struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email,omitempty"`
	Appointments []Appointment `json:"appointments"`
}

// Appointment is the patient-side copy of a booking. DoctorName and
// ClinicName are snapshots taken at booking time.
type Appointment struct {
	ID          string            `json:"appointmentId,omitempty"`
	DoctorID    string            `json:"doctorId"`
	DoctorName  string            `json:"doctorName"`
	ClinicID    string            `json:"clinicId"`
	ClinicName  string            `json:"clinicName"`
	SlotTime    Timestamp         `json:"slotTime"`
	Status      AppointmentStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	CancelledAt *time.Time        `json:"cancelledAt,omitempty"`
}

func (a Appointment) Ref() AppointmentRef {
	return AppointmentRef{ID: a.ID, DoctorID: a.DoctorID, SlotTime: a.SlotTime}
}

// DisplayStatusAt classifies the appointment for listing.
func (a Appointment) DisplayStatusAt(now time.Time) DisplayStatus {
	if a.Status == StatusCancelled {
		return DisplayCancelled
	}
	if a.SlotTime.Before(now) {
		return DisplayPast
	}
	return DisplayUpcoming
}

type AppointmentView struct {
	Appointment
	DisplayStatus DisplayStatus `json:"displayStatus"`
}

// AppointmentRef addresses an entry in a patient's list: by ID when set,
// otherwise (legacy records without an id) by doctor and slot time.
type AppointmentRef struct {
	ID       string
	DoctorID string
	SlotTime Timestamp
}

type ClinicContext struct {
	ID   string
	Name string
}

type BookingRequest struct {
	PatientID string
	DoctorID  string
	SlotTime  Timestamp
	Clinic    ClinicContext
	// PatientContact defaults to the patient's email when empty.
	PatientContact string
}

func (r BookingRequest) validate() error {
	switch {
	case r.PatientID == "":
		return invalid("patient id is required")
	case r.DoctorID == "":
		return invalid("doctor id is required")
	case r.SlotTime.IsZero():
		return invalid("slot time is required")
	}
	return nil
}

func findSlot(slots []Slot, t Timestamp) int {
	for i := range slots {
		if slots[i].Time.Equal(t) {
			return i
		}
	}
	return -1
}
