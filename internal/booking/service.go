package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service coordinates the two ledgers. The doctor's slot sequence is the
// authority; the patient's appointment list follows it.
type Service struct {
	slots        *SlotLedger
	appointments *AppointmentLedger
	logger       *zap.Logger
	newID        func() string
	now          func() time.Time
}

func NewService(slots *SlotLedger, appointments *AppointmentLedger, logger *zap.Logger) *Service {
	return &Service{
		slots:        slots,
		appointments: appointments,
		logger:       logger,
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

func (s *Service) Slots() *SlotLedger { return s.slots }

func (s *Service) Appointments() *AppointmentLedger { return s.appointments }

func (s *Service) ListFreeSlots(ctx context.Context, doctorID string) ([]Slot, error) {
	return s.slots.ListFreeSlots(ctx, doctorID)
}

func (s *Service) ListAppointments(ctx context.Context, patientID string) ([]AppointmentView, error) {
	return s.appointments.ListAppointments(ctx, patientID)
}

// Book claims a free slot for the patient and records the appointment.
// Losing the race for the slot yields ErrSlotAlreadyBooked with nothing
// written; failing after the slot was claimed yields *PartialBookingError.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	doctor, err := s.slots.Doctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	i := findSlot(doctor.Slots, req.SlotTime)
	if i < 0 {
		return nil, ErrSlotNotFound
	}
	if doctor.Slots[i].IsBooked {
		return nil, ErrSlotAlreadyBooked
	}

	patient, err := s.appointments.Patient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	contact := req.PatientContact
	if contact == "" {
		contact = patient.Email
	}

	appt := Appointment{
		ID:         s.newID(),
		DoctorID:   doctor.ID,
		DoctorName: doctor.Name,
		ClinicID:   req.Clinic.ID,
		ClinicName: req.Clinic.Name,
		SlotTime:   req.SlotTime,
		Status:     StatusConfirmed,
		CreatedAt:  s.now().UTC(),
	}

	if _, err := s.slots.MarkBooked(ctx, req.DoctorID, req.SlotTime, req.PatientID, contact, appt.ID); err != nil {
		if errors.Is(err, ErrSlotAlreadyBooked) {
			s.logger.Info("slot taken by a concurrent booking",
				zap.String("doctor_id", req.DoctorID),
				zap.Stringer("slot_time", req.SlotTime),
				zap.String("patient_id", req.PatientID),
			)
		}
		return nil, err
	}

	if err := s.appointments.AddAppointment(ctx, req.PatientID, appt); err != nil {
		s.logger.Error("slot booked but appointment write failed",
			zap.String("doctor_id", req.DoctorID),
			zap.Stringer("slot_time", req.SlotTime),
			zap.String("patient_id", req.PatientID),
			zap.String("appointment_id", appt.ID),
			zap.Error(err),
		)
		return nil, &PartialBookingError{Appointment: appt, Err: err}
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("doctor_id", appt.DoctorID),
		zap.String("patient_id", req.PatientID),
		zap.Stringer("slot_time", appt.SlotTime),
	)
	return &appt, nil
}

// Cancel frees the slot and then marks the appointment cancelled, so a
// failure between the two leaves the slot available rather than locked.
// Cancelling a cancelled appointment returns it without writing anything.
func (s *Service) Cancel(ctx context.Context, patientID, appointmentID string) (*Appointment, error) {
	appt, err := s.appointments.GetAppointment(ctx, patientID, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		s.logger.Debug("appointment already cancelled", zap.String("appointment_id", appointmentID))
		return appt, nil
	}

	if _, err := s.slots.Release(ctx, appt.DoctorID, appt.SlotTime, appt.ID); err != nil {
		switch {
		case errors.Is(err, ErrSlotNotFound),
			errors.Is(err, ErrDoctorNotFound),
			errors.Is(err, ErrSlotHeldByOther):
			s.logger.Warn("slot not released while cancelling",
				zap.String("appointment_id", appt.ID),
				zap.String("doctor_id", appt.DoctorID),
				zap.Stringer("slot_time", appt.SlotTime),
				zap.Error(err),
			)
		default:
			return nil, fmt.Errorf("release slot: %w", err)
		}
	}

	cancelled, err := s.appointments.UpdateAppointmentStatus(ctx, patientID, appt.Ref(), StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("mark appointment cancelled: %w", err)
	}

	s.logger.Info("appointment cancelled",
		zap.String("appointment_id", cancelled.ID),
		zap.String("doctor_id", cancelled.DoctorID),
		zap.String("patient_id", patientID),
	)
	return cancelled, nil
}

// Reschedule is Cancel followed by Book with the same doctor and clinic. The
// original is not restored if the new booking fails; the caller gets a
// *RescheduleError and must book again.
func (s *Service) Reschedule(ctx context.Context, patientID, appointmentID string, newSlot Timestamp) (*Appointment, error) {
	cancelled, err := s.Cancel(ctx, patientID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("cancel original appointment: %w", err)
	}

	booked, err := s.Book(ctx, BookingRequest{
		PatientID: patientID,
		DoctorID:  cancelled.DoctorID,
		SlotTime:  newSlot,
		Clinic:    ClinicContext{ID: cancelled.ClinicID, Name: cancelled.ClinicName},
	})
	if err != nil {
		s.logger.Warn("reschedule left original appointment cancelled",
			zap.String("appointment_id", cancelled.ID),
			zap.Stringer("new_slot_time", newSlot),
			zap.Error(err),
		)
		return nil, &RescheduleError{Cancelled: *cancelled, Err: err}
	}

	s.logger.Info("appointment rescheduled",
		zap.String("from_appointment_id", cancelled.ID),
		zap.String("to_appointment_id", booked.ID),
	)
	return booked, nil
}

// RecoverBooking is the retry path after a Book whose outcome is unknown
// (timeout) or partial. It never produces a second appointment for a slot:
//   - a confirmed appointment for the slot already exists: return it
//   - the slot is held by this patient with no record: write the record
//   - otherwise: run a normal Book
func (s *Service) RecoverBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	existing, err := s.appointments.FindActive(ctx, req.PatientID, req.DoctorID, req.SlotTime)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	doctor, err := s.slots.Doctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	i := findSlot(doctor.Slots, req.SlotTime)
	if i < 0 {
		return nil, ErrSlotNotFound
	}
	slot := doctor.Slots[i]
	if !slot.IsBooked || slot.PatientID != req.PatientID {
		return s.Book(ctx, req)
	}

	if slot.AppointmentID != "" {
		if prior, err := s.appointments.GetAppointment(ctx, req.PatientID, slot.AppointmentID); err == nil {
			// A record with the slot's id exists but is not confirmed: the
			// hold is stale and the slot is not ours to reclaim.
			s.logger.Warn("slot held by a non-confirmed appointment",
				zap.String("appointment_id", prior.ID),
				zap.String("status", string(prior.Status)),
			)
			return nil, ErrSlotAlreadyBooked
		}
	}

	appt := Appointment{
		ID:         slot.AppointmentID,
		DoctorID:   doctor.ID,
		DoctorName: doctor.Name,
		ClinicID:   req.Clinic.ID,
		ClinicName: req.Clinic.Name,
		SlotTime:   slot.Time,
		Status:     StatusConfirmed,
		CreatedAt:  s.now().UTC(),
	}
	if appt.ID == "" {
		appt.ID = s.newID()
	}
	if slot.BookedAt != nil {
		appt.CreatedAt = slot.BookedAt.UTC()
	}

	if err := s.appointments.AddAppointment(ctx, req.PatientID, appt); err != nil {
		return nil, &PartialBookingError{Appointment: appt, Err: err}
	}

	s.logger.Info("appointment record recovered",
		zap.String("appointment_id", appt.ID),
		zap.String("doctor_id", appt.DoctorID),
		zap.String("patient_id", req.PatientID),
	)
	return &appt, nil
}
