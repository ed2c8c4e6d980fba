package booking

import (
	"errors"
	"fmt"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotAlreadyBooked   = errors.New("slot is already booked")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrDuplicateSlot       = errors.New("doctor already has a slot at this time")
	ErrSlotInUse           = errors.New("slot is booked and cannot be removed")
	ErrSlotHeldByOther     = errors.New("slot is held by a different appointment")
	ErrInvalidRequest      = errors.New("invalid booking request")

	ErrPartialBooking       = errors.New("slot booked but appointment not recorded")
	ErrRescheduleIncomplete = errors.New("original appointment cancelled but new booking failed")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

// PartialBookingError reports a slot that was marked booked while the
// patient's appointment record could not be written. Appointment is the
// record that should exist; RecoverBooking writes it.
type PartialBookingError struct {
	Appointment Appointment
	Err         error
}

func (e *PartialBookingError) Error() string {
	return fmt.Sprintf("slot %s with doctor %s booked but appointment %s not recorded: %v",
		e.Appointment.SlotTime, e.Appointment.DoctorID, e.Appointment.ID, e.Err)
}

func (e *PartialBookingError) Unwrap() error { return e.Err }

func (e *PartialBookingError) Is(target error) bool { return target == ErrPartialBooking }

// RescheduleError reports a reschedule whose cancel half succeeded and whose
// booking half failed. Cancelled stays cancelled.
type RescheduleError struct {
	Cancelled Appointment
	Err       error
}

func (e *RescheduleError) Error() string {
	return fmt.Sprintf("appointment %s cancelled but rebooking failed: %v", e.Cancelled.ID, e.Err)
}

func (e *RescheduleError) Unwrap() error { return e.Err }

func (e *RescheduleError) Is(target error) bool { return target == ErrRescheduleIncomplete }
