package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/booking"
	"github.com/Rawan10101/Carevo/internal/docstore"
	"github.com/Rawan10101/Carevo/internal/identity"
)

const (
	msgSlotTaken     = "this slot was just taken, please choose another"
	msgRecoverHint   = "the slot is reserved but the appointment was not recorded; retry with POST /appointments/recover"
	msgTimeoutHint   = "the request timed out and its outcome is unknown; retry with POST /appointments/recover"
	msgRescheduleGap = "the original appointment was cancelled but the new slot could not be booked; choose another slot"
)

func listFreeSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListFreeSlots(r.Context(), chi.URLParam(r, "doctorID"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func bookedSlotsHandler(slots SlotManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := requireSelf(w, r)
		if !ok {
			return
		}

		booked, err := slots.BookedSlots(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(booked))
	}
}

func addSlotHandler(slots SlotManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := requireSelf(w, r)
		if !ok {
			return
		}

		var req AddSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Time.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_time", "time is required")
			return
		}

		slot, err := slots.AddSlot(r.Context(), doctorID, booking.NewTimestamp(req.Time))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func removeSlotHandler(slots SlotManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := requireSelf(w, r)
		if !ok {
			return
		}

		t, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be an RFC 3339 timestamp")
			return
		}

		if err := slots.RemoveSlot(r.Context(), doctorID, booking.NewTimestamp(t)); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, req, ok := decodeBookRequest(w, r)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), req.toBooking(patientID))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func recoverBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, req, ok := decodeBookRequest(w, r)
		if !ok {
			return
		}

		appt, err := svc.RecoverBooking(r.Context(), req.toBooking(patientID))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireUser(w, r)
		if !ok {
			return
		}

		views, err := svc.ListAppointments(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentViews(views))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireUser(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), patientID, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func rescheduleAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SlotTime.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_slot_time", "slot_time is required")
			return
		}

		appt, err := svc.Reschedule(r.Context(), patientID, chi.URLParam(r, "id"), booking.NewTimestamp(req.SlotTime))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func decodeBookRequest(w http.ResponseWriter, r *http.Request) (string, BookRequest, bool) {
	var req BookRequest
	patientID, ok := requireUser(w, r)
	if !ok {
		return "", req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return "", req, false
	}
	return patientID, req, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := identity.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return "", false
	}
	return id, true
}

// requireSelf admits only the doctor named in the path.
func requireSelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	doctorID := chi.URLParam(r, "doctorID")
	if userID != doctorID {
		writeError(w, http.StatusForbidden, "forbidden", "only the doctor can manage their schedule")
		return "", false
	}
	return doctorID, true
}

// handleServiceError maps booking errors to responses. Wrapping errors are
// matched before the sentinels they wrap.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *booking.PartialBookingError
	var resched *booking.RescheduleError

	switch {
	case errors.As(err, &partial):
		appt := toAppointmentResponse(partial.Appointment)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:       "partial_booking",
			Details:     msgRecoverHint,
			Appointment: &appt,
		})
	case errors.As(err, &resched):
		appt := toAppointmentResponse(resched.Cancelled)
		details := msgRescheduleGap
		if errors.Is(err, booking.ErrSlotAlreadyBooked) {
			details = msgSlotTaken
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:       "reschedule_incomplete",
			Details:     details,
			Appointment: &appt,
		})
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", msgSlotTaken)
	case errors.Is(err, booking.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "duplicate_slot", err.Error())
	case errors.Is(err, booking.ErrSlotInUse):
		writeError(w, http.StatusConflict, "slot_in_use", err.Error())
	case errors.Is(err, docstore.ErrVersionConflict):
		writeError(w, http.StatusConflict, "write_conflict", "the record changed while saving, please retry")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", msgTimeoutHint)
	default:
		loggerFrom(r).Error("unhandled service error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
