package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type DriftKind string

const (
	// DriftOrphanedSlot: a booked slot with no confirmed appointment behind it.
	DriftOrphanedSlot DriftKind = "orphaned_slot"
	// DriftDanglingAppointment: a confirmed appointment whose slot is not
	// held for it.
	DriftDanglingAppointment DriftKind = "dangling_appointment"
)

type Drift struct {
	Kind          DriftKind
	DoctorID      string
	PatientID     string
	AppointmentID string
	SlotTime      Timestamp
	Repaired      bool
}

type ReconcileReport struct {
	DoctorsScanned  int
	PatientsScanned int
	Drifts          []Drift
}

func (r *ReconcileReport) Repaired() int {
	n := 0
	for _, d := range r.Drifts {
		if d.Repaired {
			n++
		}
	}
	return n
}

type slotKey struct {
	doctorID string
	time     Timestamp
}

type heldAppointment struct {
	patientID string
	appt      Appointment
}

// Reconcile compares both ledgers. Orphaned slots booked longer ago than
// grace are released, the same choice Cancel makes in favour of
// availability; the grace period keeps in-flight bookings (slot claimed,
// record not yet written) from being released. Dangling appointments are
// only reported.
func (s *Service) Reconcile(ctx context.Context, grace time.Duration) (*ReconcileReport, error) {
	doctors, err := s.slots.AllDoctors(ctx)
	if err != nil {
		return nil, err
	}
	patients, err := s.appointments.AllPatients(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		DoctorsScanned:  len(doctors),
		PatientsScanned: len(patients),
	}

	confirmed := make(map[slotKey][]heldAppointment)
	for _, p := range patients {
		for _, a := range p.Appointments {
			if a.Status != StatusConfirmed {
				continue
			}
			k := slotKey{doctorID: a.DoctorID, time: a.SlotTime}
			confirmed[k] = append(confirmed[k], heldAppointment{patientID: p.ID, appt: a})
		}
	}

	slots := make(map[slotKey]Slot)
	cutoff := s.now().Add(-grace)

	for _, d := range doctors {
		for _, slot := range d.Slots {
			k := slotKey{doctorID: d.ID, time: slot.Time}
			slots[k] = slot
			if !slot.IsBooked || backsSlot(slot, confirmed[k]) {
				continue
			}

			drift := Drift{
				Kind:          DriftOrphanedSlot,
				DoctorID:      d.ID,
				PatientID:     slot.PatientID,
				AppointmentID: slot.AppointmentID,
				SlotTime:      slot.Time,
			}
			if slot.BookedAt != nil && slot.BookedAt.Before(cutoff) {
				_, err := s.slots.Release(ctx, d.ID, slot.Time, slot.AppointmentID)
				switch {
				case err == nil:
					drift.Repaired = true
				case errors.Is(err, ErrSlotHeldByOther), errors.Is(err, ErrSlotNotFound):
					// Rebooked or removed since the scan.
				default:
					return report, fmt.Errorf("release orphaned slot: %w", err)
				}
			}
			report.Drifts = append(report.Drifts, drift)
		}
	}

	for k, held := range confirmed {
		slot, ok := slots[k]
		for _, h := range held {
			if ok && slot.IsBooked && holds(slot, h) {
				continue
			}
			report.Drifts = append(report.Drifts, Drift{
				Kind:          DriftDanglingAppointment,
				DoctorID:      k.doctorID,
				PatientID:     h.patientID,
				AppointmentID: h.appt.ID,
				SlotTime:      k.time,
			})
		}
	}

	for _, d := range report.Drifts {
		s.logger.Warn("ledger drift",
			zap.String("kind", string(d.Kind)),
			zap.String("doctor_id", d.DoctorID),
			zap.String("patient_id", d.PatientID),
			zap.String("appointment_id", d.AppointmentID),
			zap.Stringer("slot_time", d.SlotTime),
			zap.Bool("repaired", d.Repaired),
		)
	}
	return report, nil
}

func backsSlot(slot Slot, held []heldAppointment) bool {
	for _, h := range held {
		if holds(slot, h) {
			return true
		}
	}
	return false
}

// holds reports whether the slot's booking fields point at h. Slots booked
// before appointment ids existed are matched on patient alone.
func holds(slot Slot, h heldAppointment) bool {
	if slot.PatientID != h.patientID {
		return false
	}
	if slot.AppointmentID == "" || h.appt.ID == "" {
		return true
	}
	return slot.AppointmentID == h.appt.ID
}
