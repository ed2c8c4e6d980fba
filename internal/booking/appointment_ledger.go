package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/docstore"
)

// AppointmentLedger maintains the appointments array embedded in each
// patient document. Patients never contend with each other.
type AppointmentLedger struct {
	store  docstore.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewAppointmentLedger(store docstore.Store, logger *zap.Logger) *AppointmentLedger {
	return &AppointmentLedger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (l *AppointmentLedger) Patient(ctx context.Context, patientID string) (*Patient, error) {
	doc, err := readDocument(ctx, l.store, CollectionPatients, patientID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var p Patient
	if err := doc.Decode(&p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = patientID
	}
	return &p, nil
}

func (l *AppointmentLedger) CreatePatient(ctx context.Context, p Patient) error {
	if p.Appointments == nil {
		p.Appointments = []Appointment{}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	if _, err := l.store.Create(ctx, CollectionPatients, p.ID, body); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (l *AppointmentLedger) AllPatients(ctx context.Context) ([]Patient, error) {
	docs, err := queryDocuments(ctx, l.store, CollectionPatients)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}

	patients := make([]Patient, 0, len(docs))
	for _, doc := range docs {
		var p Patient
		if err := doc.Decode(&p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = doc.ID
		}
		patients = append(patients, p)
	}
	return patients, nil
}

// AddAppointment appends to the patient's list with the store's atomic
// append, so it needs no version check.
func (l *AppointmentLedger) AddAppointment(ctx context.Context, patientID string, appt Appointment) error {
	item, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}

	if _, err := l.store.Append(ctx, CollectionPatients, patientID, fieldAppointments, item); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("append appointment: %w", err)
	}
	return nil
}

// UpdateAppointmentStatus rewrites the status of the single entry matched by
// ref. It is a conditional write on the version it read, but it is not
// retried: a conflict surfaces as docstore.ErrVersionConflict.
func (l *AppointmentLedger) UpdateAppointmentStatus(ctx context.Context, patientID string, ref AppointmentRef, status AppointmentStatus) (*Appointment, error) {
	doc, err := readDocument(ctx, l.store, CollectionPatients, patientID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	at := l.now().UTC()
	var updated Appointment

	_, err = l.store.ConditionalUpdate(ctx, CollectionPatients, patientID, doc.Version, func(body json.RawMessage) (json.RawMessage, error) {
		var appts []Appointment
		if err := decodeField(body, fieldAppointments, &appts); err != nil {
			return nil, err
		}
		i := findAppointment(appts, ref)
		if i < 0 {
			return nil, ErrAppointmentNotFound
		}

		appts[i].Status = status
		if status == StatusCancelled {
			appts[i].CancelledAt = &at
		}
		updated = appts[i]
		return patchField(body, fieldAppointments, appts)
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	l.logger.Debug("appointment status updated",
		zap.String("patient_id", patientID),
		zap.String("appointment_id", updated.ID),
		zap.String("status", string(status)),
	)
	return &updated, nil
}

func (l *AppointmentLedger) GetAppointment(ctx context.Context, patientID, appointmentID string) (*Appointment, error) {
	if appointmentID == "" {
		return nil, ErrAppointmentNotFound
	}
	p, err := l.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	i := findAppointment(p.Appointments, AppointmentRef{ID: appointmentID})
	if i < 0 {
		return nil, ErrAppointmentNotFound
	}
	a := p.Appointments[i]
	return &a, nil
}

// FindActive returns the patient's confirmed appointment for the doctor and
// slot time, if any.
func (l *AppointmentLedger) FindActive(ctx context.Context, patientID, doctorID string, t Timestamp) (*Appointment, error) {
	p, err := l.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	for _, a := range p.Appointments {
		if a.Status == StatusConfirmed && a.DoctorID == doctorID && a.SlotTime.Equal(t) {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

// ListAppointments returns the patient's appointments newest slot first, ties
// broken by appointment id, with the display status computed against now.
func (l *AppointmentLedger) ListAppointments(ctx context.Context, patientID string) ([]AppointmentView, error) {
	p, err := l.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	views := make([]AppointmentView, 0, len(p.Appointments))
	for _, a := range p.Appointments {
		views = append(views, AppointmentView{
			Appointment:   a,
			DisplayStatus: a.DisplayStatusAt(now),
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		if c := views[i].SlotTime.Compare(views[j].SlotTime); c != 0 {
			return c > 0
		}
		return views[i].ID < views[j].ID
	})
	return views, nil
}

// findAppointment prefers an id match; legacy entries without an id are
// matched on doctor and exact slot time.
func findAppointment(appts []Appointment, ref AppointmentRef) int {
	if ref.ID != "" {
		for i := range appts {
			if appts[i].ID == ref.ID {
				return i
			}
		}
	}
	if ref.DoctorID == "" {
		return -1
	}
	for i := range appts {
		if appts[i].ID == "" && appts[i].DoctorID == ref.DoctorID && appts[i].SlotTime.Equal(ref.SlotTime) {
			return i
		}
	}
	return -1
}
