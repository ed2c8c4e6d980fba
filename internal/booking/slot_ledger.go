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

// maxSlotWriteAttempts is the first write plus one retry after a version
// conflict. The retry re-reads and re-validates, so it never double-books.
const maxSlotWriteAttempts = 2

// errUnchanged lets a mutation report that the stored sequence already has
// the requested state; no write is issued.
var errUnchanged = errors.New("slots unchanged")

// SlotLedger owns the Slots sequence of each doctor document. Every mutation
// rewrites the whole sequence through a version-checked update.
type SlotLedger struct {
	store  docstore.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewSlotLedger(store docstore.Store, logger *zap.Logger) *SlotLedger {
	return &SlotLedger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (l *SlotLedger) Doctor(ctx context.Context, doctorID string) (*Doctor, error) {
	doc, err := readDocument(ctx, l.store, CollectionDoctors, doctorID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var d Doctor
	if err := doc.Decode(&d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = doctorID
	}
	return &d, nil
}

// CreateDoctor registers a doctor record. Slot times must be unique.
func (l *SlotLedger) CreateDoctor(ctx context.Context, d Doctor) error {
	for i := range d.Slots {
		if findSlot(d.Slots[:i], d.Slots[i].Time) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateSlot, d.Slots[i].Time)
		}
	}
	if d.Slots == nil {
		d.Slots = []Slot{}
	}
	sortSlots(d.Slots)

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode doctor: %w", err)
	}
	if _, err := l.store.Create(ctx, CollectionDoctors, d.ID, body); err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (l *SlotLedger) AllDoctors(ctx context.Context) ([]Doctor, error) {
	docs, err := queryDocuments(ctx, l.store, CollectionDoctors)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}

	doctors := make([]Doctor, 0, len(docs))
	for _, doc := range docs {
		var d Doctor
		if err := doc.Decode(&d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			d.ID = doc.ID
		}
		doctors = append(doctors, d)
	}
	return doctors, nil
}

// ListFreeSlots returns unbooked slots ordered by time.
func (l *SlotLedger) ListFreeSlots(ctx context.Context, doctorID string) ([]Slot, error) {
	return l.filterSlots(ctx, doctorID, false)
}

// BookedSlots is the doctor-side view: booked slots ordered by time.
func (l *SlotLedger) BookedSlots(ctx context.Context, doctorID string) ([]Slot, error) {
	return l.filterSlots(ctx, doctorID, true)
}

func (l *SlotLedger) filterSlots(ctx context.Context, doctorID string, booked bool) ([]Slot, error) {
	d, err := l.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	result := make([]Slot, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s.IsBooked == booked {
			result = append(result, s)
		}
	}
	sortSlots(result)
	return result, nil
}

func (l *SlotLedger) FindSlot(ctx context.Context, doctorID string, t Timestamp) (*Slot, error) {
	d, err := l.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	i := findSlot(d.Slots, t)
	if i < 0 {
		return nil, ErrSlotNotFound
	}
	s := d.Slots[i]
	return &s, nil
}

// MarkBooked claims the slot at t. It fails with ErrSlotAlreadyBooked when
// the slot is booked in the version being replaced, which is what makes the
// check hold under concurrent writers.
func (l *SlotLedger) MarkBooked(ctx context.Context, doctorID string, t Timestamp, patientID, patientContact, appointmentID string) (*Slot, error) {
	at := l.now().UTC()
	var booked Slot

	err := l.mutate(ctx, doctorID, func(slots []Slot) error {
		i := findSlot(slots, t)
		if i < 0 {
			return ErrSlotNotFound
		}
		if slots[i].IsBooked {
			return ErrSlotAlreadyBooked
		}
		slots[i].book(patientID, patientContact, appointmentID, at)
		booked = slots[i]
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("slot marked booked",
		zap.String("doctor_id", doctorID),
		zap.Stringer("slot_time", t),
		zap.String("patient_id", patientID),
		zap.String("appointment_id", appointmentID),
	)
	return &booked, nil
}

// MarkFree clears the slot at t. Freeing a free slot is a no-op.
func (l *SlotLedger) MarkFree(ctx context.Context, doctorID string, t Timestamp) (*Slot, error) {
	return l.Release(ctx, doctorID, t, "")
}

// Release is MarkFree guarded by the holder: when appointmentID is set and
// the slot carries a different appointment id, it fails with
// ErrSlotHeldByOther instead of freeing someone else's booking.
func (l *SlotLedger) Release(ctx context.Context, doctorID string, t Timestamp, appointmentID string) (*Slot, error) {
	var freed Slot

	err := l.mutate(ctx, doctorID, func(slots []Slot) error {
		i := findSlot(slots, t)
		if i < 0 {
			return ErrSlotNotFound
		}
		if !slots[i].IsBooked {
			freed = slots[i]
			return errUnchanged
		}
		holder := slots[i].AppointmentID
		if appointmentID != "" && holder != "" && holder != appointmentID {
			return fmt.Errorf("%w: held by %s", ErrSlotHeldByOther, holder)
		}
		slots[i].clear()
		freed = slots[i]
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("slot freed",
		zap.String("doctor_id", doctorID),
		zap.Stringer("slot_time", t),
	)
	return &freed, nil
}

// AddSlot adds a free slot, creating the doctor record with placeholder
// profile fields when it does not exist yet.
func (l *SlotLedger) AddSlot(ctx context.Context, doctorID string, t Timestamp) (*Slot, error) {
	slot := Slot{Time: t}

	err := l.mutate(ctx, doctorID, func(slots []Slot) error {
		if findSlot(slots, t) >= 0 {
			return ErrDuplicateSlot
		}
		return nil
	}, func(slots []Slot) []Slot {
		slots = append(slots, slot)
		sortSlots(slots)
		return slots
	})
	if errors.Is(err, ErrDoctorNotFound) {
		err = l.CreateDoctor(ctx, Doctor{
			ID:        doctorID,
			Name:      "Doctor",
			Specialty: "General",
			Slots:     []Slot{slot},
		})
		if errors.Is(err, docstore.ErrAlreadyExists) {
			// Lost a race with another first slot; add to the winner's record.
			return l.AddSlot(ctx, doctorID, t)
		}
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// RemoveSlot deletes a free slot. Booked slots stay until cancelled.
func (l *SlotLedger) RemoveSlot(ctx context.Context, doctorID string, t Timestamp) error {
	return l.mutate(ctx, doctorID, func(slots []Slot) error {
		i := findSlot(slots, t)
		if i < 0 {
			return ErrSlotNotFound
		}
		if slots[i].IsBooked {
			return ErrSlotInUse
		}
		return nil
	}, func(slots []Slot) []Slot {
		i := findSlot(slots, t)
		return append(slots[:i], slots[i+1:]...)
	})
}

// mutate is the read-transform-write cycle shared by every slot write.
// check edits slots in place (or rejects); the optional reshape may return a
// resized sequence. A version conflict gets exactly one fresh attempt.
func (l *SlotLedger) mutate(ctx context.Context, doctorID string, check func(slots []Slot) error, reshape ...func(slots []Slot) []Slot) error {
	for attempt := 1; ; attempt++ {
		doc, err := readDocument(ctx, l.store, CollectionDoctors, doctorID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrDoctorNotFound
			}
			return fmt.Errorf("load doctor: %w", err)
		}

		_, err = l.store.ConditionalUpdate(ctx, CollectionDoctors, doctorID, doc.Version, func(body json.RawMessage) (json.RawMessage, error) {
			var slots []Slot
			if err := decodeField(body, fieldSlots, &slots); err != nil {
				return nil, err
			}
			if err := check(slots); err != nil {
				return nil, err
			}
			for _, fn := range reshape {
				slots = fn(slots)
			}
			return patchField(body, fieldSlots, slots)
		})

		switch {
		case err == nil, errors.Is(err, errUnchanged):
			return nil
		case errors.Is(err, docstore.ErrVersionConflict) && attempt < maxSlotWriteAttempts:
			l.logger.Debug("slot write lost version race, retrying",
				zap.String("doctor_id", doctorID),
				zap.Int64("version", doc.Version),
			)
			continue
		case errors.Is(err, docstore.ErrNotFound):
			return ErrDoctorNotFound
		}
		return err
	}
}

func sortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Time.Compare(slots[j].Time) < 0
	})
}
