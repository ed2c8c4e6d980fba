package booking

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Rawan10101/Carevo/internal/docstore"
)

var (
	nineAM   = NewTimestamp(time.Date(2025, 11, 16, 9, 0, 0, 0, time.UTC))
	tenAM    = NewTimestamp(time.Date(2025, 11, 16, 10, 0, 0, 0, time.UTC))
	elevenAM = NewTimestamp(time.Date(2025, 11, 16, 11, 0, 0, 0, time.UTC))

	// Before every fixture slot, so they all display as upcoming.
	fixedNow = time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
)

// faultStore wraps a Store and lets tests inject failures or interleave a
// competing write just before a conditional update lands.
type faultStore struct {
	docstore.Store

	mu          sync.Mutex
	appendErr   error
	getErrs     []error
	beforeWrite func(ctx context.Context, collection, id string)
}

func (f *faultStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	f.mu.Lock()
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()
	return f.Store.Get(ctx, collection, id)
}

func (f *faultStore) Append(ctx context.Context, collection, id, field string, item json.RawMessage) (*docstore.Document, error) {
	f.mu.Lock()
	err := f.appendErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Append(ctx, collection, id, field, item)
}

func (f *faultStore) ConditionalUpdate(ctx context.Context, collection, id string, expected int64, transform docstore.TransformFunc) (*docstore.Document, error) {
	f.mu.Lock()
	hook := f.beforeWrite
	f.beforeWrite = nil
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, collection, id)
	}
	return f.Store.ConditionalUpdate(ctx, collection, id, expected, transform)
}

type fixture struct {
	store *faultStore
	mem   *docstore.MemoryStore
	svc   *Service
	ids   []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := docstore.NewMemoryStore()
	fs := &faultStore{Store: mem}
	logger := zaptest.NewLogger(t)

	slots := NewSlotLedger(fs, logger)
	appts := NewAppointmentLedger(fs, logger)
	clock := func() time.Time { return fixedNow }
	slots.now = clock
	appts.now = clock

	f := &fixture{store: fs, mem: mem}
	svc := NewService(slots, appts, logger)
	svc.now = clock
	svc.newID = func() string {
		id := "a" + string(rune('1'+len(f.ids)))
		f.ids = append(f.ids, id)
		return id
	}
	f.svc = svc

	ctx := context.Background()
	require.NoError(t, slots.CreateDoctor(ctx, Doctor{
		ID:        "doc1",
		Name:      "Dr. Sara Mohamed",
		Specialty: "Cardiology",
		Slots: []Slot{
			{Time: tenAM},
			{Time: nineAM},
			{Time: elevenAM},
		},
	}))
	for _, p := range []Patient{
		{ID: "p1", Name: "Patient One", Email: "p1@example.com"},
		{ID: "p2", Name: "Patient Two", Email: "p2@example.com"},
	} {
		require.NoError(t, appts.CreatePatient(ctx, p))
	}
	return f
}

func (f *fixture) version(t *testing.T, collection, id string) int64 {
	t.Helper()
	doc, err := f.mem.Get(context.Background(), collection, id)
	require.NoError(t, err)
	return doc.Version
}

func (f *fixture) slot(t *testing.T, doctorID string, ts Timestamp) Slot {
	t.Helper()
	s, err := f.svc.Slots().FindSlot(context.Background(), doctorID, ts)
	require.NoError(t, err)
	return *s
}

func bookReq(patientID string, ts Timestamp) BookingRequest {
	return BookingRequest{
		PatientID: patientID,
		DoctorID:  "doc1",
		SlotTime:  ts,
		Clinic:    ClinicContext{ID: "c1", Name: "Cardiology Clinic"},
	}
}
