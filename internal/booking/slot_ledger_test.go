package booking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Rawan10101/Carevo/internal/docstore"
)

func TestListFreeSlotsOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Slots().MarkBooked(ctx, "doc1", tenAM, "p1", "p1@example.com", "x")
	require.NoError(t, err)

	free, err := f.svc.ListFreeSlots(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, free, 2)
	assert.True(t, free[0].Time.Equal(nineAM))
	assert.True(t, free[1].Time.Equal(elevenAM))

	booked, err := f.svc.Slots().BookedSlots(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, "p1", booked[0].PatientID)

	_, err = f.svc.ListFreeSlots(ctx, "nobody")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestFindSlotExactMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.Slots().FindSlot(ctx, "doc1", nineAM)
	require.NoError(t, err)
	assert.False(t, s.IsBooked)

	off := Timestamp{Seconds: nineAM.Seconds, Nanoseconds: 1}
	_, err = f.svc.Slots().FindSlot(ctx, "doc1", off)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestMarkBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	slot, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p1", "p1@example.com", "a1")
	require.NoError(t, err)
	assert.True(t, slot.IsBooked)
	assert.Equal(t, "p1", slot.PatientID)
	assert.Equal(t, "p1@example.com", slot.PatientContact)
	assert.Equal(t, "a1", slot.AppointmentID)
	require.NotNil(t, slot.BookedAt)
	assert.True(t, slot.BookedAt.Equal(fixedNow))

	stored := f.slot(t, "doc1", nineAM)
	assert.True(t, stored.IsBooked)
	assert.Equal(t, "a1", stored.AppointmentID)

	_, err = ledger.MarkBooked(ctx, "doc1", nineAM, "p2", "", "a2")
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.Equal(t, "p1", f.slot(t, "doc1", nineAM).PatientID)

	_, err = ledger.MarkBooked(ctx, "doc1", NewTimestamp(time.Unix(1, 0)), "p2", "", "a2")
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = ledger.MarkBooked(ctx, "ghost", nineAM, "p2", "", "a2")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestMarkFreeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	_, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p1", "p1@example.com", "a1")
	require.NoError(t, err)

	slot, err := ledger.MarkFree(ctx, "doc1", nineAM)
	require.NoError(t, err)
	assert.Equal(t, Slot{Time: nineAM}, *slot)

	v := f.version(t, CollectionDoctors, "doc1")
	_, err = ledger.MarkFree(ctx, "doc1", nineAM)
	require.NoError(t, err)
	assert.Equal(t, v, f.version(t, CollectionDoctors, "doc1"), "freeing a free slot must not write")
}

func TestReleaseRefusesOtherHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	_, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p2", "", "a2")
	require.NoError(t, err)

	_, err = ledger.Release(ctx, "doc1", nineAM, "a1")
	assert.ErrorIs(t, err, ErrSlotHeldByOther)
	assert.True(t, f.slot(t, "doc1", nineAM).IsBooked)

	_, err = ledger.Release(ctx, "doc1", nineAM, "a2")
	require.NoError(t, err)
	assert.False(t, f.slot(t, "doc1", nineAM).IsBooked)
}

func TestSlotWritesKeepUnknownFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mem.Create(ctx, CollectionDoctors, "doc2", json.RawMessage(
		`{"id":"doc2","name":"Dr. Ali","specialty":"ENT","rating":4.8,`+
			`"Slots":[{"time":{"seconds":1763283600,"nanoseconds":0},"isBooked":false,"room":"B2"}]}`))
	require.NoError(t, err)

	_, err = f.svc.Slots().MarkBooked(ctx, "doc2", nineAM, "p1", "", "a1")
	require.NoError(t, err)

	doc, err := f.mem.Get(ctx, CollectionDoctors, "doc2")
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc.Body, &fields))
	assert.JSONEq(t, `4.8`, string(fields["rating"]))
	assert.JSONEq(t, `"ENT"`, string(fields["specialty"]))
}

func TestAddSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	eight := NewTimestamp(time.Date(2025, 11, 16, 8, 0, 0, 0, time.UTC))
	_, err := ledger.AddSlot(ctx, "doc1", eight)
	require.NoError(t, err)

	free, err := ledger.ListFreeSlots(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, free, 4)
	assert.True(t, free[0].Time.Equal(eight))

	_, err = ledger.AddSlot(ctx, "doc1", eight)
	assert.ErrorIs(t, err, ErrDuplicateSlot)

	_, err = ledger.AddSlot(ctx, "doc9", eight)
	require.NoError(t, err)
	d, err := ledger.Doctor(ctx, "doc9")
	require.NoError(t, err)
	assert.Equal(t, "doc9", d.ID)
	require.Len(t, d.Slots, 1)
	assert.True(t, d.Slots[0].Time.Equal(eight))
}

func TestCreateDoctorRejectsDuplicateTimes(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Slots().CreateDoctor(context.Background(), Doctor{
		ID:    "doc3",
		Slots: []Slot{{Time: nineAM}, {Time: nineAM}},
	})
	assert.ErrorIs(t, err, ErrDuplicateSlot)
}

func TestRemoveSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	_, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p1", "", "a1")
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.RemoveSlot(ctx, "doc1", nineAM), ErrSlotInUse)
	assert.ErrorIs(t, ledger.RemoveSlot(ctx, "doc1", NewTimestamp(time.Unix(5, 0))), ErrSlotNotFound)

	require.NoError(t, ledger.RemoveSlot(ctx, "doc1", tenAM))
	_, err = ledger.FindSlot(ctx, "doc1", tenAM)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	d, err := ledger.Doctor(ctx, "doc1")
	require.NoError(t, err)
	assert.Len(t, d.Slots, 2)
}

func TestMarkBookedRetriesOnceAfterUnrelatedWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	// Another writer books eleven o'clock between our read and our write.
	f.store.beforeWrite = func(ctx context.Context, _, _ string) {
		_, err := NewSlotLedger(f.mem, ledger.logger).MarkBooked(ctx, "doc1", elevenAM, "p2", "", "a9")
		require.NoError(t, err)
	}

	_, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p1", "", "a1")
	require.NoError(t, err)

	assert.Equal(t, "p1", f.slot(t, "doc1", nineAM).PatientID)
	assert.Equal(t, "p2", f.slot(t, "doc1", elevenAM).PatientID, "the concurrent booking must survive")
}

func TestMarkBookedRetryRevalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.svc.Slots()

	f.store.beforeWrite = func(ctx context.Context, _, _ string) {
		_, err := NewSlotLedger(f.mem, ledger.logger).MarkBooked(ctx, "doc1", nineAM, "p2", "", "a9")
		require.NoError(t, err)
	}

	_, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p1", "", "a1")
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.Equal(t, "p2", f.slot(t, "doc1", nineAM).PatientID)
}

func TestSlotWriteGivesUpAfterSecondConflict(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	ledger := NewSlotLedger(&alwaysConflict{Store: mem}, zaptest.NewLogger(t))

	require.NoError(t, ledger.CreateDoctor(ctx, Doctor{ID: "doc1", Slots: []Slot{{Time: nineAM}}}))

	_, err := ledger.MarkBooked(ctx, "doc1", nineAM, "p1", "", "a1")
	assert.ErrorIs(t, err, docstore.ErrVersionConflict)

	conflicts := ledger.store.(*alwaysConflict)
	assert.Equal(t, maxSlotWriteAttempts, conflicts.calls)
}

// alwaysConflict rejects every conditional update.
type alwaysConflict struct {
	docstore.Store
	calls int
}

func (a *alwaysConflict) ConditionalUpdate(context.Context, string, string, int64, docstore.TransformFunc) (*docstore.Document, error) {
	a.calls++
	return nil, docstore.ErrVersionConflict
}
