package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverAfterPartialBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.appendErr = errors.New("timeout")
	_, err := f.svc.Book(ctx, bookReq("p1", nineAM))
	require.ErrorIs(t, err, ErrPartialBooking)
	f.store.appendErr = nil

	recovered, err := f.svc.RecoverBooking(ctx, bookReq("p1", nineAM))
	require.NoError(t, err)
	assert.Equal(t, "a1", recovered.ID, "the record takes the id the slot carries")
	assert.Equal(t, StatusConfirmed, recovered.Status)
	assert.True(t, recovered.CreatedAt.Equal(fixedNow))

	again, err := f.svc.RecoverBooking(ctx, bookReq("p1", nineAM))
	require.NoError(t, err)
	assert.Equal(t, recovered.ID, again.ID)

	views, err := f.svc.ListAppointments(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestRecoverAfterSuccessfulBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booked, err := f.svc.Book(ctx, bookReq("p1", nineAM))
	require.NoError(t, err)

	recovered, err := f.svc.RecoverBooking(ctx, bookReq("p1", nineAM))
	require.NoError(t, err)
	assert.Equal(t, booked.ID, recovered.ID)
	assert.Len(t, f.ids, 1, "no new appointment id is minted")
}

func TestRecoverBooksFreeSlot(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.RecoverBooking(context.Background(), bookReq("p1", tenAM))
	require.NoError(t, err)
	assert.Equal(t, "p1", f.slot(t, "doc1", tenAM).PatientID)
	assert.Equal(t, a.ID, f.slot(t, "doc1", tenAM).AppointmentID)
}

func TestRecoverDoesNotTakeOthersSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, bookReq("p2", nineAM))
	require.NoError(t, err)

	_, err = f.svc.RecoverBooking(ctx, bookReq("p1", nineAM))
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
}

func TestRecoverRefusesStaleHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, bookReq("p1", nineAM))
	require.NoError(t, err)
	// Record cancelled while the slot release never happened.
	_, err = f.svc.Appointments().UpdateAppointmentStatus(ctx, "p1", a.Ref(), StatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.RecoverBooking(ctx, bookReq("p1", nineAM))
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
}

func TestRecoverValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecoverBooking(context.Background(), BookingRequest{PatientID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.RecoverBooking(context.Background(), bookReq("ghost", nineAM))
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
