package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/carpoolbot/internal/models"
)

// seedTrip creates a trip with one car owned by alice.
func seedTrip(t *testing.T, svc *Service, seats int) {
	t.Helper()
	ctx := context.Background()
	_, _, err := svc.UpsertTrip(ctx, chatID, "Ski weekend", alice)
	require.NoError(t, err)
	_, err = svc.CreateCar(ctx, chatID, "", seats, alice)
	require.NoError(t, err)
}

func TestSubmitJoinRequest(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	req, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, req.CarID)
	assert.Equal(t, bob, req.UserID)
	assert.True(t, req.IsPending())

	require.Equal(t, 1, d.count(EventRequestCreated))
	last := d.events[len(d.events)-1]
	assert.Equal(t, alice, last.OwnerID)
	assert.Equal(t, bob, last.SubjectID)
}

func TestSubmitJoinRequestValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 2)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 99, bob)
	assert.ErrorIs(t, err, models.ErrCarNotFound)

	// The owner already has a seat in their own car.
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, alice)
	assert.ErrorIs(t, err, models.ErrAlreadyMember)

	// One pending request per user per trip.
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)

	// Approved members cannot ask again.
	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	assert.ErrorIs(t, err, models.ErrAlreadyMember)

	// Car is at capacity now (alice + bob in 2 seats).
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, carol)
	assert.ErrorIs(t, err, models.ErrCarFull)
}

func TestApproveRequest(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, []int64{bob}, statuses[0].Members)
	assert.Equal(t, 0, statuses[0].PendingCount)

	assert.Equal(t, 1, d.count(EventMemberJoined))
}

func TestApproveRequestOwnerOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)

	err = svc.ApproveRequest(ctx, chatID, 1, bob, carol)
	assert.ErrorIs(t, err, models.ErrNotOwner)

	// Not even the requester can approve themselves.
	err = svc.ApproveRequest(ctx, chatID, 1, bob, bob)
	assert.ErrorIs(t, err, models.ErrNotOwner)
}

func TestApproveRequestResolvedAndMissing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	err := svc.ApproveRequest(ctx, chatID, 1, bob, alice)
	assert.ErrorIs(t, err, models.ErrRequestNotFound)

	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	require.NoError(t, svc.DenyRequest(ctx, chatID, 1, bob, alice))

	// Second decision on the same request.
	err = svc.ApproveRequest(ctx, chatID, 1, bob, alice)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestApproveWhenFullDeniesAndCommits(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 2)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, carol)
	require.NoError(t, err)

	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))

	// The car filled up before carol's turn: the approval reports a full
	// car, and her request is denied rather than left dangling.
	err = svc.ApproveRequest(ctx, chatID, 1, carol, alice)
	assert.ErrorIs(t, err, models.ErrCarFull)
	assert.Equal(t, 1, d.count(EventRequestDenied))

	err = svc.ApproveRequest(ctx, chatID, 1, carol, alice)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	// The deny freed her to ask elsewhere.
	_, err = svc.CreateCar(ctx, chatID, "", 3, dave)
	require.NoError(t, err)
	_, err = svc.SubmitJoinRequest(ctx, chatID, 2, carol)
	require.NoError(t, err)
}

func TestConcurrentApprovalsLastSeat(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 2)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, carol)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = svc.ApproveRequest(ctx, chatID, 1, bob, alice)
	}()
	go func() {
		defer wg.Done()
		errs[1] = svc.ApproveRequest(ctx, chatID, 1, carol, alice)
	}()
	wg.Wait()

	full := 0
	for _, err := range errs {
		if errors.Is(err, models.ErrCarFull) {
			full++
		} else {
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 1, full, "exactly one approval must lose the last seat")
	assert.Equal(t, 1, d.count(EventMemberJoined))
	assert.Equal(t, 1, d.count(EventRequestDenied))

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].OccupiedSeats)
	assert.Equal(t, 0, statuses[0].PendingCount)
}

func TestDenyRequest(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)

	err = svc.DenyRequest(ctx, chatID, 1, bob, carol)
	assert.ErrorIs(t, err, models.ErrNotOwner)

	require.NoError(t, svc.DenyRequest(ctx, chatID, 1, bob, alice))
	assert.Equal(t, 1, d.count(EventRequestDenied))

	// Denied is final for that request, but bob may ask again.
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
}

func TestCancelRequest(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.CancelRequest(ctx, chatID, bob)
	assert.ErrorIs(t, err, models.ErrRequestNotFound)

	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)

	req, err := svc.CancelRequest(ctx, chatID, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, req.CarID)
	assert.Equal(t, 1, d.count(EventRequestCancelled))

	err = svc.ApproveRequest(ctx, chatID, 1, bob, alice)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestLeaveAsMember(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))

	require.NoError(t, svc.Leave(ctx, chatID, bob))
	assert.Equal(t, 1, d.count(EventMemberLeft))

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, statuses[0].Members)
	assert.Equal(t, 1, statuses[0].OccupiedSeats)
}

func TestLeaveAsOwnerDeletesCar(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))

	require.NoError(t, svc.Leave(ctx, chatID, alice))
	assert.Equal(t, 1, d.count(EventCarDeleted))

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestLeaveWithoutSeat(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	err := svc.Leave(ctx, chatID, bob)
	assert.ErrorIs(t, err, models.ErrNotAMember)

	// A pending request is not a seat.
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	err = svc.Leave(ctx, chatID, bob)
	assert.ErrorIs(t, err, models.ErrNotAMember)
}

func TestBoot(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))

	require.NoError(t, svc.Boot(ctx, chatID, bob, alice))
	assert.Equal(t, 1, d.count(EventMemberBooted))

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, statuses[0].Members)

	// The seat is free and bob may ask again.
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
}

func TestBootValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.SubmitJoinRequest(ctx, chatID, 1, bob)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveRequest(ctx, chatID, 1, bob, alice))

	err = svc.Boot(ctx, chatID, alice, alice)
	assert.ErrorIs(t, err, models.ErrCannotBootSelf)

	// Only drivers boot, and only from their own car.
	err = svc.Boot(ctx, chatID, bob, carol)
	assert.ErrorIs(t, err, models.ErrNotOwner)

	err = svc.Boot(ctx, chatID, carol, alice)
	assert.ErrorIs(t, err, models.ErrNotAMember)
}

func TestAddMembers(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	res, err := svc.AddMembers(ctx, chatID, []int64{bob, carol, alice}, alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{bob, carol}, res.Added)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 1, res.Car.ID)

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 3, statuses[0].OccupiedSeats)

	assert.Equal(t, 2, d.count(EventMemberAdded))
}

func TestAddMembersOwnerOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	_, err := svc.AddMembers(ctx, chatID, []int64{carol}, bob)
	assert.ErrorIs(t, err, models.ErrNotOwner)
}

func TestAddMembersSkipsSeatedUsers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	// Bob drives his own car, so he keeps that seat.
	_, err := svc.CreateCar(ctx, chatID, "", 3, bob)
	require.NoError(t, err)

	res, err := svc.AddMembers(ctx, chatID, []int64{bob, carol}, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{carol}, res.Added)
	assert.Equal(t, []int64{bob}, res.Skipped)
}

func TestAddMembersCarFull(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	seedTrip(t, svc, 2)

	// One free seat, two people to add. Nothing is committed.
	_, err := svc.AddMembers(ctx, chatID, []int64{bob, carol}, alice)
	assert.ErrorIs(t, err, models.ErrCarFull)

	statuses, err := svc.ListCars(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 1, statuses[0].OccupiedSeats)
	assert.Equal(t, 0, d.count(EventMemberAdded))
}

func TestAddMembersResolvesPendingRequests(t *testing.T) {
	svc, store, _ := newTestServiceStore()
	ctx := context.Background()
	seedTrip(t, svc, 4)
	_, err := svc.CreateCar(ctx, chatID, "", 3, bob)
	require.NoError(t, err)

	// Carol asked for alice's car but ends up seated by bob; her request
	// is withdrawn. Dave asked for alice's car and gets exactly that seat.
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, carol)
	require.NoError(t, err)
	_, err = svc.SubmitJoinRequest(ctx, chatID, 1, dave)
	require.NoError(t, err)

	res, err := svc.AddMembers(ctx, chatID, []int64{carol}, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{carol}, res.Added)

	res, err = svc.AddMembers(ctx, chatID, []int64{dave}, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{dave}, res.Added)

	carolReq, err := store.Repos().Requests.GetLatest(ctx, 1, 1, carol)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, carolReq.Status)

	daveReq, err := store.Repos().Requests.GetLatest(ctx, 1, 1, dave)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, daveReq.Status)

	pending, err := store.Repos().Requests.GetPendingByUser(ctx, 1, carol)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestDeleteMissingMembershipIsTyped(t *testing.T) {
	svc, store, _ := newTestServiceStore()
	ctx := context.Background()
	seedTrip(t, svc, 4)

	err := store.Repos().Members.Delete(ctx, 1, 1, bob)
	assert.ErrorIs(t, err, models.ErrNotAMember)
}
