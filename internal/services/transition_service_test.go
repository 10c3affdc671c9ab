package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storage-backend/internal/auth"
	"storage-backend/internal/models"
	"storage-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprove_SplitsAcrossLocations(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 90)
	b := seedLocation(t, s, "Bay B", 50, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 40)

	svc := NewTransitionService(s, 0, 0)
	res, err := svc.Approve(context.Background(), admin, ApproveInput{
		RequestID:        req.ID,
		LocationIDs:      []int64{b.ID, a.ID},
		RequiredQuantity: 40,
		Notes:            "  rack near dock  ",
	})
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusApproved, res.Status)
	assert.Equal(t, []string{"Bay A", "Bay B"}, res.LocationNames)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, int64(10), res.Allocations[0].Quantity)
	assert.Equal(t, int64(30), res.Allocations[1].Quantity)

	locs := locationsByName(t, s)
	assert.Equal(t, int64(100), locs["Bay A"].Occupied)
	assert.Equal(t, int64(30), locs["Bay B"].Occupied)

	got := getRequest(t, s, req.ID)
	assert.Equal(t, models.RequestStatusApproved, got.Status)
	assert.Equal(t, []int64{b.ID, a.ID}, got.AssignedLocationIDs)
	require.NotNil(t, got.ApprovedQuantity)
	assert.Equal(t, int64(40), *got.ApprovedQuantity)
	require.NotNil(t, got.AdminNotes)
	assert.Equal(t, "rack near dock", *got.AdminNotes)
	require.NotNil(t, got.DecidedBy)
	assert.Equal(t, admin.UserID, *got.DecidedBy)
	assert.NotNil(t, got.ApprovedAt)

	trail := auditTrail(t, s, req.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditActionApprove, trail[0].Action)
	assert.Equal(t, admin.UserID, trail[0].ActorID)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(trail[0].Detail, &detail))
	assert.Equal(t, "pending", detail["previous_status"])
	assert.EqualValues(t, 40, detail["required_quantity"])

	entries := outboxEntries(t, s)
	require.Len(t, entries, 1)
	assert.Equal(t, models.NotificationRequestApproved, entries[0].Type)
	assert.False(t, entries[0].Processed)
	assert.Len(t, entries[0].DedupeKey, 36)

	p, err := models.DecodeNotification(entries[0].Payload)
	require.NoError(t, err)
	approved, ok := p.(models.RequestApprovedPayload)
	require.True(t, ok)
	assert.Equal(t, req.ReferenceCode, approved.ReferenceCode)
	assert.Equal(t, c.Phone, approved.Recipient.Phone)
	assert.Equal(t, []string{"Bay A", "Bay B"}, approved.LocationNames())
}

func TestApprove_ZeroShareLocationIsNotTouched(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 0)
	b := seedLocation(t, s, "Bay B", 100, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 20)

	res, err := NewTransitionService(s, 0, 0).Approve(context.Background(), admin, ApproveInput{
		RequestID: req.ID, LocationIDs: []int64{a.ID, b.ID}, RequiredQuantity: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bay A"}, res.LocationNames)

	locs := locationsByName(t, s)
	assert.Equal(t, int64(20), locs["Bay A"].Occupied)
	assert.Equal(t, int64(0), locs["Bay B"].Occupied)
	assert.Equal(t, []int64{a.ID, b.ID}, getRequest(t, s, req.ID).AssignedLocationIDs)
}

func TestApprove_CapacityExceededLeavesNoTrace(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 95)
	b := seedLocation(t, s, "Bay B", 10, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 20)

	_, err := NewTransitionService(s, 0, 0).Approve(context.Background(), admin, ApproveInput{
		RequestID: req.ID, LocationIDs: []int64{a.ID, b.ID}, RequiredQuantity: 20,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	var ce *CapacityExceededError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(20), ce.Required)
	assert.Equal(t, int64(15), ce.Available)
	assert.Equal(t, []string{"Bay A", "Bay B"}, ce.LocationNames)

	assert.Equal(t, models.RequestStatusPending, getRequest(t, s, req.ID).Status)
	locs := locationsByName(t, s)
	assert.Equal(t, int64(95), locs["Bay A"].Occupied)
	assert.Equal(t, int64(0), locs["Bay B"].Occupied)
	assert.Empty(t, auditTrail(t, s, req.ID))
	assert.Empty(t, outboxEntries(t, s))
}

func TestApprove_ExactFit(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 50, 30)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 20)

	_, err := NewTransitionService(s, 0, 0).Approve(context.Background(), admin, ApproveInput{
		RequestID: req.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), locationsByName(t, s)["Bay A"].Occupied)
}

func TestApprove_Errors(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 0)
	pending := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)
	approved := seedRequest(t, s, c.ID, models.RequestStatusApproved, 10)
	draft := seedRequest(t, s, c.ID, models.RequestStatusDraft, 10)

	svc := NewTransitionService(s, 0, 0)
	tests := []struct {
		name  string
		actor auth.Principal
		in    ApproveInput
		want  error
	}{
		{"employee may not approve", employee, ApproveInput{RequestID: pending.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 5}, ErrForbidden},
		{"customer may not approve", auth.Principal{UserID: 9, Role: auth.RoleCustomer, CustomerID: c.ID}, ApproveInput{RequestID: pending.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 5}, ErrForbidden},
		{"zero quantity", admin, ApproveInput{RequestID: pending.ID, LocationIDs: []int64{a.ID}}, ErrInvalidArgument},
		{"negative quantity", admin, ApproveInput{RequestID: pending.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: -1}, ErrInvalidArgument},
		{"no locations", admin, ApproveInput{RequestID: pending.ID, RequiredQuantity: 5}, ErrInvalidArgument},
		{"duplicate locations", admin, ApproveInput{RequestID: pending.ID, LocationIDs: []int64{a.ID, a.ID}, RequiredQuantity: 5}, ErrInvalidArgument},
		{"unknown request", admin, ApproveInput{RequestID: 9999, LocationIDs: []int64{a.ID}, RequiredQuantity: 5}, ErrNotFound},
		{"already approved", admin, ApproveInput{RequestID: approved.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 5}, ErrInvalidState},
		{"draft", admin, ApproveInput{RequestID: draft.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 5}, ErrInvalidState},
		{"unknown location", admin, ApproveInput{RequestID: pending.ID, LocationIDs: []int64{a.ID, 777}, RequiredQuantity: 5}, ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Approve(context.Background(), tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, int64(0), locationsByName(t, s)["Bay A"].Occupied)
	assert.Empty(t, outboxEntries(t, s))
}

func TestApprove_SecondCallIsRejected(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)
	svc := NewTransitionService(s, 0, 0)
	in := ApproveInput{RequestID: req.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 10}

	_, err := svc.Approve(context.Background(), admin, in)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), admin, in)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Reject(context.Background(), admin, RejectInput{RequestID: req.ID, Reason: "changed my mind entirely"})
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, int64(10), locationsByName(t, s)["Bay A"].Occupied)
	assert.Len(t, auditTrail(t, s, req.ID), 1)
	assert.Len(t, outboxEntries(t, s), 1)
}

func TestApprove_ConcurrentRequestsNeverOverfill(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 50, 0)
	r1 := seedRequest(t, s, c.ID, models.RequestStatusPending, 40)
	r2 := seedRequest(t, s, c.ID, models.RequestStatusPending, 40)
	svc := NewTransitionService(s, 0, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []*models.StorageRequest{r1, r2} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), admin, ApproveInput{RequestID: id, LocationIDs: []int64{a.ID}, RequiredQuantity: 40})
		}(i, r.ID)
	}
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCapacityExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exceeded)
	assert.Equal(t, int64(40), locationsByName(t, s)["Bay A"].Occupied)
	assert.Len(t, outboxEntries(t, s), 1)
}

func TestApprove_ConcurrentOnSameRequest(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 500, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)
	svc := NewTransitionService(s, 0, 0)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), admin, ApproveInput{RequestID: req.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 10})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(10), locationsByName(t, s)["Bay A"].Occupied)
	assert.Len(t, auditTrail(t, s, req.ID), 1)
}

func TestReject(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 25)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)

	res, err := NewTransitionService(s, 0, 0).Reject(context.Background(), admin, RejectInput{
		RequestID: req.ID,
		Reason:    "  No capacity for this season  ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, res.Status)
	assert.Equal(t, "No capacity for this season", res.Reason)

	got := getRequest(t, s, req.ID)
	assert.Equal(t, models.RequestStatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "No capacity for this season", *got.RejectionReason)
	assert.Nil(t, got.ApprovedQuantity)
	assert.Empty(t, got.AssignedLocationIDs)

	assert.Equal(t, int64(25), locationsByName(t, s)[a.Name].Occupied)

	trail := auditTrail(t, s, req.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditActionReject, trail[0].Action)

	entries := outboxEntries(t, s)
	require.Len(t, entries, 1)
	p, err := models.DecodeNotification(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "No capacity for this season", p.(models.RequestRejectedPayload).Reason)
}

func TestReject_Errors(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	pending := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)
	rejected := seedRequest(t, s, c.ID, models.RequestStatusRejected, 10)

	svc := NewTransitionService(s, 0, 0)
	tests := []struct {
		name  string
		actor auth.Principal
		in    RejectInput
		want  error
	}{
		{"employee", employee, RejectInput{RequestID: pending.ID, Reason: "long enough reason"}, ErrForbidden},
		{"empty reason", admin, RejectInput{RequestID: pending.ID, Reason: "   "}, ErrInvalidArgument},
		{"short reason", admin, RejectInput{RequestID: pending.ID, Reason: "too short"}, ErrInvalidArgument},
		{"missing request", admin, RejectInput{RequestID: 4242, Reason: "long enough reason"}, ErrNotFound},
		{"already rejected", admin, RejectInput{RequestID: rejected.ID, Reason: "long enough reason"}, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reject(context.Background(), tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, models.RequestStatusPending, getRequest(t, s, pending.ID).Status)
	assert.Empty(t, outboxEntries(t, s))
}

func TestTransition_TimeoutRollsBack(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := NewTransitionService(s, 0, 0).Approve(ctx, admin, ApproveInput{
		RequestID: req.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 10,
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "timeout", ErrorKind(err))
	assert.Equal(t, models.RequestStatusPending, getRequest(t, s, req.ID).Status)
	assert.Equal(t, int64(0), locationsByName(t, s)["Bay A"].Occupied)
}

// failingTx wraps a real transaction and fails the outbox insert.
type failingTx struct {
	store.TransitionTx
}

func (f failingTx) InsertOutboxEntry(ctx context.Context, e *models.OutboxEntry) error {
	return errors.New("disk full")
}

type failingStore struct {
	inner store.EntityStore
}

func (f failingStore) WithinTx(ctx context.Context, fn func(tx store.TransitionTx) error) error {
	return f.inner.WithinTx(ctx, func(tx store.TransitionTx) error {
		return fn(failingTx{tx})
	})
}

func TestApprove_LateFailureRollsBackEverything(t *testing.T) {
	s := newTestStore(t)
	c := seedCustomer(t, s)
	a := seedLocation(t, s, "Bay A", 100, 0)
	req := seedRequest(t, s, c.ID, models.RequestStatusPending, 10)

	_, err := NewTransitionService(failingStore{s}, 0, 0).Approve(context.Background(), admin, ApproveInput{
		RequestID: req.ID, LocationIDs: []int64{a.ID}, RequiredQuantity: 10,
	})
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, models.RequestStatusPending, getRequest(t, s, req.ID).Status)
	assert.Equal(t, int64(0), locationsByName(t, s)["Bay A"].Occupied)
	assert.Empty(t, auditTrail(t, s, req.ID))
}
