package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsethread/internal/adapter/memstore"
	"pulsethread/internal/domain"
	"pulsethread/internal/metrics"
)

type fixture struct {
	store     *memstore.Store
	requests  *Requests
	donations *Donations
}

func newFixture(t *testing.T, mode AcceptMode) fixture {
	t.Helper()
	store := memstore.New()
	reqs := NewRequests(store.Requests(), store.Donations(), zerolog.Nop(), metrics.New())
	return fixture{
		store:     store,
		requests:  reqs,
		donations: NewDonations(store.Donations(), reqs, mode, zerolog.Nop(), nil),
	}
}

func validInput(requester string, units int) domain.NewRequestInput {
	return domain.NewRequestInput{
		RequesterID:   requester,
		BloodType:     "o-",
		ComponentType: "platelets",
		UnitsNeeded:   units,
		Urgency:       "critical",
		HospitalLabel: " Dhaka Medical College ",
		Location:      &domain.Point{Lat: 23.7256, Lng: 90.3976},
		Note:          "  ",
	}
}

func (f fixture) createRequest(t *testing.T, requester string, units int) *domain.Request {
	t.Helper()
	req, err := f.requests.CreateRequest(context.Background(), validInput(requester, units))
	require.NoError(t, err)
	return req
}

func TestCreateRequest(t *testing.T) {
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 2)

	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, domain.BloodTypeONeg, req.BloodType)
	assert.Equal(t, domain.ComponentPlatelets, req.ComponentType)
	assert.Equal(t, domain.UrgencyCritical, req.Urgency)
	assert.Equal(t, "Dhaka Medical College", req.HospitalLabel)
	assert.Equal(t, "POINT(90.3976 23.7256)", req.Location)
	assert.Nil(t, req.Note, "blank note is stored as absent")

	stored, err := f.requests.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, stored.ID)
}

func TestCreateRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.NewRequestInput)
	}{
		{"missing blood type", func(in *domain.NewRequestInput) { in.BloodType = "" }},
		{"unknown blood type", func(in *domain.NewRequestInput) { in.BloodType = "C+" }},
		{"zero units", func(in *domain.NewRequestInput) { in.UnitsNeeded = 0 }},
		{"missing hospital", func(in *domain.NewRequestInput) { in.HospitalLabel = "  " }},
		{"missing point", func(in *domain.NewRequestInput) { in.Location = nil }},
		{"out of range point", func(in *domain.NewRequestInput) { in.Location = &domain.Point{Lat: 91, Lng: 0} }},
		{"unknown component", func(in *domain.NewRequestInput) { in.ComponentType = "serum" }},
		{"unknown urgency", func(in *domain.NewRequestInput) { in.Urgency = "whenever" }},
		{"missing requester", func(in *domain.NewRequestInput) { in.RequesterID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, AcceptAtomic)
			in := validInput("owner", 1)
			tt.mutate(&in)
			_, err := f.requests.CreateRequest(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCancelRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 1)

	_, err := f.requests.CancelRequest(ctx, req.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	cancelled, err := f.requests.CancelRequest(ctx, req.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, cancelled.Status)

	_, err = f.requests.CancelRequest(ctx, req.ID, "owner")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.requests.CancelRequest(ctx, "missing", "owner")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkAcceptedAndFulfilledAreIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 1)

	require.NoError(t, f.requests.MarkAccepted(ctx, req.ID))
	require.NoError(t, f.requests.MarkAccepted(ctx, req.ID))
	got, _ := f.requests.GetRequest(ctx, req.ID)
	assert.Equal(t, domain.RequestAccepted, got.Status)

	changed, err := f.requests.MarkFulfilled(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.requests.MarkFulfilled(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// a terminal request never reopens
	require.NoError(t, f.requests.MarkAccepted(ctx, req.ID))
	got, _ = f.requests.GetRequest(ctx, req.ID)
	assert.Equal(t, domain.RequestFulfilled, got.Status)
}

func TestAcceptRequest(t *testing.T) {
	for _, mode := range []AcceptMode{AcceptAtomic, AcceptRelaxed} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode)
			req := f.createRequest(t, "owner", 1)

			_, err := f.donations.AcceptRequest(ctx, req.ID, "owner")
			assert.ErrorIs(t, err, domain.ErrAuthorization)

			d, err := f.donations.AcceptRequest(ctx, req.ID, "donor-1")
			require.NoError(t, err)
			assert.Equal(t, domain.DonationEnRoute, d.Status)
			require.Len(t, d.Timeline, 1)
			assert.Equal(t, domain.DonationEnRoute, d.Timeline[0].Status)

			got, _ := f.requests.GetRequest(ctx, req.ID)
			assert.Equal(t, domain.RequestAccepted, got.Status)

			_, err = f.donations.AcceptRequest(ctx, req.ID, "donor-2")
			assert.ErrorIs(t, err, domain.ErrRequestFull, "request is full")

			_, err = f.donations.AcceptRequest(ctx, "missing", "donor-2")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestAcceptRequestRejectsTerminalRequest(t *testing.T) {
	for _, mode := range []AcceptMode{AcceptAtomic, AcceptRelaxed} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode)
			req := f.createRequest(t, "owner", 3)
			_, err := f.requests.CancelRequest(ctx, req.ID, "owner")
			require.NoError(t, err)

			_, err = f.donations.AcceptRequest(ctx, req.ID, "donor-1")
			assert.ErrorIs(t, err, domain.ErrIneligibleRequest)
			assert.ErrorIs(t, err, domain.ErrRequestClosed)
		})
	}
}

func TestCancelDonationFreesUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 1)
	d, err := f.donations.AcceptRequest(ctx, req.ID, "donor-1")
	require.NoError(t, err)

	_, err = f.donations.CancelDonation(ctx, d.ID, "donor-1", "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.donations.CancelDonation(ctx, d.ID, "owner", "changed my mind")
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	cancelled, err := f.donations.CancelDonation(ctx, d.ID, "donor-1", "stuck in traffic")
	require.NoError(t, err)
	assert.Equal(t, domain.DonationCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "stuck in traffic", *cancelled.CancellationReason)
	assert.Len(t, cancelled.Timeline, 2)

	_, err = f.donations.CancelDonation(ctx, d.ID, "donor-1", "again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	active, err := f.store.Donations().CountActive(ctx, req.ID)
	require.NoError(t, err)
	assert.Zero(t, active)
	got, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, got.Status, "idle request returns to PENDING")

	_, err = f.donations.AcceptRequest(ctx, req.ID, "donor-2")
	assert.NoError(t, err, "cancelled donation no longer holds the unit")
}

func TestReleaseIfIdleKeepsBusyRequestAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 2)
	first, err := f.donations.AcceptRequest(ctx, req.ID, "donor-1")
	require.NoError(t, err)
	_, err = f.donations.AcceptRequest(ctx, req.ID, "donor-2")
	require.NoError(t, err)

	_, err = f.donations.CancelDonation(ctx, first.ID, "donor-1", "unwell")
	require.NoError(t, err)
	got, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, got.Status)
}

func TestResponsesVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 3)
	for _, donor := range []string{"donor-1", "donor-2"} {
		_, err := f.donations.AcceptRequest(ctx, req.ID, donor)
		require.NoError(t, err)
	}

	all, err := f.requests.Responses(ctx, req.ID, "owner")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "donor-2", all[0].DonorID, "newest first")

	own, err := f.requests.Responses(ctx, req.ID, "donor-1")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "donor-1", own[0].DonorID)
}

func TestHistoryQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	first := f.createRequest(t, "owner", 1)
	second := f.createRequest(t, "owner", 1)
	_, err := f.requests.CancelRequest(ctx, first.ID, "owner")
	require.NoError(t, err)

	history, err := f.requests.ListRequesterHistory(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)

	active, err := f.requests.ActiveRequests(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	_, err = f.donations.ActiveDonation(ctx, "donor-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	d, err := f.donations.AcceptRequest(ctx, second.ID, "donor-1")
	require.NoError(t, err)

	current, err := f.donations.ActiveDonation(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, current.ID)

	latest, err := f.donations.LatestForRequest(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, latest.ID)

	donorHistory, err := f.donations.ListDonorHistory(ctx, "donor-1")
	require.NoError(t, err)
	assert.Len(t, donorHistory, 1)

	_, err = f.donations.ViewDonation(ctx, d.ID, "owner")
	assert.NoError(t, err)
	_, err = f.donations.ViewDonation(ctx, d.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
}

// countBarrier holds every CountActive caller until all racers have read the count,
// reproducing the widest possible read-then-write window.
type countBarrier struct {
	domain.DonationRepository
	arrived sync.WaitGroup
	release chan struct{}
}

func (b *countBarrier) CountActive(ctx context.Context, requestID string) (int, error) {
	n, err := b.DonationRepository.CountActive(ctx, requestID)
	b.arrived.Done()
	<-b.release
	return n, err
}

func TestRelaxedAcceptOverbookingIsBounded(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reqs := NewRequests(store.Requests(), store.Donations(), zerolog.Nop(), nil)
	req, err := reqs.CreateRequest(ctx, validInput("owner", 2))
	require.NoError(t, err)

	// one of two units already taken
	plain := NewDonations(store.Donations(), reqs, AcceptRelaxed, zerolog.Nop(), nil)
	_, err = plain.AcceptRequest(ctx, req.ID, "donor-0")
	require.NoError(t, err)

	const racers = 2
	barrier := &countBarrier{DonationRepository: store.Donations(), release: make(chan struct{})}
	barrier.arrived.Add(racers)
	raced := NewDonations(barrier, reqs, AcceptRelaxed, zerolog.Nop(), nil)

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = raced.AcceptRequest(ctx, req.ID, fmt.Sprintf("donor-%d", i+1))
		}()
	}
	barrier.arrived.Wait()
	close(barrier.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err, "both racers observed a free unit")
	}
	active, err := store.Donations().CountActive(ctx, req.ID)
	require.NoError(t, err)
	assert.Greater(t, active, req.UnitsNeeded, "relaxed mode overbooks under a race")
	assert.LessOrEqual(t, active, req.UnitsNeeded+racers-1)
}

func TestAtomicAcceptNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 2)

	const racers = 16
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.donations.AcceptRequest(ctx, req.ID, fmt.Sprintf("donor-%d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrIneligibleRequest):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, req.UnitsNeeded, accepted)
	active, err := f.store.Donations().CountActive(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.UnitsNeeded, active)
}

func TestAtomicAcceptRejectsDuplicateDonor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AcceptAtomic)
	req := f.createRequest(t, "owner", 3)

	_, err := f.donations.AcceptRequest(ctx, req.ID, "donor-1")
	require.NoError(t, err)
	_, err = f.donations.AcceptRequest(ctx, req.ID, "donor-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyResponding)
}

func TestParseAcceptMode(t *testing.T) {
	mode, err := ParseAcceptMode("")
	require.NoError(t, err)
	assert.Equal(t, AcceptAtomic, mode)
	mode, err = ParseAcceptMode(" Relaxed ")
	require.NoError(t, err)
	assert.Equal(t, AcceptRelaxed, mode)
	_, err = ParseAcceptMode("optimistic")
	assert.Error(t, err)
}
