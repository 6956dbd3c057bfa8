package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/services/rides"
	"github.com/piresc/tumpang/services/rides/mocks"
)

func offerRide(id string, requestedAt time.Time) models.Ride {
	return models.Ride{
		ID:              id,
		Phase:           models.PhaseRequested,
		PickupLocation:  testPickup,
		DropoffLocation: testDropoff,
		VehicleType:     models.VehicleTypeSedan,
		PaymentMethod:   models.PaymentMethodCash,
		RequestedAt:     requestedAt,
	}
}

// acceptedDriver builds a machine already holding an accepted ride
func acceptedDriver(t *testing.T, ctrl *gomock.Controller, channel *fakeChannel) (*DriverMachine, *mocks.MockRideGW, *mocks.MockRouteResolver) {
	t.Helper()

	mockGW := mocks.NewMockRideGW(ctrl)
	mockRoutes := mocks.NewMockRouteResolver(ctrl)
	m := NewDriverMachine(testConfig(), mockGW, mockRoutes, channel)
	m.SetLocation(driverStart)

	now := time.Now()
	m.handleOffer(mustJSON(t, offerRide("ride-1", now)))

	accepted := offerRide("ride-1", now)
	accepted.Phase = models.PhaseAccepted
	mockGW.EXPECT().AcceptRide(gomock.Any(), "ride-1").Return(&accepted, nil)
	mockRoutes.EXPECT().GetRoute(gomock.Any(), driverStart, testPickup).
		Return(&models.RoutePlan{From: driverStart, To: testPickup})

	_, err := m.Accept(context.Background(), "ride-1")
	require.NoError(t, err)
	require.Equal(t, models.PhaseAccepted, m.Phase())
	return m, mockGW, mockRoutes
}

func TestOffers_DeduplicatedAndOrdered(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewDriverMachine(testConfig(), mocks.NewMockRideGW(ctrl), mocks.NewMockRouteResolver(ctrl), newFakeChannel())

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m.handleOffer(mustJSON(t, offerRide("ride-b", base.Add(time.Minute))))
	m.handleOffer(mustJSON(t, offerRide("ride-a", base)))
	m.handleOffer(mustJSON(t, offerRide("ride-b", base.Add(time.Minute)))) // duplicate

	offers := m.Offers()
	require.Len(t, offers, 2)
	assert.Equal(t, "ride-a", offers[0].ID, "oldest request first")
	assert.Equal(t, "ride-b", offers[1].ID)
}

func TestRefreshOffers_ReplacesSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGW := mocks.NewMockRideGW(ctrl)
	m := NewDriverMachine(testConfig(), mockGW, mocks.NewMockRouteResolver(ctrl), newFakeChannel())

	// Without a known position the poll is a no-op and must not hit the backend
	m.RefreshOffers(context.Background())

	m.SetLocation(driverStart)
	stale := offerRide("ride-stale", time.Now())
	m.handleOffer(mustJSON(t, stale))

	fresh := offerRide("ride-fresh", time.Now())
	mockGW.EXPECT().GetNearbyRides(gomock.Any(), driverStart, 5.0).
		Return([]*models.Ride{&fresh}, nil)
	m.RefreshOffers(context.Background())

	offers := m.Offers()
	require.Len(t, offers, 1)
	assert.Equal(t, "ride-fresh", offers[0].ID)
}

func TestAccept_UnknownOffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewDriverMachine(testConfig(), mocks.NewMockRideGW(ctrl), mocks.NewMockRouteResolver(ctrl), newFakeChannel())

	_, err := m.Accept(context.Background(), "never-seen")
	assert.ErrorIs(t, err, rides.ErrUnknownOffer)
	assert.Equal(t, models.PhaseIdle, m.Phase())
}

func TestAccept_ClaimsOfferAndFetchesApproach(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, _, _ := acceptedDriver(t, ctrl, channel)

	state := m.State()
	assert.Equal(t, models.PhaseAccepted, state.Phase)
	assert.Empty(t, m.Offers(), "accepting clears the offer set")
	require.NotNil(t, state.ApproachRoute)
	assert.Equal(t, driverStart, state.ApproachRoute.From)
	assert.Equal(t, testPickup, state.ApproachRoute.To)
}

func TestAccept_BackendRejectionReverts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGW := mocks.NewMockRideGW(ctrl)
	m := NewDriverMachine(testConfig(), mockGW, mocks.NewMockRouteResolver(ctrl), newFakeChannel())

	m.handleOffer(mustJSON(t, offerRide("ride-1", time.Now())))
	mockGW.EXPECT().AcceptRide(gomock.Any(), "ride-1").
		Return(nil, errors.New("already taken"))

	_, err := m.Accept(context.Background(), "ride-1")
	assert.Error(t, err)
	assert.Equal(t, models.PhaseIdle, m.Phase())
}

func TestMarkArrived_NotifiesRider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, _, _ := acceptedDriver(t, ctrl, channel)

	require.NoError(t, m.MarkArrived())
	assert.Equal(t, models.PhaseDriverArrived, m.Phase())
	assert.Equal(t, 1, channel.publishedTo(constants.EventDriverArrived))

	// Arrival is a one-shot transition
	assert.ErrorIs(t, m.MarkArrived(), rides.ErrInvalidTransition)
}

func TestSubmitOTP_WrongCodeLeavesPhaseUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, mockGW, _ := acceptedDriver(t, ctrl, channel)
	require.NoError(t, m.MarkArrived())

	// No GetRoute expectation: a rejected code must not trigger a trip
	// route fetch
	mockGW.EXPECT().StartRide(gomock.Any(), "ride-1", "4820").
		Return(nil, rides.ErrInvalidOTP)

	err := m.SubmitOTP(context.Background(), "4820")
	assert.ErrorIs(t, err, rides.ErrInvalidOTP)
	assert.Equal(t, models.PhaseDriverArrived, m.Phase())
	assert.Nil(t, m.State().TripRoute)
}

func TestSubmitOTP_CorrectCodeStartsTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, mockGW, mockRoutes := acceptedDriver(t, ctrl, channel)
	require.NoError(t, m.MarkArrived())

	started := offerRide("ride-1", time.Now())
	started.Phase = models.PhaseInProgress
	mockGW.EXPECT().StartRide(gomock.Any(), "ride-1", "4821").Return(&started, nil)
	mockRoutes.EXPECT().GetRoute(gomock.Any(), testPickup, testDropoff).
		Return(&models.RoutePlan{From: testPickup, To: testDropoff, DistanceKm: 15.2}).
		Times(1)

	require.NoError(t, m.SubmitOTP(context.Background(), "4821"))

	state := m.State()
	assert.Equal(t, models.PhaseInProgress, state.Phase)
	assert.Nil(t, state.ApproachRoute)
	require.NotNil(t, state.TripRoute)
	assert.Equal(t, 15.2, state.TripRoute.DistanceKm)

	// Submitting again once the trip is running is rejected
	assert.ErrorIs(t, m.SubmitOTP(context.Background(), "4821"), rides.ErrInvalidTransition)
}

func TestSubmitOTP_SkipsArrivalSignal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, mockGW, mockRoutes := acceptedDriver(t, ctrl, channel)

	started := offerRide("ride-1", time.Now())
	started.Phase = models.PhaseInProgress
	mockGW.EXPECT().StartRide(gomock.Any(), "ride-1", "4821").Return(&started, nil)
	mockRoutes.EXPECT().GetRoute(gomock.Any(), testPickup, testDropoff).
		Return(&models.RoutePlan{From: testPickup, To: testDropoff})

	require.NoError(t, m.SubmitOTP(context.Background(), "4821"))
	assert.Equal(t, models.PhaseInProgress, m.Phase())
}

func TestComplete_HoldsInPaymentCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, mockGW, mockRoutes := acceptedDriver(t, ctrl, channel)

	started := offerRide("ride-1", time.Now())
	started.Phase = models.PhaseInProgress
	mockGW.EXPECT().StartRide(gomock.Any(), "ride-1", "4821").Return(&started, nil)
	mockRoutes.EXPECT().GetRoute(gomock.Any(), testPickup, testDropoff).
		Return(&models.RoutePlan{})
	require.NoError(t, m.SubmitOTP(context.Background(), "4821"))

	fare := 263.0
	done := offerRide("ride-1", time.Now())
	done.Phase = models.PhaseCompleted
	done.Fare = &fare
	mockGW.EXPECT().CompleteRide(gomock.Any(), "ride-1").Return(&done, nil)

	require.NoError(t, m.Complete(context.Background()))

	state := m.State()
	assert.Equal(t, models.PhasePaymentCollection, state.Phase)
	require.NotNil(t, state.Ride.Fare)
	assert.Equal(t, 263.0, *state.Ride.Fare)

	// The backend already reports the ride completed; the snapshot must
	// not push the machine past payment collection
	snapshot := done
	m.applySnapshot(&snapshot)
	assert.Equal(t, models.PhasePaymentCollection, m.Phase())

	// Nor may a cancellation land once the trip has happened
	assert.ErrorIs(t, m.Cancel(context.Background()), rides.ErrNotCancellable)
	m.handleCancelledPush(mustJSON(t, done))
	assert.Equal(t, models.PhasePaymentCollection, m.Phase())
}

func TestConfirmPayment_CashSettlesAndCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, mockGW, mockRoutes := acceptedDriver(t, ctrl, channel)

	started := offerRide("ride-1", time.Now())
	started.Phase = models.PhaseInProgress
	mockGW.EXPECT().StartRide(gomock.Any(), "ride-1", "4821").Return(&started, nil)
	mockRoutes.EXPECT().GetRoute(gomock.Any(), testPickup, testDropoff).
		Return(&models.RoutePlan{})
	require.NoError(t, m.SubmitOTP(context.Background(), "4821"))

	done := offerRide("ride-1", time.Now())
	done.Phase = models.PhaseCompleted
	mockGW.EXPECT().CompleteRide(gomock.Any(), "ride-1").Return(&done, nil)
	require.NoError(t, m.Complete(context.Background()))

	mockGW.EXPECT().ConfirmCashPayment(gomock.Any(), "ride-1").Return(nil)
	require.NoError(t, m.ConfirmPayment(context.Background()))

	state := m.State()
	assert.Equal(t, models.PhaseCompleted, state.Phase)
	assert.Equal(t, models.PaymentStatusCompleted, state.Ride.PaymentStatus)
}

func TestConfirmPayment_RejectedBeforeTripEnds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, _, _ := acceptedDriver(t, ctrl, channel)

	err := m.ConfirmPayment(context.Background())
	assert.ErrorIs(t, err, rides.ErrInvalidTransition)
}

func TestSnapshot_NilClosesActiveRide(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, _, _ := acceptedDriver(t, ctrl, channel)

	m.applySnapshot(nil)
	assert.Equal(t, models.PhaseCancelled, m.Phase())

	require.NoError(t, m.Reset())
	assert.Equal(t, models.PhaseIdle, m.Phase())
	assert.Nil(t, m.State().Ride)
}

func TestSnapshot_StripsOTP(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewDriverMachine(testConfig(), mocks.NewMockRideGW(ctrl), mocks.NewMockRouteResolver(ctrl), newFakeChannel())

	ride := offerRide("ride-1", time.Now())
	ride.OTP = "4821" // must never survive on the driver side
	m.applySnapshot(&ride)

	assert.Empty(t, m.State().Ride.OTP)
}

func TestCancelledPush_DropsOfferAndCancelsActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewDriverMachine(testConfig(), mocks.NewMockRideGW(ctrl), mocks.NewMockRouteResolver(ctrl), newFakeChannel())

	m.handleOffer(mustJSON(t, offerRide("ride-1", time.Now())))
	m.handleCancelledPush(mustJSON(t, offerRide("ride-1", time.Now())))
	assert.Empty(t, m.Offers())

	channel := newFakeChannel()
	active, _, _ := acceptedDriver(t, ctrl, channel)
	cancelled := offerRide("ride-1", time.Now())
	cancelled.Phase = models.PhaseCancelled
	active.handleCancelledPush(mustJSON(t, cancelled))
	assert.Equal(t, models.PhaseCancelled, active.Phase())
}

func TestOffersIgnoredWhileOnARide(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := newFakeChannel()
	m, _, _ := acceptedDriver(t, ctrl, channel)

	m.handleOffer(mustJSON(t, offerRide("ride-2", time.Now())))
	assert.Empty(t, m.Offers())

	// And the nearby poll stays quiet too; no GetNearbyRides expectation
	m.RefreshOffers(context.Background())
}
