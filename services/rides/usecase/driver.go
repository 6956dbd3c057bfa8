package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/logger"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/observability"
	"github.com/piresc/tumpang/internal/pkg/websocket"
	"github.com/piresc/tumpang/services/rides"
)

// DriverMachine coordinates a driver's ride lifecycle against the backend.
//
// While Idle it maintains a deduplicated set of open offers fed by both the
// nearby-rides poll and push events. Once an offer is accepted the machine
// follows the same optimistic-transition discipline as the rider variant,
// with one extra client-side phase: after the trip completes it holds in
// PaymentCollection until the driver confirms payment, regardless of what
// the backend snapshot says.
type DriverMachine struct {
	mu      sync.Mutex
	cfg     *models.Config
	gw      rides.RideGW
	routes  rides.RouteResolver
	channel rides.Channel

	phase    models.RidePhase
	ride     *models.Ride
	approach *models.RoutePlan
	trip     *models.RoutePlan
	offers   map[string]*models.Ride
	loc      *models.Location

	onPhase []func(models.RidePhase)
	unsubs  []websocket.UnsubscribeFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewDriverMachine creates a driver machine in the Idle phase
func NewDriverMachine(
	cfg *models.Config,
	gw rides.RideGW,
	routes rides.RouteResolver,
	channel rides.Channel,
) *DriverMachine {
	return &DriverMachine{
		cfg:     cfg,
		gw:      gw,
		routes:  routes,
		channel: channel,
		phase:   models.PhaseIdle,
		offers:  make(map[string]*models.Ride),
	}
}

// Start subscribes to ride events and begins the poll loops
func (m *DriverMachine) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.done = make(chan struct{})

	m.unsubs = []websocket.UnsubscribeFunc{
		m.channel.Subscribe(constants.EventNewRideRequest, m.handleOffer),
		m.channel.Subscribe(constants.EventRideCancelled, m.handleCancelledPush),
	}
	m.mu.Unlock()

	m.wg.Add(2)
	go m.activePollLoop()
	go m.offersPollLoop()
}

// Stop tears down subscriptions and waits for the poll loops to exit
func (m *DriverMachine) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	unsubs := m.unsubs
	m.unsubs = nil
	close(m.done)
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	m.wg.Wait()
}

// SetLocation records the driver's last known position, used as the origin
// for offer searches and approach routes. Wire it to the tracker's sample
// callback.
func (m *DriverMachine) SetLocation(loc models.Location) {
	m.mu.Lock()
	m.loc = &loc
	m.mu.Unlock()
}

// Offers returns the open offers, oldest request first
func (m *DriverMachine) Offers() []*models.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Ride, 0, len(m.offers))
	for _, offer := range m.offers {
		out = append(out, copyRide(offer))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Accept claims an open offer. The phase moves to Accepted optimistically
// and reverts to Idle if the backend rejects the claim.
func (m *DriverMachine) Accept(ctx context.Context, rideID string) (*models.Ride, error) {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventOfferAccepted)
	if !ok {
		m.mu.Unlock()
		return nil, rides.ErrInvalidTransition
	}
	if _, known := m.offers[rideID]; !known {
		m.mu.Unlock()
		return nil, rides.ErrUnknownOffer
	}
	m.phase = next
	m.mu.Unlock()

	ride, err := m.gw.AcceptRide(ctx, rideID)
	if err != nil {
		m.mu.Lock()
		if m.phase == models.PhaseAccepted {
			m.phase = models.PhaseIdle
		}
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	ride.OTP = ""
	m.ride = ride
	m.offers = make(map[string]*models.Ride)
	effect := func() {}
	if m.loc != nil {
		from := *m.loc
		to := ride.PickupLocation
		effect = func() { m.fetchApproach(from, to) }
	}
	m.mu.Unlock()
	effect()

	m.notifyPhase()
	logger.Info("ride offer accepted", logger.String("ride_id", ride.ID))
	return copyRide(ride), nil
}

// MarkArrived signals arrival at the pickup point. There is no backend
// endpoint for this; the transition is local and the rider is notified over
// the push channel on a best-effort basis.
func (m *DriverMachine) MarkArrived() error {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventDriverArrived)
	if !ok || m.ride == nil {
		m.mu.Unlock()
		return rides.ErrInvalidTransition
	}
	ride := copyRide(m.ride)
	ride.Phase = next
	m.ride.Phase = next
	m.phase = next
	m.mu.Unlock()

	if err := m.channel.Publish(constants.EventDriverArrived, ride); err != nil {
		logger.Warn("arrival notice not delivered", logger.Err(err))
	}

	m.notifyPhase()
	return nil
}

// SubmitOTP sends the rider's spoken code for verification. A match starts
// the trip; a mismatch surfaces ErrInvalidOTP and leaves the phase where it
// was. The machine never holds the real code.
func (m *DriverMachine) SubmitOTP(ctx context.Context, code string) error {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventOTPVerified)
	if !ok || m.ride == nil {
		m.mu.Unlock()
		return rides.ErrInvalidTransition
	}
	prev := m.phase
	rideID := m.ride.ID
	m.phase = next
	m.mu.Unlock()

	ride, err := m.gw.StartRide(ctx, rideID, code)
	if err != nil {
		m.mu.Lock()
		if m.phase == models.PhaseInProgress {
			m.phase = prev
		}
		m.mu.Unlock()
		if errors.Is(err, rides.ErrInvalidOTP) {
			observability.OTPRejectionsTotal.Inc()
			logger.Warn("start code rejected", logger.String("ride_id", rideID))
		}
		return err
	}

	m.mu.Lock()
	if ride != nil {
		ride.Phase = models.PhaseInProgress
		ride.OTP = ""
		m.ride = ride
	}
	m.approach = nil
	from := m.ride.PickupLocation
	to := m.ride.DropoffLocation
	m.mu.Unlock()
	m.fetchTrip(from, to)

	m.notifyPhase()
	logger.Info("trip started", logger.String("ride_id", rideID))
	return nil
}

// Complete marks the trip finished and moves into payment collection.
// The backend closes the ride out on its side; locally the ride is not
// done until ConfirmPayment.
func (m *DriverMachine) Complete(ctx context.Context) error {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventTripCompleted)
	if !ok || m.ride == nil {
		m.mu.Unlock()
		return rides.ErrInvalidTransition
	}
	prev := m.phase
	rideID := m.ride.ID
	m.phase = next
	m.mu.Unlock()

	ride, err := m.gw.CompleteRide(ctx, rideID)
	if err != nil {
		m.mu.Lock()
		if m.phase == models.PhasePaymentCollection {
			m.phase = prev
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if ride != nil {
		ride.Phase = models.PhasePaymentCollection
		ride.OTP = ""
		m.ride = ride
	}
	m.mu.Unlock()

	m.notifyPhase()
	logger.Info("trip completed, collecting payment", logger.String("ride_id", rideID))
	return nil
}

// ConfirmPayment settles the ride and moves it to Completed. Cash rides
// are confirmed against the backend; other methods settle server-side and
// only need the local acknowledgement.
func (m *DriverMachine) ConfirmPayment(ctx context.Context) error {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventPaymentConfirmed)
	if !ok || m.ride == nil {
		m.mu.Unlock()
		return rides.ErrInvalidTransition
	}
	rideID := m.ride.ID
	method := m.ride.PaymentMethod
	m.mu.Unlock()

	if method == models.PaymentMethodCash || method == "" {
		if err := m.gw.ConfirmCashPayment(ctx, rideID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.ride.PaymentStatus = models.PaymentStatusCompleted
	effect := m.transitionLocked(next)
	m.mu.Unlock()
	effect()

	m.notifyPhase()
	logger.Info("payment confirmed", logger.String("ride_id", rideID))
	return nil
}

// Cancel aborts the current ride if the trip has not started yet
func (m *DriverMachine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventCancelled)
	if !ok || m.ride == nil {
		m.mu.Unlock()
		return rides.ErrNotCancellable
	}
	prev := m.phase
	rideID := m.ride.ID
	effect := m.transitionLocked(next)
	m.mu.Unlock()
	effect()

	if err := m.gw.CancelRide(ctx, rideID); err != nil {
		m.mu.Lock()
		if m.phase == models.PhaseCancelled {
			m.phase = prev
		}
		m.mu.Unlock()
		return err
	}

	m.notifyPhase()
	return nil
}

// Reset returns the machine to Idle after a terminal phase
func (m *DriverMachine) Reset() error {
	m.mu.Lock()
	next, ok := Reduce(m.phase, EventReset)
	if !ok {
		m.mu.Unlock()
		return rides.ErrInvalidTransition
	}
	effect := m.transitionLocked(next)
	m.mu.Unlock()
	effect()

	m.notifyPhase()
	return nil
}

// State returns a copy of the current machine state
func (m *DriverMachine) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Phase:         m.phase,
		Ride:          copyRide(m.ride),
		ApproachRoute: copyRoute(m.approach),
		TripRoute:     copyRoute(m.trip),
	}
}

// Phase returns the current phase
func (m *DriverMachine) Phase() models.RidePhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// OnPhaseChange registers a callback invoked after every phase change
func (m *DriverMachine) OnPhaseChange(fn func(models.RidePhase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPhase = append(m.onPhase, fn)
}

// Poll runs one active-ride poll cycle immediately
func (m *DriverMachine) Poll(ctx context.Context) {
	ride, err := m.gw.GetActiveRide(ctx)
	switch {
	case errors.Is(err, rides.ErrNoActiveRide):
		m.applySnapshot(nil)
	case err != nil:
		observability.PollErrorsTotal.WithLabelValues("driver_active_ride").Inc()
		logger.Debug("active ride poll failed", logger.Err(err))
	default:
		m.applySnapshot(ride)
	}
}

// RefreshOffers runs one nearby-offers poll cycle immediately. It is a
// no-op unless the machine is Idle with a known position.
func (m *DriverMachine) RefreshOffers(ctx context.Context) {
	m.mu.Lock()
	if m.phase != models.PhaseIdle || m.loc == nil {
		m.mu.Unlock()
		return
	}
	loc := *m.loc
	radius := m.cfg.Rides.OffersRadiusKm
	m.mu.Unlock()

	offers, err := m.gw.GetNearbyRides(ctx, loc, radius)
	if err != nil {
		observability.PollErrorsTotal.WithLabelValues("driver_nearby_offers").Inc()
		logger.Debug("nearby offers poll failed", logger.Err(err))
		return
	}

	m.mu.Lock()
	if m.phase == models.PhaseIdle {
		refreshed := make(map[string]*models.Ride, len(offers))
		for _, offer := range offers {
			if offer != nil && offer.ID != "" {
				refreshed[offer.ID] = offer
			}
		}
		m.offers = refreshed
	}
	m.mu.Unlock()
}

func (m *DriverMachine) activePollLoop() {
	defer m.wg.Done()
	for {
		interval := m.cfg.Poll.ActiveRideInterval
		if !m.channel.Connected() && m.cfg.Poll.DisconnectedInterval > 0 {
			interval = m.cfg.Poll.DisconnectedInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-m.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.API.Timeout)
		m.Poll(ctx)
		cancel()
	}
}

func (m *DriverMachine) offersPollLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Poll.NearbyOffersInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.API.Timeout)
		m.RefreshOffers(ctx)
		cancel()
	}
}

// applySnapshot folds in an authoritative poll result. Unlike the rider
// variant the snapshot does not win unconditionally: PaymentCollection and
// later are client-side phases the backend has no knowledge of, so they are
// never overwritten by what it reports.
func (m *DriverMachine) applySnapshot(ride *models.Ride) {
	m.mu.Lock()
	if phaseRank(m.phase) >= phaseRank(models.PhasePaymentCollection) {
		m.mu.Unlock()
		return
	}

	effect := func() {}
	changed := false

	if ride == nil {
		if m.phase != models.PhaseIdle {
			// the ride was closed out from under us, most likely a
			// rider-side cancellation delivered only via the snapshot
			effect = m.transitionLocked(models.PhaseCancelled)
			changed = true
		}
	} else {
		snapPhase := ride.Phase
		if snapPhase == models.PhaseCompleted {
			// the backend considers the ride done the moment the trip
			// ends; locally payment still has to be collected
			snapPhase = models.PhasePaymentCollection
		}
		ride.OTP = ""
		m.ride = ride
		if m.phase != snapPhase {
			effect = m.transitionLocked(snapPhase)
			changed = true
		}
	}
	m.mu.Unlock()
	effect()

	if changed {
		m.notifyPhase()
	}
}

// handleOffer folds a pushed ride request into the offer set
func (m *DriverMachine) handleOffer(payload json.RawMessage) {
	var offer models.Ride
	if err := json.Unmarshal(payload, &offer); err != nil {
		logger.Warn("dropping malformed ride offer", logger.Err(err))
		return
	}
	if offer.ID == "" {
		return
	}
	offer.OTP = ""

	m.mu.Lock()
	if m.phase == models.PhaseIdle {
		if _, known := m.offers[offer.ID]; !known {
			m.offers[offer.ID] = &offer
		}
	}
	m.mu.Unlock()
}

// handleCancelledPush drops a cancelled offer, or cancels the active ride
// when it is still cancellable. A cancellation that arrives during payment
// collection is ignored; the trip already happened and settlement proceeds.
func (m *DriverMachine) handleCancelledPush(payload json.RawMessage) {
	var ride models.Ride
	if err := json.Unmarshal(payload, &ride); err != nil {
		logger.Warn("dropping malformed cancellation", logger.Err(err))
		return
	}

	m.mu.Lock()
	delete(m.offers, ride.ID)

	if m.ride == nil || m.ride.ID != ride.ID || !m.phase.Cancellable() {
		m.mu.Unlock()
		return
	}
	effect := m.transitionLocked(models.PhaseCancelled)
	m.mu.Unlock()
	effect()

	m.notifyPhase()
}

func (m *DriverMachine) transitionLocked(next models.RidePhase) func() {
	prev := m.phase
	m.phase = next
	logger.Debug("driver phase changed",
		logger.String("from", string(prev)),
		logger.String("to", string(next)))

	switch next {
	case models.PhaseAccepted:
		if m.ride == nil || m.loc == nil {
			return func() {}
		}
		from := *m.loc
		to := m.ride.PickupLocation
		if m.approach.ComputedFor(from, to) {
			return func() {}
		}
		return func() { m.fetchApproach(from, to) }

	case models.PhaseInProgress:
		m.approach = nil
		if m.ride == nil {
			return func() {}
		}
		from := m.ride.PickupLocation
		to := m.ride.DropoffLocation
		if m.trip.ComputedFor(from, to) {
			return func() {}
		}
		return func() { m.fetchTrip(from, to) }

	case models.PhaseIdle:
		m.ride = nil
		m.approach = nil
		m.trip = nil
		m.offers = make(map[string]*models.Ride)
	}
	return func() {}
}

func (m *DriverMachine) fetchApproach(from, to models.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.API.Timeout)
	defer cancel()
	plan := m.routes.GetRoute(ctx, from, to)

	m.mu.Lock()
	if m.phase == models.PhaseAccepted || m.phase == models.PhaseDriverArrived {
		m.approach = plan
	}
	m.mu.Unlock()
}

func (m *DriverMachine) fetchTrip(from, to models.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.API.Timeout)
	defer cancel()
	plan := m.routes.GetRoute(ctx, from, to)

	m.mu.Lock()
	if m.phase == models.PhaseInProgress {
		m.trip = plan
	}
	m.mu.Unlock()
}

func (m *DriverMachine) notifyPhase() {
	m.mu.Lock()
	phase := m.phase
	callbacks := make([]func(models.RidePhase), len(m.onPhase))
	copy(callbacks, m.onPhase)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(phase)
	}
}
