package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/logger"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/observability"
	"github.com/piresc/tumpang/internal/pkg/websocket"
	"github.com/piresc/tumpang/services/rides"
)

// Snapshot is a copy of a machine's externally visible state, safe to
// hold after the machine has moved on
type Snapshot struct {
	Phase          models.RidePhase
	Ride           *models.Ride
	ApproachRoute  *models.RoutePlan
	TripRoute      *models.RoutePlan
	DriverLocation *models.Location
}

// RiderMachine coordinates a rider's ride lifecycle against the backend.
//
// Two inputs drive it: push events from the channel, which only ever move
// the phase forward, and the periodic active-ride poll, whose snapshot is
// authoritative and wins over anything push delivered. Local commands go
// through optimistic transitions that revert when the backend rejects them.
type RiderMachine struct {
	mu      sync.Mutex
	cfg     *models.Config
	gw      rides.RideGW
	routes  rides.RouteResolver
	channel rides.Channel

	phase     models.RidePhase
	ride      *models.Ride
	approach  *models.RoutePlan
	trip      *models.RoutePlan
	driverLoc *models.Location

	onPhase []func(models.RidePhase)
	unsubs  []websocket.UnsubscribeFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewRiderMachine creates a rider machine in the Idle phase
func NewRiderMachine(
	cfg *models.Config,
	gw rides.RideGW,
	routes rides.RouteResolver,
	channel rides.Channel,
) *RiderMachine {
	return &RiderMachine{
		cfg:     cfg,
		gw:      gw,
		routes:  routes,
		channel: channel,
		phase:   models.PhaseIdle,
	}
}

// Start subscribes to ride events and begins the active-ride poll loop
func (m *RiderMachine) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.done = make(chan struct{})

	m.unsubs = []websocket.UnsubscribeFunc{
		m.channel.Subscribe(constants.EventRideAccepted, m.handleRidePush),
		m.channel.Subscribe(constants.EventDriverArrived, m.handleRidePush),
		m.channel.Subscribe(constants.EventRideStarted, m.handleRidePush),
		m.channel.Subscribe(constants.EventRideCompleted, m.handleRidePush),
		m.channel.Subscribe(constants.EventRideCancelled, m.handleRidePush),
		m.channel.Subscribe(constants.EventDriverLocationUpdate, m.handleDriverLocation),
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop()
}

// Stop tears down subscriptions and waits for the poll loop to exit
func (m *RiderMachine) Stop() {
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

// RequestRide submits a new ride request. The phase moves to Requested
// optimistically and reverts to Idle if the backend rejects the request.
func (m *RiderMachine) RequestRide(ctx context.Context, req *models.RideRequest) (*models.Ride, error) {
	if req == nil || !requestComplete(req) {
		return nil, rides.ErrIncompleteRequest
	}

	m.mu.Lock()
	next, ok := Reduce(m.phase, EventRequestCreated)
	if !ok {
		m.mu.Unlock()
		return nil, rides.ErrInvalidTransition
	}
	m.phase = next
	m.mu.Unlock()

	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCash
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ride, err := m.gw.CreateRide(ctx, req)
	if err != nil {
		m.mu.Lock()
		if m.phase == models.PhaseRequested {
			m.phase = models.PhaseIdle
		}
		m.mu.Unlock()
		return nil, err
	}

	if ride.Fare == nil && ride.DistanceKm != nil {
		if estimate, err := EstimateFare(ride.VehicleType, *ride.DistanceKm); err == nil {
			ride.Fare = &estimate
		}
	}

	m.mu.Lock()
	m.ride = ride
	effect := func() {}
	if phaseRank(ride.Phase) > phaseRank(m.phase) {
		effect = m.transitionLocked(ride.Phase)
	}
	m.mu.Unlock()
	effect()

	m.notifyPhase()
	logger.Info("ride requested",
		logger.String("ride_id", ride.ID),
		logger.String("vehicle_type", string(ride.VehicleType)))
	return ride, nil
}

// Cancel aborts the current ride if it has not started yet
func (m *RiderMachine) Cancel(ctx context.Context) error {
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

// Rate submits a rating for the completed ride
func (m *RiderMachine) Rate(ctx context.Context, rating int, feedback string) error {
	m.mu.Lock()
	if m.phase != models.PhaseCompleted || m.ride == nil {
		m.mu.Unlock()
		return rides.ErrInvalidTransition
	}
	rideID := m.ride.ID
	m.mu.Unlock()

	return m.gw.RateRide(ctx, rideID, rating, feedback)
}

// Reset returns the machine to Idle after a terminal phase
func (m *RiderMachine) Reset() error {
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
func (m *RiderMachine) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Phase:          m.phase,
		Ride:           copyRide(m.ride),
		ApproachRoute:  copyRoute(m.approach),
		TripRoute:      copyRoute(m.trip),
		DriverLocation: copyLocation(m.driverLoc),
	}
}

// Phase returns the current phase
func (m *RiderMachine) Phase() models.RidePhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// OnPhaseChange registers a callback invoked after every phase change
func (m *RiderMachine) OnPhaseChange(fn func(models.RidePhase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPhase = append(m.onPhase, fn)
}

// Poll runs one active-ride poll cycle immediately
func (m *RiderMachine) Poll(ctx context.Context) {
	ride, err := m.gw.GetActiveRide(ctx)
	switch {
	case errors.Is(err, rides.ErrNoActiveRide):
		m.applySnapshot(nil)
	case err != nil:
		observability.PollErrorsTotal.WithLabelValues("rider_active_ride").Inc()
		logger.Debug("active ride poll failed", logger.Err(err))
	default:
		m.applySnapshot(ride)
	}
}

func (m *RiderMachine) pollLoop() {
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

// applySnapshot folds in an authoritative poll result. The snapshot wins
// over the local phase in either direction; a nil snapshot while a ride is
// open means the backend closed it out from under us.
func (m *RiderMachine) applySnapshot(ride *models.Ride) {
	m.mu.Lock()
	effect := func() {}
	changed := false

	if ride == nil {
		if m.phase != models.PhaseIdle && !m.phase.Terminal() {
			effect = m.transitionLocked(models.PhaseIdle)
			changed = true
		}
	} else {
		m.ride = ride
		if m.phase != ride.Phase {
			effect = m.transitionLocked(ride.Phase)
			changed = true
		}
	}
	m.mu.Unlock()
	effect()

	if changed {
		m.notifyPhase()
	}
}

// handleRidePush applies a push-delivered ride event. Pushes are forward
// hints only: anything that would move the phase backwards is left for the
// next poll snapshot to resolve.
func (m *RiderMachine) handleRidePush(payload json.RawMessage) {
	var ride models.Ride
	if err := json.Unmarshal(payload, &ride); err != nil {
		logger.Warn("dropping malformed ride event", logger.Err(err))
		return
	}

	m.mu.Lock()
	if m.ride != nil && ride.ID != m.ride.ID {
		m.mu.Unlock()
		return
	}
	if phaseRank(ride.Phase) <= phaseRank(m.phase) {
		// stale or duplicate event; still merge fresher driver info
		if m.ride != nil && ride.Driver != nil {
			m.ride.Driver = ride.Driver
		}
		m.mu.Unlock()
		return
	}
	m.ride = &ride
	effect := m.transitionLocked(ride.Phase)
	m.mu.Unlock()
	effect()

	m.notifyPhase()
}

func (m *RiderMachine) handleDriverLocation(payload json.RawMessage) {
	var update models.LocationUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		logger.Warn("dropping malformed driver location", logger.Err(err))
		return
	}

	m.mu.Lock()
	loc := update.Location
	m.driverLoc = &loc
	if m.ride != nil && m.ride.Driver != nil {
		m.ride.Driver.Location = loc
	}
	m.mu.Unlock()
}

// transitionLocked moves the phase and returns the side effect to run once
// the lock is released. Route fetches happen in the effect so handlers and
// commands finish with their derived data in place.
func (m *RiderMachine) transitionLocked(next models.RidePhase) func() {
	prev := m.phase
	m.phase = next
	logger.Debug("rider phase changed",
		logger.String("from", string(prev)),
		logger.String("to", string(next)))

	switch next {
	case models.PhaseAccepted, models.PhaseDriverArrived:
		if m.ride == nil || m.ride.Driver == nil {
			return func() {}
		}
		from := m.ride.Driver.Location
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
		m.driverLoc = nil

	case models.PhaseCompleted, models.PhaseCancelled:
		m.driverLoc = nil
	}
	return func() {}
}

func (m *RiderMachine) fetchApproach(from, to models.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.API.Timeout)
	defer cancel()
	plan := m.routes.GetRoute(ctx, from, to)

	m.mu.Lock()
	if m.phase == models.PhaseAccepted || m.phase == models.PhaseDriverArrived {
		m.approach = plan
	}
	m.mu.Unlock()
}

func (m *RiderMachine) fetchTrip(from, to models.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.API.Timeout)
	defer cancel()
	plan := m.routes.GetRoute(ctx, from, to)

	m.mu.Lock()
	if m.phase == models.PhaseInProgress {
		m.trip = plan
	}
	m.mu.Unlock()
}

func (m *RiderMachine) notifyPhase() {
	m.mu.Lock()
	phase := m.phase
	callbacks := make([]func(models.RidePhase), len(m.onPhase))
	copy(callbacks, m.onPhase)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(phase)
	}
}

func requestComplete(req *models.RideRequest) bool {
	if req.VehicleType == "" {
		return false
	}
	if req.PickupLocation == (models.Location{}) && req.PickupAddress == "" {
		return false
	}
	if req.DropoffLocation == (models.Location{}) && req.DropoffAddress == "" {
		return false
	}
	return true
}

func copyRide(r *models.Ride) *models.Ride {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Driver != nil {
		driver := *r.Driver
		dup.Driver = &driver
	}
	return &dup
}

func copyRoute(r *models.RoutePlan) *models.RoutePlan {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Coordinates = append([]models.Location(nil), r.Coordinates...)
	return &dup
}

func copyLocation(l *models.Location) *models.Location {
	if l == nil {
		return nil
	}
	dup := *l
	return &dup
}
