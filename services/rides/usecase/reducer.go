package usecase

import "github.com/piresc/tumpang/internal/pkg/models"

// EventKind names the triggers that can advance a ride through its phases
type EventKind string

const (
	EventRequestCreated   EventKind = "request_created"   // rider submits a ride request
	EventOfferAccepted    EventKind = "offer_accepted"    // driver claims an open offer
	EventBackendAccepted  EventKind = "backend_accepted"  // backend reports a driver was assigned
	EventDriverArrived    EventKind = "driver_arrived"    // driver signals arrival at pickup
	EventOTPVerified      EventKind = "otp_verified"      // backend accepted the submitted code
	EventTripCompleted    EventKind = "trip_completed"    // driver marks the trip finished
	EventPaymentConfirmed EventKind = "payment_confirmed" // payment collected
	EventCancelled        EventKind = "cancelled"
	EventReset            EventKind = "reset"
)

// Reduce is the pure transition function for both machine variants:
// given the current phase and an event, it returns the next phase and
// whether the transition is legal. Guards that need outside data (the OTP
// check, request completeness) run in the machines before an event is fed
// here; Reduce only encodes the shape of the lifecycle.
func Reduce(phase models.RidePhase, kind EventKind) (models.RidePhase, bool) {
	switch kind {
	case EventRequestCreated:
		if phase == models.PhaseIdle {
			return models.PhaseRequested, true
		}
	case EventOfferAccepted:
		if phase == models.PhaseIdle {
			return models.PhaseAccepted, true
		}
	case EventBackendAccepted:
		if phase == models.PhaseRequested {
			return models.PhaseAccepted, true
		}
	case EventDriverArrived:
		if phase == models.PhaseAccepted {
			return models.PhaseDriverArrived, true
		}
	case EventOTPVerified:
		if phase == models.PhaseAccepted || phase == models.PhaseDriverArrived {
			return models.PhaseInProgress, true
		}
	case EventTripCompleted:
		if phase == models.PhaseInProgress {
			return models.PhasePaymentCollection, true
		}
	case EventPaymentConfirmed:
		if phase == models.PhasePaymentCollection {
			return models.PhaseCompleted, true
		}
	case EventCancelled:
		if phase.Cancellable() {
			return models.PhaseCancelled, true
		}
	case EventReset:
		if phase.Terminal() || phase == models.PhaseIdle {
			return models.PhaseIdle, true
		}
	}
	return phase, false
}

// phaseRank orders phases along the forward direction of the lifecycle.
// Push-delivered phases only ever move a machine forward; anything else
// waits for the authoritative poll snapshot.
func phaseRank(p models.RidePhase) int {
	switch p {
	case models.PhaseIdle:
		return 0
	case models.PhaseRequested:
		return 1
	case models.PhaseAccepted:
		return 2
	case models.PhaseDriverArrived:
		return 3
	case models.PhaseInProgress:
		return 4
	case models.PhasePaymentCollection:
		return 5
	case models.PhaseCompleted, models.PhaseCancelled:
		return 6
	}
	return -1
}
