package constants

// Push channel message types (inbound unless noted)
const (
	// Ride lifecycle
	EventNewRideRequest = "new_ride_request"
	EventRideAccepted   = "ride_accepted"
	EventDriverArrived  = "driver_arrived" // outbound from driver, inbound to rider
	EventRideStarted    = "ride_started"
	EventRideCompleted  = "ride_completed"
	EventRideCancelled  = "ride_cancelled"

	// Location
	EventDriverLocationUpdate = "driver_location_update" // outbound from driver, inbound to rider

	EventError = "error"
)

// KnownEvent reports whether a message type is one the engine understands.
// Unknown types are rejected at the parsing boundary, not passed downstream.
func KnownEvent(t string) bool {
	switch t {
	case EventNewRideRequest, EventRideAccepted, EventDriverArrived,
		EventRideStarted, EventRideCompleted, EventRideCancelled,
		EventDriverLocationUpdate, EventError:
		return true
	}
	return false
}
