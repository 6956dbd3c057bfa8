package models

import "time"

// RidePhase represents the position of a ride within its lifecycle.
//
// The backend only ever reports the phases between Requested and Cancelled;
// Idle and PaymentCollection exist client-side. Idle is both the initial
// and the post-terminal state, PaymentCollection is the driver-only step
// between InProgress and Completed while payment is being collected.
type RidePhase string

const (
	PhaseIdle              RidePhase = "idle"
	PhaseRequested         RidePhase = "requested"
	PhaseAccepted          RidePhase = "accepted"
	PhaseDriverArrived     RidePhase = "driver_arrived"
	PhaseInProgress        RidePhase = "in_progress"
	PhasePaymentCollection RidePhase = "payment_collection"
	PhaseCompleted         RidePhase = "completed"
	PhaseCancelled         RidePhase = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (p RidePhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Cancellable reports whether a cancel request is still allowed.
// Once a ride is in progress it can only run to completion.
func (p RidePhase) Cancellable() bool {
	switch p {
	case PhaseRequested, PhaseAccepted, PhaseDriverArrived:
		return true
	}
	return false
}

// VehicleType represents the class of vehicle for a ride
type VehicleType string

const (
	VehicleTypeBike  VehicleType = "bike"
	VehicleTypeAuto  VehicleType = "auto"
	VehicleTypeSedan VehicleType = "sedan"
	VehicleTypeSUV   VehicleType = "suv"
)

// PaymentMethod represents how the rider pays for a ride
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

// PaymentStatus represents the settlement state of a ride's payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Ride is one ride session as reported by the backend.
//
// OTP is only ever populated on the rider's view; the driver submits a
// candidate code for verification and never receives the real one.
type Ride struct {
	ID              string        `json:"id"`
	Phase           RidePhase     `json:"status"`
	PickupLocation  Location      `json:"pickup_location"`
	PickupAddress   string        `json:"pickup_address"`
	DropoffLocation Location      `json:"dropoff_location"`
	DropoffAddress  string        `json:"dropoff_address"`
	VehicleType     VehicleType   `json:"vehicle_type"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	OTP             string        `json:"otp,omitempty"`
	Fare            *float64      `json:"fare,omitempty"`
	DistanceKm      *float64      `json:"distance_km,omitempty"`
	DurationMinutes *int          `json:"duration_minutes,omitempty"`
	Driver          *DriverInfo   `json:"driver,omitempty"`
	RiderID         string        `json:"user_id,omitempty"`
	PaymentStatus   PaymentStatus `json:"payment_status,omitempty"`
	RequestedAt     time.Time     `json:"requested_at"`
	AcceptedAt      *time.Time    `json:"accepted_at,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// DriverInfo is the rider-visible identity of the assigned driver
type DriverInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Phone         string   `json:"phone,omitempty"`
	VehicleType   string   `json:"vehicle_type,omitempty"`
	VehicleNumber string   `json:"vehicle_number,omitempty"`
	Rating        float64  `json:"rating,omitempty"`
	Location      Location `json:"location"`
}

// RideRequest creates a new ride. RequestID is generated client-side so a
// retried submission cannot open two rides.
type RideRequest struct {
	RequestID       string        `json:"request_id,omitempty"`
	PickupLocation  Location      `json:"pickup_location"`
	PickupAddress   string        `json:"pickup_address"`
	DropoffLocation Location      `json:"dropoff_location"`
	DropoffAddress  string        `json:"dropoff_address"`
	VehicleType     VehicleType   `json:"vehicle_type"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
}

// RideStartRequest carries the driver's candidate OTP to start a ride
type RideStartRequest struct {
	OTP string `json:"otp"`
}

// RideRatingRequest rates a completed ride
type RideRatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}
