package rides

import "errors"

var (
	// ErrNoActiveRide indicates the backend has no active ride for this user
	ErrNoActiveRide = errors.New("no active ride")

	// ErrInvalidOTP indicates the submitted code did not match the ride's OTP
	ErrInvalidOTP = errors.New("invalid OTP")

	// ErrInvalidTransition indicates the requested action is not allowed
	// from the current phase
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrIncompleteRequest indicates pickup, dropoff or vehicle are missing
	ErrIncompleteRequest = errors.New("pickup, dropoff and vehicle must be set")

	// ErrNotCancellable indicates the ride has already started or finished
	ErrNotCancellable = errors.New("ride can no longer be cancelled")

	// ErrUnknownOffer indicates the offer id is not in the candidate list
	ErrUnknownOffer = errors.New("unknown ride offer")
)
