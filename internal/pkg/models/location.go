package models

import "time"

// Location represents a geographic coordinate
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationFix represents a single reading from the device position source
type LocationFix struct {
	Location Location  `json:"location"`
	Accuracy float64   `json:"accuracy,omitempty"` // meters
	Heading  float64   `json:"heading,omitempty"`  // degrees, 0..360
	Speed    float64   `json:"speed,omitempty"`    // m/s
	Time     time.Time `json:"time"`
}

// LocationUpdate is the payload sent to the backend for a driver position,
// both over the push channel and via POST /location/update
type LocationUpdate struct {
	DriverID string   `json:"driver_id,omitempty"`
	Location Location `json:"location"`
	Geohash  string   `json:"geohash,omitempty"`
	Heading  float64  `json:"heading,omitempty"`
	Speed    float64  `json:"speed,omitempty"`
}

// AvailabilityRequest toggles a driver's availability for new offers
type AvailabilityRequest struct {
	Available bool `json:"available"`
}
