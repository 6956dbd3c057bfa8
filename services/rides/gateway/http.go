package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/http"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/services/rides"
)

// rideGW implements rides.RideGW against the REST backend
type rideGW struct {
	client *http.Client
}

// NewRideGW creates a new ride gateway
func NewRideGW(client *http.Client) rides.RideGW {
	return &rideGW{client: client}
}

// CreateRide requests a new ride
func (g *rideGW) CreateRide(ctx context.Context, req *models.RideRequest) (*models.Ride, error) {
	var ride models.Ride
	if err := g.client.PostJSON(ctx, constants.RouteRides, req, &ride); err != nil {
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}
	return &ride, nil
}

// GetActiveRide fetches the caller's current ride snapshot.
// Returns ErrNoActiveRide when the backend reports none.
func (g *rideGW) GetActiveRide(ctx context.Context) (*models.Ride, error) {
	resp, err := g.client.Get(ctx, constants.RouteActiveRide)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active ride: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusNotFound {
		return nil, rides.ErrNoActiveRide
	}
	if err := g.client.CheckStatus(resp); err != nil {
		return nil, err
	}

	var ride models.Ride
	if err := json.NewDecoder(resp.Body).Decode(&ride); err != nil {
		return nil, fmt.Errorf("failed to decode active ride: %w", err)
	}
	if ride.ID == "" {
		return nil, rides.ErrNoActiveRide
	}
	return &ride, nil
}

// GetNearbyRides fetches open ride offers around a driver's position
func (g *rideGW) GetNearbyRides(ctx context.Context, loc models.Location, radiusKm float64) ([]*models.Ride, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 6, 64))
	params.Set("radius", strconv.FormatFloat(radiusKm, 'f', 1, 64))

	var offers []*models.Ride
	endpoint := constants.RouteNearbyRides + "?" + params.Encode()
	if err := g.client.GetJSON(ctx, endpoint, &offers); err != nil {
		return nil, fmt.Errorf("failed to fetch nearby rides: %w", err)
	}
	return offers, nil
}

// AcceptRide claims an open ride offer for this driver
func (g *rideGW) AcceptRide(ctx context.Context, rideID string) (*models.Ride, error) {
	var ride models.Ride
	endpoint := constants.RouteRides + "/" + rideID + "/accept"
	if err := g.client.PostJSON(ctx, endpoint, nil, &ride); err != nil {
		return nil, fmt.Errorf("failed to accept ride: %w", err)
	}
	return &ride, nil
}

// StartRide submits the driver's candidate OTP. The backend owns the real
// code; a mismatch comes back as ErrInvalidOTP and nothing else changes.
func (g *rideGW) StartRide(ctx context.Context, rideID, otp string) (*models.Ride, error) {
	endpoint := constants.RouteRides + "/" + rideID + "/start"
	resp, err := g.client.Post(ctx, endpoint, models.RideStartRequest{OTP: otp})
	if err != nil {
		return nil, fmt.Errorf("failed to start ride: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusBadRequest {
		return nil, rides.ErrInvalidOTP
	}
	if err := g.client.CheckStatus(resp); err != nil {
		return nil, err
	}

	var ride models.Ride
	if err := json.NewDecoder(resp.Body).Decode(&ride); err != nil {
		return nil, fmt.Errorf("failed to decode started ride: %w", err)
	}
	return &ride, nil
}

// CompleteRide marks the trip finished on the backend
func (g *rideGW) CompleteRide(ctx context.Context, rideID string) (*models.Ride, error) {
	var ride models.Ride
	endpoint := constants.RouteRides + "/" + rideID + "/complete"
	if err := g.client.PostJSON(ctx, endpoint, nil, &ride); err != nil {
		return nil, fmt.Errorf("failed to complete ride: %w", err)
	}
	return &ride, nil
}

// CancelRide cancels a ride that has not started yet
func (g *rideGW) CancelRide(ctx context.Context, rideID string) error {
	endpoint := constants.RouteRides + "/" + rideID + "/cancel"
	if err := g.client.PostJSON(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to cancel ride: %w", err)
	}
	return nil
}

// RateRide rates a completed ride
func (g *rideGW) RateRide(ctx context.Context, rideID string, rating int, feedback string) error {
	endpoint := constants.RouteRides + "/" + rideID + "/rate"
	req := models.RideRatingRequest{Rating: rating, Feedback: feedback}
	if err := g.client.PostJSON(ctx, endpoint, req, nil); err != nil {
		return fmt.Errorf("failed to rate ride: %w", err)
	}
	return nil
}

// ConfirmCashPayment settles a cash ride
func (g *rideGW) ConfirmCashPayment(ctx context.Context, rideID string) error {
	req := map[string]string{"ride_id": rideID}
	if err := g.client.PostJSON(ctx, constants.RoutePaymentCash, req, nil); err != nil {
		return fmt.Errorf("failed to confirm cash payment: %w", err)
	}
	return nil
}
