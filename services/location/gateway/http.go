package gateway

import (
	"context"
	"fmt"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/http"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/services/location"
)

// locationGW implements location.LocationGW against the REST backend
type locationGW struct {
	client *http.Client
}

// NewLocationGW creates a new location gateway
func NewLocationGW(client *http.Client) location.LocationGW {
	return &locationGW{client: client}
}

// UpdateLocation reports the driver's current position
func (g *locationGW) UpdateLocation(ctx context.Context, update *models.LocationUpdate) error {
	if err := g.client.PostJSON(ctx, constants.RouteLocation, update, nil); err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return nil
}

// SetAvailability toggles the driver's availability for new offers
func (g *locationGW) SetAvailability(ctx context.Context, available bool) error {
	req := models.AvailabilityRequest{Available: available}
	if err := g.client.PostJSON(ctx, constants.RouteAvailability, req, nil); err != nil {
		return fmt.Errorf("failed to set availability: %w", err)
	}
	return nil
}
