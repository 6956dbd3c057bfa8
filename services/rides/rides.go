package rides

import (
	"context"

	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/websocket"
)

// RideGW defines the interface for ride backend operations
// go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/piresc/tumpang/services/rides RideGW
type RideGW interface {
	CreateRide(ctx context.Context, req *models.RideRequest) (*models.Ride, error)
	GetActiveRide(ctx context.Context) (*models.Ride, error)
	GetNearbyRides(ctx context.Context, loc models.Location, radiusKm float64) ([]*models.Ride, error)
	AcceptRide(ctx context.Context, rideID string) (*models.Ride, error)
	StartRide(ctx context.Context, rideID, otp string) (*models.Ride, error)
	CompleteRide(ctx context.Context, rideID string) (*models.Ride, error)
	CancelRide(ctx context.Context, rideID string) error
	RateRide(ctx context.Context, rideID string, rating int, feedback string) error
	ConfirmCashPayment(ctx context.Context, rideID string) error
}

// RouteResolver resolves travel paths on phase transitions
// go:generate mockgen -destination=mocks/mock_routes.go -package=mocks github.com/piresc/tumpang/services/rides RouteResolver
type RouteResolver interface {
	GetRoute(ctx context.Context, from, to models.Location) *models.RoutePlan
}

// Channel is the push channel surface the state machines consume
type Channel interface {
	Subscribe(topic string, handler websocket.Handler) websocket.UnsubscribeFunc
	Publish(topic string, payload interface{}) error
	Connected() bool
}
