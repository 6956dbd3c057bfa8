package location

import (
	"context"

	"github.com/piresc/tumpang/internal/pkg/models"
)

// PositionSource abstracts the device's geolocation capability: a
// continuous high-accuracy watch delivering fixes until stopped
type PositionSource interface {
	Watch(onFix func(models.LocationFix), onError func(error)) (stop func(), err error)
}

// LocationGW defines the interface for location backend operations
// go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/piresc/tumpang/services/location LocationGW
type LocationGW interface {
	UpdateLocation(ctx context.Context, update *models.LocationUpdate) error
	SetAvailability(ctx context.Context, available bool) error
}

// Publisher is the outbound side of the push channel used by the tracker
type Publisher interface {
	Publish(topic string, payload interface{}) error
}
