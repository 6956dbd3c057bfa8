package routing

import (
	"math"

	"github.com/piresc/tumpang/internal/pkg/models"
)

const earthRadiusKm = 6371.0

// HaversineKm computes the great-circle distance between two points in km
func HaversineKm(from, to models.Location) float64 {
	dLat := (to.Latitude - from.Latitude) * math.Pi / 180
	dLon := (to.Longitude - from.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(from.Latitude*math.Pi/180)*math.Cos(to.Latitude*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
