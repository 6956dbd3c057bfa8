package usecase

import (
	"fmt"
	"math"

	"github.com/piresc/tumpang/internal/pkg/models"
)

// FareRate fixes the fare coefficients for one vehicle class
type FareRate struct {
	BasePrice  float64
	PricePerKm float64
}

// fareTable mirrors the product's published rate card
var fareTable = map[models.VehicleType]FareRate{
	models.VehicleTypeBike:  {BasePrice: 25, PricePerKm: 7},
	models.VehicleTypeAuto:  {BasePrice: 30, PricePerKm: 10},
	models.VehicleTypeSedan: {BasePrice: 50, PricePerKm: 14},
	models.VehicleTypeSUV:   {BasePrice: 80, PricePerKm: 18},
}

// EstimateFare computes the quoted fare for a vehicle class over a
// distance, rounded to whole currency units
func EstimateFare(vehicle models.VehicleType, distanceKm float64) (float64, error) {
	rate, ok := fareTable[vehicle]
	if !ok {
		return 0, fmt.Errorf("unknown vehicle type %q", vehicle)
	}
	return math.Round(rate.BasePrice + rate.PricePerKm*distanceKm), nil
}

// Rate exposes the fare coefficients for a vehicle class
func Rate(vehicle models.VehicleType) (FareRate, bool) {
	rate, ok := fareTable[vehicle]
	return rate, ok
}
