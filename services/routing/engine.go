package routing

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/http"
	"github.com/piresc/tumpang/internal/pkg/logger"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/observability"
)

// Engine resolves travel paths between two points, shielding callers from
// the routing service's shape and failure modes. Any failure degrades to a
// straight-line great-circle estimate instead of an error.
type Engine struct {
	client *http.Client
}

// NewEngine creates a route engine backed by the shared REST client
func NewEngine(client *http.Client) *Engine {
	return &Engine{client: client}
}

// routeResponse is the backend's proxy of the routing service
type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// GetRoute returns a travel path from one point to another.
// GetRoute never fails: when the routing service is unreachable or returns
// no route, the result is a two-point straight line with a haversine
// distance and a rough duration, flagged IsFallback so callers can tell an
// estimate from a real path.
func (e *Engine) GetRoute(ctx context.Context, from, to models.Location) *models.RoutePlan {
	endpoint := constants.RouteMapsRoute + "?" + routeQuery(from, to)

	var resp routeResponse
	if err := e.client.GetJSON(ctx, endpoint, &resp); err != nil {
		logger.Warn("Route fetch failed, using straight-line estimate",
			logger.Err(err))
		return e.fallback(from, to)
	}

	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		logger.Warn("Routing service returned no route",
			logger.String("code", resp.Code))
		return e.fallback(from, to)
	}

	route := resp.Routes[0]
	coords := DecodePolyline(route.Geometry)
	if len(coords) == 0 {
		return e.fallback(from, to)
	}

	return &models.RoutePlan{
		From:        from,
		To:          to,
		Coordinates: coords,
		DistanceKm:  route.Distance / 1000,
		DurationMin: int(math.Round(route.Duration / 60)),
		IsFallback:  false,
	}
}

// fallback builds the straight-line estimate used when routing is down
func (e *Engine) fallback(from, to models.Location) *models.RoutePlan {
	observability.RouteFallbacksTotal.Inc()
	distanceKm := HaversineKm(from, to)
	return &models.RoutePlan{
		From:        from,
		To:          to,
		Coordinates: []models.Location{from, to},
		DistanceKm:  distanceKm,
		DurationMin: int(math.Round(distanceKm * 3)),
		IsFallback:  true,
	}
}

// RouteWaypoints samples count evenly spaced interior points from a path
// for marker display, skipping the endpoints. Paths shorter than 3 points
// have no interior to sample.
func RouteWaypoints(coords []models.Location, count int) []models.Location {
	if len(coords) < 3 || count <= 0 {
		return nil
	}

	step := len(coords) / (count + 1)
	var waypoints []models.Location
	for i := 1; i <= count; i++ {
		idx := i * step
		if idx > 0 && idx < len(coords)-1 {
			waypoints = append(waypoints, coords[idx])
		}
	}
	return waypoints
}

// Place is one geocoding result
type Place struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Location converts the geocoder's string coordinates
func (p Place) Location() (models.Location, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}
	return models.Location{Latitude: lat, Longitude: lon}, nil
}

// SearchLocation resolves a free-text query to candidate places
func (e *Engine) SearchLocation(ctx context.Context, query string) ([]Place, error) {
	endpoint := constants.RouteMapsSearch + "?q=" + url.QueryEscape(query)

	var places []Place
	if err := e.client.GetJSON(ctx, endpoint, &places); err != nil {
		return nil, fmt.Errorf("location search failed: %w", err)
	}
	return places, nil
}

// ReverseGeocode resolves a coordinate to the nearest addressable place
func (e *Engine) ReverseGeocode(ctx context.Context, loc models.Location) (*Place, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(loc.Latitude))
	params.Set("lon", formatCoord(loc.Longitude))
	endpoint := constants.RouteMapsReverse + "?" + params.Encode()

	var place Place
	if err := e.client.GetJSON(ctx, endpoint, &place); err != nil {
		return nil, fmt.Errorf("reverse geocode failed: %w", err)
	}
	return &place, nil
}

func routeQuery(from, to models.Location) string {
	params := url.Values{}
	params.Set("start_lat", formatCoord(from.Latitude))
	params.Set("start_lon", formatCoord(from.Longitude))
	params.Set("end_lat", formatCoord(to.Latitude))
	params.Set("end_lon", formatCoord(to.Longitude))
	return params.Encode()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
