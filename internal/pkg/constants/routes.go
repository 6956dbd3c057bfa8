package constants

// REST backend endpoints consumed by the engine
const (
	RouteRides        = "/rides"
	RouteActiveRide   = "/rides/active"
	RouteNearbyRides  = "/drivers/rides/nearby"
	RouteLocation     = "/location/update"
	RouteAvailability = "/location/availability"
	RouteMapsRoute    = "/maps/route"
	RouteMapsSearch   = "/maps/search"
	RouteMapsReverse  = "/maps/reverse"
	RoutePaymentCash  = "/payments/cash"
)
