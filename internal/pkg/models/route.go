package models

// RoutePlan is a computed or estimated travel path between two points.
//
// Plans are derived data: they are recomputed whole whenever the endpoints
// they were computed for no longer match, never patched in place.
type RoutePlan struct {
	From        Location   `json:"from"`
	To          Location   `json:"to"`
	Coordinates []Location `json:"coordinates"`
	DistanceKm  float64    `json:"distance_km"`
	DurationMin int        `json:"duration_min"`
	IsFallback  bool       `json:"is_fallback"`
}

// ComputedFor reports whether this plan still describes the given endpoints
func (r *RoutePlan) ComputedFor(from, to Location) bool {
	if r == nil {
		return false
	}
	return r.From == from && r.To == to
}
