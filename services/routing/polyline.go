package routing

import (
	"strings"

	"github.com/piresc/tumpang/internal/pkg/models"
)

// Polyline codec for the routing service's compact path encoding: each
// coordinate pair is delta-encoded against the previous one at 5-decimal
// fixed point, then written as base64-ish ASCII in 5-bit chunks.
// Decoding is a pure function; identical input always yields an identical
// coordinate sequence.

// DecodePolyline decodes an encoded polyline into a coordinate sequence
func DecodePolyline(encoded string) []models.Location {
	var points []models.Location
	var lat, lng int64
	index := 0

	for index < len(encoded) {
		dLat, next, ok := decodeValue(encoded, index)
		if !ok {
			break
		}
		lat += dLat
		index = next

		dLng, next, ok := decodeValue(encoded, index)
		if !ok {
			break
		}
		lng += dLng
		index = next

		points = append(points, models.Location{
			Latitude:  float64(lat) / 1e5,
			Longitude: float64(lng) / 1e5,
		})
	}

	return points
}

// decodeValue reads one signed, delta-encoded value starting at index
func decodeValue(encoded string, index int) (value int64, next int, ok bool) {
	var result int64
	var shift uint

	for {
		if index >= len(encoded) {
			return 0, index, false
		}
		b := int64(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, true
	}
	return result >> 1, index, true
}

// EncodePolyline encodes a coordinate sequence into the compact format.
// The counterpart of DecodePolyline; mainly exercised by tests and tools.
func EncodePolyline(points []models.Location) string {
	var sb strings.Builder
	var prevLat, prevLng int64

	for _, p := range points {
		lat := int64(round(p.Latitude * 1e5))
		lng := int64(round(p.Longitude * 1e5))

		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lng-prevLng)

		prevLat = lat
		prevLng = lng
	}

	return sb.String()
}

func encodeValue(sb *strings.Builder, value int64) {
	v := value << 1
	if value < 0 {
		v = ^v
	}
	for v >= 0x20 {
		sb.WriteByte(byte((0x20 | (v & 0x1f)) + 63))
		v >>= 5
	}
	sb.WriteByte(byte(v + 63))
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int64(f - 0.5))
	}
	return float64(int64(f + 0.5))
}
