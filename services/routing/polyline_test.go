package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piresc/tumpang/internal/pkg/models"
)

func TestDecodePolyline_ReferenceSequence(t *testing.T) {
	// The canonical example from the format's documentation
	points := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")

	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Latitude, 1e-9)
	assert.InDelta(t, -120.2, points[0].Longitude, 1e-9)
	assert.InDelta(t, 40.7, points[1].Latitude, 1e-9)
	assert.InDelta(t, -120.95, points[1].Longitude, 1e-9)
	assert.InDelta(t, 43.252, points[2].Latitude, 1e-9)
	assert.InDelta(t, -126.453, points[2].Longitude, 1e-9)
}

func TestEncodePolyline_ReferenceSequence(t *testing.T) {
	encoded := EncodePolyline([]models.Location{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	})
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)
}

func TestPolyline_RoundTrip(t *testing.T) {
	sequences := [][]models.Location{
		{},
		{{Latitude: 28.6139, Longitude: 77.2090}},
		{
			{Latitude: 28.6139, Longitude: 77.2090},
			{Latitude: 28.6200, Longitude: 77.2100},
			{Latitude: 28.7041, Longitude: 77.1025},
		},
		{
			{Latitude: -6.2088, Longitude: 106.8456},
			{Latitude: -6.1751, Longitude: 106.8650},
		},
		{
			// crossing the equator and the prime meridian
			{Latitude: 0.00001, Longitude: -0.00001},
			{Latitude: -0.00001, Longitude: 0.00001},
			{Latitude: 0, Longitude: 0},
		},
	}

	for _, seq := range sequences {
		decoded := DecodePolyline(EncodePolyline(seq))
		require.Len(t, decoded, len(seq))
		for i := range seq {
			assert.InDelta(t, seq[i].Latitude, decoded[i].Latitude, 1e-5)
			assert.InDelta(t, seq[i].Longitude, decoded[i].Longitude, 1e-5)
		}
	}
}

func TestDecodePolyline_Deterministic(t *testing.T) {
	encoded := EncodePolyline([]models.Location{
		{Latitude: 28.6139, Longitude: 77.2090},
		{Latitude: 28.7041, Longitude: 77.1025},
	})
	assert.Equal(t, DecodePolyline(encoded), DecodePolyline(encoded))
}

func TestDecodePolyline_TruncatedInput(t *testing.T) {
	// A dangling half-pair must not panic or emit a bogus point
	full := EncodePolyline([]models.Location{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
	})
	truncated := full[:len(full)-3]

	points := DecodePolyline(truncated)
	assert.LessOrEqual(t, len(points), 2)
}

func TestDecodePolyline_Empty(t *testing.T) {
	assert.Empty(t, DecodePolyline(""))
}
