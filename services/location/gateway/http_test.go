package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piresc/tumpang/internal/pkg/http"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/services/location"
)

type staticCreds struct{ token string }

func (s staticCreds) Get() (string, error) { return s.token, nil }
func (s staticCreds) Set(string) error     { return nil }
func (s staticCreds) Clear() error         { return nil }

func newTestGW(t *testing.T, handler nethttp.HandlerFunc) location.LocationGW {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewLocationGW(http.NewClient(server.URL, staticCreds{token: "tok"}, nil))
}

func TestUpdateLocation(t *testing.T) {
	gw := newTestGW(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/location/update", r.URL.Path)

		var update models.LocationUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&update))
		assert.Equal(t, 28.6139, update.Location.Latitude)
		assert.Equal(t, "ttnghcbsd", update.Geohash)

		fmt.Fprint(w, `{}`)
	})

	err := gw.UpdateLocation(context.Background(), &models.LocationUpdate{
		Location: models.Location{Latitude: 28.6139, Longitude: 77.2090},
		Geohash:  "ttnghcbsd",
	})
	assert.NoError(t, err)
}

func TestSetAvailability(t *testing.T) {
	var got models.AvailabilityRequest
	gw := newTestGW(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/location/availability", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{}`)
	})

	require.NoError(t, gw.SetAvailability(context.Background(), true))
	assert.True(t, got.Available)

	require.NoError(t, gw.SetAvailability(context.Background(), false))
	assert.False(t, got.Available)
}

func TestUpdateLocation_BackendError(t *testing.T) {
	gw := newTestGW(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, `{"error":"bad coordinates"}`, nethttp.StatusBadRequest)
	})

	err := gw.UpdateLocation(context.Background(), &models.LocationUpdate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad coordinates")
}
