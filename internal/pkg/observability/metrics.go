package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Background failures are silent to the end user but must stay observable,
// so every recovery path increments a counter here.
var (
	WSReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "ws_reconnects_total",
		Help: "Push channel reconnect attempts",
	})
	WSDroppedPublishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "ws_dropped_publishes_total",
		Help: "Publishes dropped because the channel was not open",
	})
	WSMalformedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "ws_malformed_messages_total",
		Help: "Inbound channel messages dropped at the parsing boundary",
	})
	RouteFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "route_fallbacks_total",
		Help: "Route requests answered with a straight-line estimate",
	})
	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "poll_errors_total",
		Help: "REST polling failures by poll loop",
	}, []string{"loop"})
	OTPRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "otp_rejections_total",
		Help: "Ride start attempts rejected for an OTP mismatch",
	})
	LocationPublishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tumpang", Name: "location_publishes_total",
		Help: "Position fixes republished to the push channel",
	})
)
