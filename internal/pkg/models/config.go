package models

import "time"

// Config holds all client engine configuration
type Config struct {
	App         AppConfig
	API         APIConfig
	WS          WSConfig
	Poll        PollConfig
	Rides       RidesConfig
	Location    LocationConfig
	Credentials CredentialsConfig
	Logger      LoggerConfig
	Metrics     MetricsConfig
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// APIConfig represents REST backend settings
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// WSConfig represents push channel settings
type WSConfig struct {
	URL            string
	ReconnectDelay time.Duration
}

// PollConfig represents REST polling cadences
type PollConfig struct {
	ActiveRideInterval   time.Duration // authoritative snapshot cadence
	DisconnectedInterval time.Duration // faster cadence while the channel is down
	NearbyOffersInterval time.Duration // driver offer list refresh
}

// RidesConfig represents ride coordination settings
type RidesConfig struct {
	OffersRadiusKm float64 // search radius for open ride offers
}

// LocationConfig represents position tracking settings
type LocationConfig struct {
	UpdateInterval   time.Duration // REST location update cadence
	GeohashPrecision uint
}

// CredentialsConfig represents the persistent token store
type CredentialsConfig struct {
	FilePath string
}

// LoggerConfig represents logger settings
type LoggerConfig struct {
	Level string
}

// MetricsConfig represents the diagnostics endpoint
type MetricsConfig struct {
	Enabled bool
	Addr    string
}
