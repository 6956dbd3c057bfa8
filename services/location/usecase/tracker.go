package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/logger"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/observability"
	"github.com/piresc/tumpang/services/location"
)

// Tracker bridges the device position source to the rest of the system.
//
// Every fix goes to the caller's sample callback. While the driver is
// marked available, each fix is also republished on the push channel and
// a periodic REST update keeps the backend's driver index warm. Fixes
// are forwarded at the source's native cadence; no extra debounce.
type Tracker struct {
	mu        sync.Mutex
	cfg       *models.Config
	source    location.PositionSource
	gw        location.LocationGW
	channel   location.Publisher
	errSink   func(error)
	available bool
	running   bool
	stopWatch func()
	done      chan struct{}
	wg        sync.WaitGroup
	lastFix   *models.LocationFix
}

// NewTracker creates a location tracker. errSink receives position-source
// and background REST errors; it must not block.
func NewTracker(
	cfg *models.Config,
	source location.PositionSource,
	gw location.LocationGW,
	channel location.Publisher,
	errSink func(error),
) *Tracker {
	if errSink == nil {
		errSink = func(error) {}
	}
	return &Tracker{
		cfg:     cfg,
		source:  source,
		gw:      gw,
		channel: channel,
		errSink: errSink,
	}
}

// Start begins continuous position observation. onSample is invoked for
// every new fix. Position-source errors go to the error sink and do not
// stop tracking.
func (t *Tracker) Start(onSample func(models.LocationFix)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	stop, err := t.source.Watch(
		func(fix models.LocationFix) { t.handleFix(fix, onSample) },
		func(err error) {
			logger.Warn("Position source error", logger.Err(err))
			t.errSink(err)
		},
	)
	if err != nil {
		return err
	}

	t.stopWatch = stop
	t.done = make(chan struct{})
	t.running = true

	t.wg.Add(1)
	go t.updateLoop(t.done)

	logger.Info("Location tracking started",
		logger.Duration("rest_interval", t.cfg.Location.UpdateInterval))
	return nil
}

// handleFix fans one fix out to the sample callback and, when available,
// the push channel
func (t *Tracker) handleFix(fix models.LocationFix, onSample func(models.LocationFix)) {
	t.mu.Lock()
	t.lastFix = &fix
	available := t.available
	precision := t.cfg.Location.GeohashPrecision
	t.mu.Unlock()

	if onSample != nil {
		onSample(fix)
	}

	if !available {
		return
	}

	update := models.LocationUpdate{
		Location: fix.Location,
		Geohash:  geohash.EncodeWithPrecision(fix.Location.Latitude, fix.Location.Longitude, precision),
		Heading:  fix.Heading,
		Speed:    fix.Speed,
	}
	if err := t.channel.Publish(constants.EventDriverLocationUpdate, update); err != nil {
		logger.Warn("Failed to publish location update", logger.Err(err))
		t.errSink(err)
		return
	}
	observability.LocationPublishesTotal.Inc()
}

// updateLoop posts the latest fix to the backend on a fixed cadence while
// the driver is available
func (t *Tracker) updateLoop(done chan struct{}) {
	defer t.wg.Done()

	interval := t.cfg.Location.UpdateInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()
			fix := t.lastFix
			available := t.available
			precision := t.cfg.Location.GeohashPrecision
			t.mu.Unlock()

			if !available || fix == nil {
				continue
			}

			update := &models.LocationUpdate{
				Location: fix.Location,
				Geohash:  geohash.EncodeWithPrecision(fix.Location.Latitude, fix.Location.Longitude, precision),
				Heading:  fix.Heading,
				Speed:    fix.Speed,
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if err := t.gw.UpdateLocation(ctx, update); err != nil {
				logger.Warn("Failed to post location update", logger.Err(err))
				t.errSink(err)
			}
			cancel()
		}
	}
}

// SetAvailable toggles the driver's availability with the backend and
// gates channel publication of fixes
func (t *Tracker) SetAvailable(ctx context.Context, available bool) error {
	if err := t.gw.SetAvailability(ctx, available); err != nil {
		return err
	}

	t.mu.Lock()
	t.available = available
	t.mu.Unlock()

	logger.Info("Driver availability changed", logger.Bool("available", available))
	return nil
}

// Available reports whether fixes are currently being published
func (t *Tracker) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}

// Stop releases the position subscription and the update timer.
// Idempotent; returns only after the update loop has exited, so no stale
// callback fires after teardown.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stop := t.stopWatch
	t.stopWatch = nil
	close(t.done)
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.wg.Wait()

	logger.Info("Location tracking stopped")
}
