package source

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/piresc/tumpang/internal/pkg/models"
)

// SimulatedSource emits a random walk around a starting point at a fixed
// cadence. It stands in for device geolocation in demos and local runs.
type SimulatedSource struct {
	mu       sync.Mutex
	start    models.Location
	interval time.Duration
	rng      *rand.Rand
	watching bool
}

// NewSimulatedSource creates a simulated position source centered on start
func NewSimulatedSource(start models.Location, interval time.Duration) *SimulatedSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &SimulatedSource{
		start:    start,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Watch starts emitting fixes until the returned stop function is called.
// Only one watch may be active at a time.
func (s *SimulatedSource) Watch(onFix func(models.LocationFix), onError func(error)) (func(), error) {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return nil, errors.New("position source already watched")
	}
	s.watching = true
	s.mu.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		current := s.start
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				// roughly 10m steps in a random direction
				current.Latitude += (s.rng.Float64() - 0.5) * 0.0002
				current.Longitude += (s.rng.Float64() - 0.5) * 0.0002
				heading := s.rng.Float64() * 360
				speed := 5 + s.rng.Float64()*10
				s.mu.Unlock()

				onFix(models.LocationFix{
					Location: current,
					Accuracy: 5,
					Heading:  heading,
					Speed:    speed,
					Time:     time.Now(),
				})
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			s.mu.Lock()
			s.watching = false
			s.mu.Unlock()
		})
	}
	return stop, nil
}
