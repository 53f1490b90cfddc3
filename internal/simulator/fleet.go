// Package simulator runs an in-process fleet of fake Dezibots. The fleet
// implements the beacon seam: "broadcasting" the credentials hands them to
// N simulated robots, which join the hub over its real websocket transport
// and emit one delivery event each. It exists for demos and end-to-end
// tests; nothing in the hub core depends on it.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/accesspoint"
	"github.com/dezibot/hub/internal/beacon"
	"github.com/dezibot/hub/internal/logging"
)

var log = logging.Package("simulator")

// Config tunes the simulated fleet.
type Config struct {
	// Robots is the fleet size.
	Robots int
	// Host the robots dial; defaults to 127.0.0.1.
	Host string
	// ReplyDelay is slept before every reply, mimicking device latency.
	ReplyDelay time.Duration
	// FlakyRate is the fraction of robots that never acknowledge a mode
	// switch, exercising the ensure-mode timeout path.
	FlakyRate float64
}

// Fleet implements beacon.Broadcaster with simulated robots.
type Fleet struct {
	cfg      Config
	events   chan beacon.Event
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewFleet(cfg Config) *Fleet {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	return &Fleet{
		cfg:    cfg,
		events: make(chan beacon.Event, cfg.Robots+1),
	}
}

// Start boots the fleet against the hub listening on port. The ssid and
// password are logged the way a radio beacon would transmit them; the
// robots join directly over the loopback transport.
func (f *Fleet) Start(ctx context.Context, creds accesspoint.Credentials, port int) error {
	if f.cfg.Robots <= 0 {
		return oops.Errorf("simulator: robot count must be positive")
	}
	log.WithFields(logrus.Fields{
		"at":          "simulator.Fleet.Start",
		"robots":      f.cfg.Robots,
		"credentials": creds.Redacted(),
		"port":        port,
	}).Info("fleet_started")

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < f.cfg.Robots; i++ {
		r := newRobot(fmt.Sprintf("dezibot-%02d", i+1), f.cfg.ReplyDelay, rng.Float64() < f.cfg.FlakyRate, rng.Int63())
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			r.run(ctx, f.cfg.Host, port, f.events)
		}()
	}
	return nil
}

func (f *Fleet) Events() <-chan beacon.Event {
	return f.events
}

// Stop disconnects every robot and closes the event channel.
func (f *Fleet) Stop() error {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		f.wg.Wait()
		close(f.events)
		log.WithFields(logrus.Fields{
			"at": "simulator.Fleet.Stop",
		}).Info("fleet_stopped")
	})
	return nil
}
