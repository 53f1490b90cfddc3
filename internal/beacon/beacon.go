// Package beacon is the seam in front of the out-of-band short-range radio
// that relays access-point credentials to robots. The hub consumes only
// the start/stop surface and the asynchronous delivery events.
package beacon

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/accesspoint"
	"github.com/dezibot/hub/internal/logging"
)

var log = logging.Package("beacon")

type EventKind int

const (
	// Delivered: one device received the credentials.
	Delivered EventKind = iota
	// Failed: the broadcast could not proceed.
	Failed
)

func (k EventKind) String() string {
	if k == Delivered {
		return "delivered"
	}
	return "failed"
}

// Event reports asynchronous broadcast outcomes.
type Event struct {
	Kind   EventKind
	Device string
	Err    error
}

// Broadcaster relays credentials out of band. A start failure is terminal
// for the subsystem, like an access-point failure: no automatic retry.
// Events stays readable until Stop closes it.
type Broadcaster interface {
	Start(ctx context.Context, creds accesspoint.Credentials, port int) error
	Events() <-chan Event
	Stop() error
}

// LogBroadcaster announces the (redacted) credentials in the log and emits
// no delivery events; it stands in wherever no platform radio is wired.
type LogBroadcaster struct {
	events   chan Event
	stopOnce sync.Once
}

func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{events: make(chan Event)}
}

func (b *LogBroadcaster) Start(_ context.Context, creds accesspoint.Credentials, port int) error {
	log.WithFields(logrus.Fields{
		"at":          "beacon.LogBroadcaster.Start",
		"credentials": creds.Redacted(),
		"port":        port,
	}).Info("credential_broadcast_started")
	return nil
}

func (b *LogBroadcaster) Events() <-chan Event {
	return b.events
}

func (b *LogBroadcaster) Stop() error {
	b.stopOnce.Do(func() {
		close(b.events)
		log.WithFields(logrus.Fields{
			"at": "beacon.LogBroadcaster.Stop",
		}).Info("credential_broadcast_stopped")
	})
	return nil
}
