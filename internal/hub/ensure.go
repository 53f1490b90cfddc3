package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/protocol"
)

// EnsureResult distinguishes full acknowledgement from best-effort
// proceed-on-timeout, so callers can tell the two apart if they care.
type EnsureResult int

const (
	// EnsureAcknowledged: every device in the expected set acknowledged
	// within the window (or the set was empty).
	EnsureAcknowledged EnsureResult = iota
	// EnsureTimedOut: the window elapsed without full coverage and the
	// operation proceeded anyway.
	EnsureTimedOut
)

func (r EnsureResult) String() string {
	if r == EnsureAcknowledged {
		return "acknowledged"
	}
	return "timed_out"
}

// pendingEnsure is one in-flight mode-switch correlation: the identity set
// expected to acknowledge, snapshotted once at operation start, and the
// monotonically growing responded set. done closes when responded covers
// expected.
type pendingEnsure struct {
	op        string
	expected  map[string]struct{}
	responded map[string]struct{}
	done      chan struct{}
}

// ensureMode switches target into mode on every currently active device
// and suspends the caller until each of them acknowledges, bounded by the
// configured window. The expected set is snapshotted once; a device that
// disables itself or disconnects mid-wait is still waited on, which costs
// latency only, never delivered-command correctness. A timeout is log-only
// degradation: the operation proceeds best-effort.
func (c *Coordinator) ensureMode(ctx context.Context, target string, mode protocol.Mode) (EnsureResult, error) {
	started := make(chan *pendingEnsure, 1)
	if err := c.dispatch(func() {
		started <- c.startEnsure(target, mode)
	}); err != nil {
		return EnsureTimedOut, err
	}

	var p *pendingEnsure
	select {
	case p = <-started:
	case <-ctx.Done():
		return EnsureTimedOut, ctx.Err()
	case <-c.stopped:
		return EnsureTimedOut, ErrStopped
	}
	if p == nil {
		// No active devices: nothing to wait for.
		return EnsureAcknowledged, nil
	}
	defer c.finishEnsure(target, p)

	timer := time.NewTimer(c.cfg.EnsureTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return EnsureAcknowledged, nil
	case <-timer.C:
		log.WithFields(logrus.Fields{
			"at":       "hub.Coordinator.ensureMode",
			"op":       p.op,
			"target":   target,
			"expected": len(p.expected),
		}).Warn("ensure_mode_timeout")
		return EnsureTimedOut, nil
	case <-ctx.Done():
		return EnsureTimedOut, ctx.Err()
	case <-c.stopped:
		return EnsureTimedOut, ErrStopped
	}
}

// startEnsure runs on the event loop. It snapshots the active identity
// set, registers the pending correlation and broadcasts the mode switch.
// Returns nil when no device is active.
func (c *Coordinator) startEnsure(target string, mode protocol.Mode) *pendingEnsure {
	active := c.registry.ActiveConnections()
	if len(active) == 0 {
		return nil
	}

	p := &pendingEnsure{
		op:        uuid.NewString(),
		expected:  make(map[string]struct{}, len(active)),
		responded: make(map[string]struct{}, len(active)),
		done:      make(chan struct{}),
	}
	for _, t := range active {
		p.expected[t.Key] = struct{}{}
	}

	key := target + "/" + protocol.CommandSetMode
	if old, ok := c.pending[key]; ok {
		// A newer operation supersedes the pending one; the superseded
		// waiter resolves at its own deadline.
		log.WithFields(logrus.Fields{
			"at":         "hub.Coordinator.startEnsure",
			"op":         p.op,
			"superseded": old.op,
			"target":     target,
		}).Warn("ensure_superseded")
	}
	c.pending[key] = p

	c.router.SendToActive(protocol.NewModeRequest(target, mode))
	log.WithFields(logrus.Fields{
		"at":       "hub.Coordinator.startEnsure",
		"op":       p.op,
		"target":   target,
		"mode":     mode.String(),
		"expected": len(p.expected),
	}).Debug("ensure_mode_started")
	return p
}

// markResponded runs on the event loop. Acknowledgements from devices
// outside the expected set, or repeated ones, change nothing.
func (c *Coordinator) markResponded(key, from string) {
	p, ok := c.pending[key]
	if !ok {
		return
	}
	if _, expected := p.expected[from]; !expected {
		return
	}
	if _, seen := p.responded[from]; seen {
		return
	}
	p.responded[from] = struct{}{}
	log.WithFields(logrus.Fields{
		"at":        "hub.Coordinator.markResponded",
		"op":        p.op,
		"key":       from,
		"responded": len(p.responded),
		"expected":  len(p.expected),
	}).Debug("ensure_mode_ack")
	if len(p.responded) >= len(p.expected) {
		close(p.done)
		delete(c.pending, key)
	}
}

// finishEnsure drops the pending entry after the waiter resolved, unless a
// newer operation has already replaced it (pointer comparison, so a
// superseded waiter cannot delete its successor).
func (c *Coordinator) finishEnsure(target string, p *pendingEnsure) {
	_ = c.dispatch(func() {
		key := target + "/" + protocol.CommandSetMode
		if current, ok := c.pending[key]; ok && current == p {
			delete(c.pending, key)
		}
	})
}
