// Package hub implements the session coordinator: connection lifecycle
// tracking, the active/disabled broadcast-routing policy and the
// acknowledgement-correlation protocol for multi-step sensor operations.
package hub

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/identity"
	"github.com/dezibot/hub/internal/logging"
	"github.com/dezibot/hub/internal/protocol"
	"github.com/dezibot/hub/internal/router"
	"github.com/dezibot/hub/internal/session"
)

var log = logging.Package("hub")

// ErrStopped is returned by suspending operations when the coordinator's
// event loop is no longer running.
var ErrStopped = oops.Errorf("hub: coordinator stopped")

// Config tunes the coordinator.
type Config struct {
	// EnsureTimeout bounds the ensure-mode acknowledgement window.
	EnsureTimeout time.Duration
}

// Coordinator owns the session registry and message router, consumes
// transport events and host commands on a single event-loop goroutine, and
// correlates asynchronous inbound replies back to in-flight multi-step
// operations. The loop goroutine is the only writer of registry, pending
// and telemetry state.
type Coordinator struct {
	cfg      Config
	observer Observer
	registry *session.Registry
	router   *router.Router
	probes   *protocol.Table

	events  chan event
	stopped chan struct{}

	// Loop-owned state. Only the Run goroutine touches these.
	byConn  map[session.Conn]identity.Identity
	pending map[string]*pendingEnsure

	telemetry *telemetryTable
}

type event interface{}

type openEvent struct {
	conn    session.Conn
	rawAddr string
}

type closeEvent struct {
	conn session.Conn
}

type messageEvent struct {
	conn session.Conn
	text string
}

type errorEvent struct {
	err error
}

type commandEvent struct {
	fn func()
}

// New builds a coordinator. observer may be nil.
func New(cfg Config, observer Observer) *Coordinator {
	if cfg.EnsureTimeout <= 0 {
		cfg.EnsureTimeout = 2 * time.Second
	}
	if observer == nil {
		observer = nopObserver{}
	}
	c := &Coordinator{
		cfg:       cfg,
		observer:  observer,
		events:    make(chan event, 256),
		stopped:   make(chan struct{}),
		byConn:    make(map[session.Conn]identity.Identity),
		pending:   make(map[string]*pendingEnsure),
		telemetry: newTelemetryTable(),
	}
	c.registry = session.NewRegistry(c.observer.SessionsChanged)
	c.router = router.New(c.registry, c.deliveryFailed)
	c.probes = protocol.NewTable(
		protocol.Probe{Name: "identifyReply", Try: c.tryIdentify},
		protocol.Probe{Name: "modeAck", Try: c.tryModeAck},
		protocol.Probe{Name: "colorReply", Try: c.tryColor},
		protocol.Probe{Name: "brightnessReply", Try: c.tryBrightness},
	)
	return c
}

// Registry exposes the session registry for read-only surfaces.
func (c *Coordinator) Registry() *session.Registry {
	return c.registry
}

// Run services transport events and host commands until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev := ev.(type) {
	case openEvent:
		c.deviceOpened(ev.conn, ev.rawAddr)
	case closeEvent:
		c.deviceClosed(ev.conn)
	case messageEvent:
		c.deviceMessage(ev.conn, ev.text)
	case errorEvent:
		c.transportError(ev.err)
	case commandEvent:
		ev.fn()
	}
}

// Transport handler surface. Each callback posts onto the event loop and
// returns; none of them block the transport's read path for long.

func (c *Coordinator) HandleOpen(conn session.Conn, rawAddr string) {
	c.post(openEvent{conn: conn, rawAddr: rawAddr})
}

func (c *Coordinator) HandleClose(conn session.Conn) {
	c.post(closeEvent{conn: conn})
}

func (c *Coordinator) HandleMessage(conn session.Conn, text string) {
	c.post(messageEvent{conn: conn, text: text})
}

func (c *Coordinator) HandleError(err error) {
	c.post(errorEvent{err: err})
}

func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

// dispatch runs fn on the event loop.
func (c *Coordinator) dispatch(fn func()) error {
	select {
	case c.events <- commandEvent{fn: fn}:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

func (c *Coordinator) deviceOpened(conn session.Conn, rawAddr string) {
	id := identity.Resolve(rawAddr)
	c.byConn[conn] = id
	c.registry.RecordConnect(id, conn)
	log.WithFields(logrus.Fields{
		"at":  "hub.Coordinator.deviceOpened",
		"key": id.Key,
		"ip":  id.IP,
	}).Info("session_connected")
	c.router.SendToOne(id.Key, protocol.NewIdentifyRequest())
}

func (c *Coordinator) deviceClosed(conn session.Conn) {
	id, ok := c.byConn[conn]
	if !ok {
		return
	}
	delete(c.byConn, conn)

	// A reconnect may have overwritten the entry under this key; only the
	// currently registered connection may remove it.
	if current, ok := c.registry.Connection(id.Key); !ok || current.Conn != conn {
		log.WithFields(logrus.Fields{
			"at":  "hub.Coordinator.deviceClosed",
			"key": id.Key,
		}).Debug("stale_close_ignored")
		return
	}
	c.registry.RecordDisconnect(id.Key)
	c.telemetry.drop(id.Key)
	log.WithFields(logrus.Fields{
		"at":  "hub.Coordinator.deviceClosed",
		"key": id.Key,
	}).Info("session_closed")
}

func (c *Coordinator) deviceMessage(conn session.Conn, text string) {
	id, ok := c.byConn[conn]
	if !ok {
		// The message raced a close; the sender is gone.
		return
	}
	if name, ok := c.probes.Dispatch(id.Key, text); ok {
		log.WithFields(logrus.Fields{
			"at":     "hub.Coordinator.deviceMessage",
			"key":    id.Key,
			"schema": name,
		}).Trace("inbound_matched")
		return
	}
	// No schema matched: a silent drop, expected and frequent.
}

func (c *Coordinator) transportError(err error) {
	log.WithFields(logrus.Fields{
		"at":    "hub.Coordinator.transportError",
		"error": err,
	}).Warn("transport_error")
	c.observer.TransportFailed(err)
}

// deliveryFailed runs on router delivery goroutines.
func (c *Coordinator) deliveryFailed(key string, err error) {
	c.observer.DeliveryFailed(key, err)
}

// Probe handlers. Each returns true when the text structurally matched its
// schema, consuming the message even when it carries failure status.

func (c *Coordinator) tryIdentify(from, text string) bool {
	reply, ok := protocol.DecodeIdentifyReply(text)
	if !ok {
		return false
	}
	if !reply.OK() || reply.Name == "" {
		return true
	}
	c.registry.SetDisplayName(from, reply.Name)
	log.WithFields(logrus.Fields{
		"at":   "hub.Coordinator.tryIdentify",
		"key":  from,
		"name": reply.Name,
	}).Info("device_identified")
	c.observer.DeviceIdentified(from, reply.Name)
	return true
}

func (c *Coordinator) tryModeAck(from, text string) bool {
	ack, ok := protocol.DecodeModeAck(text)
	if !ok {
		return false
	}
	if !ack.OK() {
		return true
	}
	c.markResponded(ack.Target+"/"+ack.Command, from)
	return true
}

func (c *Coordinator) tryColor(from, text string) bool {
	reply, ok := protocol.DecodeColorReply(text)
	if !ok {
		return false
	}
	if reply.OK() {
		c.recordTelemetry(from, reply)
	}
	return true
}

func (c *Coordinator) tryBrightness(from, text string) bool {
	reply, ok := protocol.DecodeBrightnessReply(text)
	if !ok {
		return false
	}
	if reply.OK() {
		c.recordTelemetry(from, reply)
	}
	return true
}

func (c *Coordinator) recordTelemetry(from string, reply protocol.Telemetry) {
	v := Value{SensorKey: reply.SensorKey(), Reply: reply, ReceivedAt: time.Now()}
	c.telemetry.put(from, v)
	log.WithFields(logrus.Fields{
		"at":     "hub.Coordinator.recordTelemetry",
		"key":    from,
		"sensor": v.SensorKey,
	}).Debug("telemetry_updated")
	c.observer.TelemetryUpdated(from, v)
}

// Host API. Safe for concurrent use from any goroutine.

// Sessions returns the current registry snapshot.
func (c *Coordinator) Sessions() []session.Info {
	return c.registry.Snapshot()
}

// SetDeviceActive includes or excludes a display name from active
// broadcasts. Asynchronous; the change lands on the event loop.
func (c *Coordinator) SetDeviceActive(name string, active bool) {
	_ = c.dispatch(func() {
		c.registry.SetActiveByName(name, active)
	})
}

// Identify re-issues the identification request to a single session.
func (c *Coordinator) Identify(key string) {
	_ = c.dispatch(func() {
		c.router.SendToOne(key, protocol.NewIdentifyRequest())
	})
}

// Latest returns a device's most recent value for a sensor key.
func (c *Coordinator) Latest(device, sensorKey string) (Value, bool) {
	return c.telemetry.latest(device, sensorKey)
}

// DeviceTelemetry returns a copy of a device's latest-value rows.
func (c *Coordinator) DeviceTelemetry(device string) map[string]Value {
	return c.telemetry.device(device)
}

// RequestColorValues switches every active device's color sensor into
// cyclic acquisition, waits for acknowledgements bounded by the configured
// window, then broadcasts the color read to the active subset. Replies
// arrive asynchronously as telemetry. On timeout the read proceeds anyway;
// the result tells the caller which way the wait resolved.
func (c *Coordinator) RequestColorValues(ctx context.Context) (EnsureResult, error) {
	res, err := c.ensureMode(ctx, protocol.TargetColorDetection, protocol.ModeCyclic)
	if err != nil {
		return res, err
	}
	if err := c.dispatch(func() {
		c.router.SendToActive(protocol.NewColorRequest())
	}); err != nil {
		return res, err
	}
	return res, nil
}

// RequestBrightness is the brightness analog of RequestColorValues.
func (c *Coordinator) RequestBrightness(ctx context.Context, sensor protocol.Sensor) (EnsureResult, error) {
	res, err := c.ensureMode(ctx, protocol.TargetLightDetection, protocol.ModeCyclic)
	if err != nil {
		return res, err
	}
	if err := c.dispatch(func() {
		c.router.SendToActive(protocol.NewBrightnessRequest(sensor))
	}); err != nil {
		return res, err
	}
	return res, nil
}
