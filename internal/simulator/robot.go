package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/beacon"
	"github.com/dezibot/hub/internal/protocol"
)

const (
	dialAttempts = 20
	dialBackoff  = 100 * time.Millisecond
	sensorMax    = 4095
)

// robot is one simulated Dezibot: it answers the identification exchange
// with its name, acknowledges mode switches (unless flaky), and serves
// color and brightness reads from random-walking sensor state.
type robot struct {
	name  string
	delay time.Duration
	flaky bool
	rng   *rand.Rand

	modes      map[string]protocol.Mode
	color      [4]int
	brightness map[protocol.Sensor]int
}

func newRobot(name string, delay time.Duration, flaky bool, seed int64) *robot {
	rng := rand.New(rand.NewSource(seed))
	r := &robot{
		name:       name,
		delay:      delay,
		flaky:      flaky,
		rng:        rng,
		modes:      make(map[string]protocol.Mode),
		brightness: make(map[protocol.Sensor]int),
	}
	for i := range r.color {
		r.color[i] = rng.Intn(sensorMax + 1)
	}
	return r
}

func (r *robot) run(ctx context.Context, host string, port int, events chan<- beacon.Event) {
	conn, err := r.dial(ctx, fmt.Sprintf("ws://%s:%d/ws", host, port))
	if err != nil {
		log.WithFields(logrus.Fields{
			"at":    "simulator.robot.run",
			"name":  r.name,
			"error": err,
		}).Warn("robot_join_failed")
		select {
		case events <- beacon.Event{Kind: beacon.Failed, Device: r.name, Err: err}:
		case <-ctx.Done():
		}
		return
	}
	defer conn.Close()

	select {
	case events <- beacon.Event{Kind: beacon.Delivered, Device: r.name}:
	case <-ctx.Done():
		return
	}

	// Unblock the read loop when the fleet shuts down.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := r.handle(string(data))
		if reply == nil {
			continue
		}
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return
			}
		}
		text, err := protocol.Encode(reply)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			return
		}
	}
}

// dial retries for a while; the fleet usually starts while the hub is
// still binding its listener.
func (r *robot) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	var lastErr error
	for i := 0; i < dialAttempts; i++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-time.After(dialBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// handle probes one inbound request and builds the reply, nil when the
// text matches nothing (the robot stays quiet, like a device ignoring
// foreign chatter).
func (r *robot) handle(text string) any {
	if _, ok := protocol.DecodeIdentifyRequest(text); ok {
		return protocol.NewIdentifyReply(r.name)
	}
	if req, ok := protocol.DecodeModeRequest(text); ok {
		if r.flaky {
			// Swallows the switch; the hub's ensure window runs out.
			return nil
		}
		r.modes[req.Target] = req.Mode
		return protocol.NewModeAck(req.Target)
	}
	if _, ok := protocol.DecodeColorRequest(text); ok {
		for i := range r.color {
			r.color[i] = r.walk(r.color[i])
		}
		return protocol.NewColorReply(r.color[0], r.color[1], r.color[2], r.color[3])
	}
	if req, ok := protocol.DecodeBrightnessRequest(text); ok {
		v, ok := r.brightness[req.Sensor]
		if !ok {
			v = r.rng.Intn(sensorMax + 1)
		}
		v = r.walk(v)
		r.brightness[req.Sensor] = v
		return protocol.NewBrightnessReply(req.Sensor, v)
	}
	if req, ok := protocol.DecodeRequest(text); ok {
		return protocol.NewFailureReply(req.Target, req.Command)
	}
	return nil
}

// walk nudges a sensor value by a small random step, clamped to range.
func (r *robot) walk(v int) int {
	v += r.rng.Intn(41) - 20
	if v < 0 {
		return 0
	}
	if v > sensorMax {
		return sensorMax
	}
	return v
}
