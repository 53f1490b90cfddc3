package hub

import (
	"context"
	"testing"
	"time"

	"github.com/dezibot/hub/internal/protocol"
)

// ackOnMode reads one frame from conn and, when it is a mode-switch
// request, feeds the matching acknowledgement back into the coordinator.
func ackOnMode(t *testing.T, c *Coordinator, conn *chanConn) {
	t.Helper()
	text := conn.next(t)
	req, ok := protocol.DecodeModeRequest(text)
	if !ok {
		t.Errorf("expected mode request, got %q", text)
		return
	}
	c.HandleMessage(conn, encode(t, protocol.NewModeAck(req.Target)))
}

func TestEnsureModeAllAcknowledge(t *testing.T) {
	c := startCoordinator(t, Config{EnsureTimeout: 2 * time.Second}, nil)

	conns := []*chanConn{
		connect(t, c, "/10.0.0.1:5000"),
		connect(t, c, "/10.0.0.2:5000"),
		connect(t, c, "/10.0.0.3:5000"),
	}
	waitCond(t, "three sessions", func() bool { return c.Registry().Count() == 3 })

	for _, conn := range conns {
		go ackOnMode(t, c, conn)
	}

	ctx := context.Background()
	start := time.Now()
	res, err := c.RequestColorValues(ctx)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("RequestColorValues error: %v", err)
	}
	if res != EnsureAcknowledged {
		t.Errorf("result = %v, want acknowledged", res)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("wait took %v; full coverage must resolve before the deadline", elapsed)
	}

	// After the wait, the read broadcast reaches every device.
	for i, conn := range conns {
		text := conn.next(t)
		if _, ok := protocol.DecodeColorRequest(text); !ok {
			t.Errorf("conn %d got %q, want color request", i, text)
		}
	}
}

// TestEnsureModePartialCoverageTimesOut verifies that with 2 of 3
// acknowledgements the wait holds until the deadline, then proceeds.
func TestEnsureModePartialCoverageTimesOut(t *testing.T) {
	const window = 150 * time.Millisecond
	c := startCoordinator(t, Config{EnsureTimeout: window}, nil)

	acking := []*chanConn{
		connect(t, c, "/10.0.0.1:5000"),
		connect(t, c, "/10.0.0.2:5000"),
	}
	silent := connect(t, c, "/10.0.0.3:5000")
	waitCond(t, "three sessions", func() bool { return c.Registry().Count() == 3 })

	for _, conn := range acking {
		go ackOnMode(t, c, conn)
	}

	start := time.Now()
	res, err := c.RequestColorValues(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("RequestColorValues error: %v", err)
	}
	if res != EnsureTimedOut {
		t.Errorf("result = %v, want timed_out", res)
	}
	if elapsed < window {
		t.Errorf("wait resolved after %v, before the %v deadline", elapsed, window)
	}

	// Best-effort degradation: the read still goes out, to the silent
	// device too.
	silent.next(t) // pending mode request
	text := silent.next(t)
	if _, ok := protocol.DecodeColorRequest(text); !ok {
		t.Errorf("silent device got %q, want color request", text)
	}
}

func TestEnsureModeNoActiveDevices(t *testing.T) {
	c := startCoordinator(t, Config{EnsureTimeout: 2 * time.Second}, nil)

	start := time.Now()
	res, err := c.RequestColorValues(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("RequestColorValues error: %v", err)
	}
	if res != EnsureAcknowledged {
		t.Errorf("result = %v, want acknowledged (empty set completes immediately)", res)
	}
	if elapsed > time.Second {
		t.Errorf("empty-set wait took %v, want immediate", elapsed)
	}
}

func TestEnsureModeContextCancel(t *testing.T) {
	c := startCoordinator(t, Config{EnsureTimeout: 10 * time.Second}, nil)
	conn := connect(t, c, "/10.0.0.1:5000")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		conn.next(t) // mode request delivered, then the caller gives up
		cancel()
	}()

	_, err := c.RequestColorValues(ctx)
	if err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// TestEnsureModeUnexpectedAckIgnored verifies that acknowledgements from
// devices outside the snapshotted set do not count toward coverage.
func TestEnsureModeUnexpectedAckIgnored(t *testing.T) {
	const window = 150 * time.Millisecond
	c := startCoordinator(t, Config{EnsureTimeout: window}, nil)

	expected := connect(t, c, "/10.0.0.1:5000")
	waitCond(t, "one session", func() bool { return c.Registry().Count() == 1 })

	resCh := make(chan EnsureResult, 1)
	go func() {
		res, _ := c.RequestColorValues(context.Background())
		resCh <- res
	}()

	expected.next(t) // mode request; never acknowledged

	// A device that joins after the snapshot acknowledges; it is not in
	// the expected set.
	late := connect(t, c, "/10.0.0.9:5000")
	c.HandleMessage(late, encode(t, protocol.NewModeAck(protocol.TargetColorDetection)))

	select {
	case res := <-resCh:
		if res != EnsureTimedOut {
			t.Errorf("result = %v, want timed_out (foreign ack must not complete the wait)", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait never resolved")
	}
}

// TestEnsureModeDisabledMidWaitStillWaited pins the snapshot-then-wait
// simplification: a device disabled after the snapshot stays in the
// expected set, so its missing acknowledgement runs the wait into the
// deadline.
func TestEnsureModeDisabledMidWaitStillWaited(t *testing.T) {
	const window = 150 * time.Millisecond
	c := startCoordinator(t, Config{EnsureTimeout: window}, nil)

	acking := connect(t, c, "/10.0.0.1:5000")
	disabling := connect(t, c, "/10.0.0.2:5000")
	c.HandleMessage(disabling, encode(t, protocol.NewIdentifyReply("dezibot-02")))
	waitCond(t, "identified", func() bool {
		snap := c.Sessions()
		return len(snap) == 2 && (snap[0].Name == "dezibot-02" || snap[1].Name == "dezibot-02")
	})

	go ackOnMode(t, c, acking)
	go func() {
		disabling.next(t) // receives the mode request, then disables itself
		c.SetDeviceActive("dezibot-02", false)
	}()

	start := time.Now()
	res, err := c.RequestColorValues(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("RequestColorValues error: %v", err)
	}
	if res != EnsureTimedOut {
		t.Errorf("result = %v, want timed_out", res)
	}
	if elapsed < window {
		t.Errorf("wait resolved after %v, before the %v deadline", elapsed, window)
	}
}

// TestEnsureSuperseded verifies that a second ensure for the same target
// replaces the pending entry and the superseded waiter resolves at its own
// deadline without disturbing the successor.
func TestEnsureSuperseded(t *testing.T) {
	const window = 300 * time.Millisecond
	c := startCoordinator(t, Config{EnsureTimeout: window}, nil)

	conn := connect(t, c, "/10.0.0.1:5000")
	waitCond(t, "one session", func() bool { return c.Registry().Count() == 1 })

	firstRes := make(chan EnsureResult, 1)
	go func() {
		res, _ := c.RequestColorValues(context.Background())
		firstRes <- res
	}()
	conn.next(t) // first mode request, never acknowledged

	secondRes := make(chan EnsureResult, 1)
	go func() {
		res, _ := c.RequestColorValues(context.Background())
		secondRes <- res
	}()
	text := conn.next(t) // second mode request
	req, ok := protocol.DecodeModeRequest(text)
	if !ok {
		t.Fatalf("expected mode request, got %q", text)
	}
	c.HandleMessage(conn, encode(t, protocol.NewModeAck(req.Target)))

	select {
	case res := <-secondRes:
		if res != EnsureAcknowledged {
			t.Errorf("successor result = %v, want acknowledged", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("successor wait never resolved")
	}

	select {
	case res := <-firstRes:
		if res != EnsureTimedOut {
			t.Errorf("superseded result = %v, want timed_out", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded wait never resolved")
	}
}

func TestRequestBrightnessBroadcastsSensorRead(t *testing.T) {
	c := startCoordinator(t, Config{EnsureTimeout: 2 * time.Second}, nil)
	conn := connect(t, c, "/10.0.0.1:5000")
	waitCond(t, "one session", func() bool { return c.Registry().Count() == 1 })

	go ackOnMode(t, c, conn)

	res, err := c.RequestBrightness(context.Background(), protocol.SensorIRBack)
	if err != nil {
		t.Fatalf("RequestBrightness error: %v", err)
	}
	if res != EnsureAcknowledged {
		t.Errorf("result = %v, want acknowledged", res)
	}

	text := conn.next(t)
	req, ok := protocol.DecodeBrightnessRequest(text)
	if !ok {
		t.Fatalf("expected brightness request, got %q", text)
	}
	if req.Sensor != protocol.SensorIRBack {
		t.Errorf("Sensor = %v, want irBack", req.Sensor)
	}
}
