package hub

import (
	"sync"
	"time"

	"github.com/dezibot/hub/internal/protocol"
)

// Value is one row of the latest-value telemetry table.
type Value struct {
	SensorKey  string             `json:"sensorKey"`
	Reply      protocol.Telemetry `json:"reply"`
	ReceivedAt time.Time          `json:"receivedAt"`
}

// telemetryTable keeps the latest success reply per device and sensor key.
// It carries its own lock because the host reads it directly while the
// event loop writes it.
type telemetryTable struct {
	mu     sync.RWMutex
	values map[string]map[string]Value
}

func newTelemetryTable() *telemetryTable {
	return &telemetryTable{values: make(map[string]map[string]Value)}
}

func (t *telemetryTable) put(device string, v Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slots, ok := t.values[device]
	if !ok {
		slots = make(map[string]Value)
		t.values[device] = slots
	}
	slots[v.SensorKey] = v
}

func (t *telemetryTable) latest(device, sensorKey string) (Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[device][sensorKey]
	return v, ok
}

func (t *telemetryTable) device(device string) map[string]Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	slots, ok := t.values[device]
	if !ok {
		return nil
	}
	out := make(map[string]Value, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}

// drop clears a device's rows when it disconnects; values are keyed by the
// ephemeral connection identity and would otherwise accumulate across
// address churn.
func (t *telemetryTable) drop(device string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.values, device)
}
