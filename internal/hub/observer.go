package hub

import "github.com/dezibot/hub/internal/session"

// Observer receives host-facing notifications, one method per event. It is
// registered at construction; a nil observer is replaced by a no-op.
// Callbacks are invoked synchronously from the coordinator's paths and must
// return quickly; queue anything slow.
type Observer interface {
	// SessionsChanged delivers the freshly materialized registry snapshot
	// after every membership or flag change.
	SessionsChanged(infos []session.Info)
	// DeviceIdentified fires when a session records its display name.
	DeviceIdentified(key, name string)
	// TelemetryUpdated fires when a success reply overwrites a device's
	// latest-value slot.
	TelemetryUpdated(device string, v Value)
	// DeliveryFailed reports a single failed outbound delivery. Sibling
	// deliveries are unaffected.
	DeliveryFailed(key string, err error)
	// TransportFailed reports a transport-level error.
	TransportFailed(err error)
}

type nopObserver struct{}

func (nopObserver) SessionsChanged([]session.Info)  {}
func (nopObserver) DeviceIdentified(string, string) {}
func (nopObserver) TelemetryUpdated(string, Value)  {}
func (nopObserver) DeliveryFailed(string, error)    {}
func (nopObserver) TransportFailed(error)           {}
