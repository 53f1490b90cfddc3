package identity

import "strings"

// Identity names a connected device. Key is the primary routing key while
// the connection is open; it is derived from the raw transport address and
// is not guaranteed stable across a reconnect. IP is the parsed network
// address component and may be empty when the raw address is unparseable.
type Identity struct {
	IP  string `json:"ip,omitempty"`
	Key string `json:"key"`
}

// Resolve derives an Identity from a raw transport address of the form
// "host/ip:port" or "/ip:port": the key is the raw address minus the
// trailing ":port" segment, the IP is the segment between the first slash
// and the last colon. When the address has no slash, no colon, or the last
// colon precedes the slash, the raw string itself becomes the key and the
// IP stays empty, so routing degrades gracefully instead of failing.
// Resolve is pure and total; it runs on every connection event.
func Resolve(raw string) Identity {
	slash := strings.Index(raw, "/")
	colon := strings.LastIndex(raw, ":")
	if slash < 0 || colon < 0 || colon < slash {
		return Identity{Key: raw}
	}
	return Identity{
		IP:  raw[slash+1 : colon],
		Key: raw[:colon],
	}
}
