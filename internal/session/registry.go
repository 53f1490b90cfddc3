// Package session holds the authoritative table of connected devices and
// the display-name based activation policy.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/dezibot/hub/internal/identity"
)

// Conn is the minimal send surface of a transport connection. The registry
// entry owns its Conn exclusively while the session is open; all sends go
// through the router, which looks the Conn up transiently per call.
type Conn interface {
	SendText(text string) error
}

// Info is one row of a published registry snapshot. Snapshots are immutable
// value slices, ordered by key; consumers may retain them freely.
type Info struct {
	Key         string    `json:"key"`
	IP          string    `json:"ip,omitempty"`
	Name        string    `json:"name,omitempty"`
	Active      bool      `json:"active"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Target pairs a routing key with its connection, computed at call time
// for the router.
type Target struct {
	Key  string
	Conn Conn
}

type entry struct {
	id          identity.Identity
	conn        Conn
	name        string
	connectedAt time.Time
}

// Registry tracks connected devices plus the set of display names excluded
// from active broadcasts. Every mutation rematerializes the snapshot and
// hands it to the publish callback while still holding the write lock, so
// subscribers never observe a partially applied change. The callback must
// be fast; queue anything slow.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	disabled map[string]struct{}
	publish  func([]Info)
}

// NewRegistry builds an empty registry. publish may be nil.
func NewRegistry(publish func([]Info)) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		disabled: make(map[string]struct{}),
		publish:  publish,
	}
}

// RecordConnect inserts a session for id: active, no display name yet. An
// existing entry under the same key is overwritten silently (reconnect
// race, last write wins).
func (r *Registry) RecordConnect(id identity.Identity, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id.Key] = &entry{id: id, conn: conn, connectedAt: time.Now()}
	r.publishLocked()
}

// RecordDisconnect removes the session under key; no-op when the key is
// already gone (the close event raced an earlier removal).
func (r *Registry) RecordDisconnect(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return
	}
	delete(r.entries, key)
	r.publishLocked()
}

// SetDisplayName sets or overwrites the display name of the session under
// key; no-op when the identity is unknown (the reply raced a disconnect).
func (r *Registry) SetDisplayName(key, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.name == name {
		return
	}
	e.name = name
	r.publishLocked()
}

// SetActiveByName adds or removes a display name from the disabled set.
// The flag applies to every current and future session carrying the name,
// so it survives a reconnect that re-announces the same name. Names stay
// in the set independent of whether any session currently holds them.
func (r *Registry) SetActiveByName(name string, active bool) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if active {
		if _, ok := r.disabled[name]; !ok {
			return
		}
		delete(r.disabled, name)
	} else {
		if _, ok := r.disabled[name]; ok {
			return
		}
		r.disabled[name] = struct{}{}
	}
	r.publishLocked()
}

// Snapshot returns the ordered materialization of all current sessions.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Connections returns every connection, independent of the active flag.
func (r *Registry) Connections() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]Target, 0, len(r.entries))
	for _, e := range r.entries {
		targets = append(targets, Target{Key: e.id.Key, Conn: e.conn})
	}
	return targets
}

// ActiveConnections returns the active subset, computed at call time.
func (r *Registry) ActiveConnections() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]Target, 0, len(r.entries))
	for _, e := range r.entries {
		if r.activeLocked(e) {
			targets = append(targets, Target{Key: e.id.Key, Conn: e.conn})
		}
	}
	return targets
}

// Connection looks up a single connection by key.
func (r *Registry) Connection(key string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return Target{}, false
	}
	return Target{Key: e.id.Key, Conn: e.conn}, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if r.activeLocked(e) {
			n++
		}
	}
	return n
}

// NameDisabled reports whether a display name is excluded from active
// broadcasts.
func (r *Registry) NameDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.disabled[name]
	return ok
}

func (r *Registry) snapshotLocked() []Info {
	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, Info{
			Key:         e.id.Key,
			IP:          e.id.IP,
			Name:        e.name,
			Active:      r.activeLocked(e),
			ConnectedAt: e.connectedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// activeLocked: a session with no name yet is always active; there is
// nothing to match against the disabled set.
func (r *Registry) activeLocked(e *entry) bool {
	if e.name == "" {
		return true
	}
	_, off := r.disabled[e.name]
	return !off
}

func (r *Registry) publishLocked() {
	if r.publish == nil {
		return
	}
	r.publish(r.snapshotLocked())
}
