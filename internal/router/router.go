// Package router fans typed outbound messages out to connection subsets
// drawn from the session registry at call time.
package router

import (
	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/logging"
	"github.com/dezibot/hub/internal/protocol"
	"github.com/dezibot/hub/internal/session"
)

var log = logging.Package("router")

// Router encodes a message once and delivers it to each target in its own
// goroutine, so one slow or dead connection cannot block outbound traffic
// to the others. A failed delivery is reported through the error callback
// with the target's routing key and never aborts sibling deliveries. All
// send methods return immediately after dispatch.
type Router struct {
	registry *session.Registry
	onError  func(key string, err error)
}

// New builds a router over the registry. onError may be nil; it is invoked
// from delivery goroutines and must be safe for concurrent use.
func New(registry *session.Registry, onError func(key string, err error)) *Router {
	return &Router{registry: registry, onError: onError}
}

// SendToAll delivers msg to every current connection, independent of the
// active flag.
func (r *Router) SendToAll(msg any) {
	r.deliver(r.registry.Connections(), msg)
}

// SendToActive delivers msg to the currently active subset. The subset is
// computed at call time, not tracked through a subscription.
func (r *Router) SendToActive(msg any) {
	r.deliver(r.registry.ActiveConnections(), msg)
}

// SendToOne delivers msg to the single matching connection. An unknown key
// is a silent drop: the device is gone and the command has nowhere to go.
func (r *Router) SendToOne(key string, msg any) {
	target, ok := r.registry.Connection(key)
	if !ok {
		log.WithFields(logrus.Fields{
			"at":  "router.Router.SendToOne",
			"key": key,
		}).Debug("target_gone_dropped")
		return
	}
	r.deliver([]session.Target{target}, msg)
}

func (r *Router) deliver(targets []session.Target, msg any) {
	if len(targets) == 0 {
		return
	}
	text, err := protocol.Encode(msg)
	if err != nil {
		log.WithFields(logrus.Fields{
			"at":    "router.Router.deliver",
			"error": err,
		}).Error("encode_failed")
		return
	}
	for _, target := range targets {
		go func(target session.Target) {
			if err := target.Conn.SendText(text); err != nil {
				log.WithFields(logrus.Fields{
					"at":    "router.Router.deliver",
					"key":   target.Key,
					"error": err,
				}).Warn("delivery_failed")
				if r.onError != nil {
					r.onError(target.Key, err)
				}
			}
		}(target)
	}
}
