// Package accesspoint is the seam in front of the platform mechanism that
// hosts the local wireless network. The hub treats credentials as opaque
// strings to relay; it never interprets or validates their format.
package accesspoint

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/dezibot/hub/internal/logging"
)

var log = logging.Package("accesspoint")

// Credentials of the hub-hosted network.
type Credentials struct {
	SSID     string
	Password string
}

// Redacted renders the credentials for logs without exposing the password.
func (c Credentials) Redacted() string {
	if c.Password == "" {
		return "ssid=" + c.SSID + " password="
	}
	return "ssid=" + c.SSID + " password=****"
}

// Provider starts and stops the access point. A start failure is terminal
// for the subsystem: the hub stays idle and tries again only on an
// explicit new start request, never automatically.
type Provider interface {
	Start(ctx context.Context) (Credentials, error)
	Stop() error
}

// Static serves credentials from configuration, generating an opaque
// password when none is configured. It is the non-radio implementation the
// hub ships; platform providers are host-supplied.
type Static struct {
	creds Credentials
}

func NewStatic(ssid, password string) *Static {
	return &Static{creds: Credentials{SSID: ssid, Password: password}}
}

func (s *Static) Start(ctx context.Context) (Credentials, error) {
	if s.creds.SSID == "" {
		return Credentials{}, oops.Errorf("access point: ssid not configured")
	}
	if s.creds.Password == "" {
		s.creds.Password = generatePassword()
	}
	log.WithFields(logrus.Fields{
		"at":          "accesspoint.Static.Start",
		"credentials": s.creds.Redacted(),
	}).Info("access_point_started")
	return s.creds, nil
}

func (s *Static) Stop() error {
	log.WithFields(logrus.Fields{
		"at": "accesspoint.Static.Stop",
	}).Info("access_point_stopped")
	return nil
}

// generatePassword derives an opaque WPA passphrase from a fresh uuid.
func generatePassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
