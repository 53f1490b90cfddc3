// Package logging configures the process-wide logrus logger and hands out
// per-package entries.
package logging

import (
	"strings"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// Configure applies the configured level and output format to the standard
// logrus logger. Format is "text" or "json"; an empty format means text.
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return oops.Errorf("unknown log level %q", level)
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return oops.Errorf("unknown log format %q", format)
	}
	return nil
}

// Package returns the entry a package hangs its call-site fields off.
func Package(name string) *logrus.Entry {
	return logrus.WithField("pkg", name)
}
