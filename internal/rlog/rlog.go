// Package rlog builds the logrus logger shared by the server and client
// binaries, replacing the teacher's hand-rolled leveled/colored Logger type
// (internal/logger) with sirupsen/logrus's fielded structured logging.
package rlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger at level (case-insensitive name, e.g. "debug",
// "info", "warn", "error"); an unrecognized level falls back to Info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

// WithRequest returns an entry pre-populated with request_id, matching the
// per-request context the dispatcher's log lines carry throughout
// internal/rserver.
func WithRequest(log *logrus.Logger, requestID uint32) *logrus.Entry {
	return log.WithField("request_id", requestID)
}
