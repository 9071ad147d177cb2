// Package log holds the process-wide logger.
package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
}

// Get returns the process logger.
func Get() *logrus.Logger {
	return log
}

// Configure sets the level (debug, info, warn or error; anything else means
// info) and the output format (json or text).
func Configure(level, format string) {
	switch strings.ToLower(level) {
	case "error":
		log.Level = logrus.ErrorLevel
	case "warn":
		log.Level = logrus.WarnLevel
	case "debug":
		log.Level = logrus.DebugLevel
	default:
		log.Level = logrus.InfoLevel
	}
	if strings.EqualFold(format, "json") {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
}

// SetOutput redirects the logger.
func SetOutput(w io.Writer) { log.Out = w }
