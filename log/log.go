// Package log provides loggers for the engine. Real-time code never logs,
// loggers are used by editing, disk and metering goroutines.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("CONSOLE_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Debug level is enabled with
// CONSOLE_DEBUG environment variable.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Silent returns logger that discards everything unless debug is enabled.
func Silent() logrus.FieldLogger {
	if debug {
		return GetLogger()
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
