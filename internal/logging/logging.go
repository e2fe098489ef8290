// Package logging wires a shared logrus logger for the simulator.
//
// Every actor (node, network fabric, driver, MAB controller) is handed a
// pre-fielded *logrus.Entry rather than reaching for a package-level
// logger or guarded print statements, so log lines are always attributable
// to their component and can be filtered per-run.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the base logger for a run. debug enables DEBUG-level node
// chatter; WARN and above are always emitted.
func New(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// For returns a component-scoped entry carrying stable fields.
func For(log *logrus.Logger, component string, fields logrus.Fields) *logrus.Entry {
	f := logrus.Fields{"component": component}
	for k, v := range fields {
		f[k] = v
	}
	return log.WithFields(f)
}
