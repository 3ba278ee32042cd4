// README: Structured logger initialization.
package infra

import "github.com/sirupsen/logrus"

// NewLogger builds the process-wide logrus logger. Unknown levels fall back
// to info rather than failing startup.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
