package utils

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the diagnostic logger. Status lines meant for the user are printed
// directly to stderr; Log carries everything else.
var Log = newLogger()

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	return log
}

// SetLogLevel parses level ("debug", "info", "warn", ...) and applies it to Log.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	Log.SetLevel(lvl)
	return nil
}
