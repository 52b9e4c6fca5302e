package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. Verbose forces debug level.
func Setup(level string, verbose bool) error {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
		return nil
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
