// Package logger configures the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ParseLevel maps a level name to a logrus level. An empty name means info.
func ParseLevel(name string) (logrus.Level, error) {
	if name == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return lvl, nil
}

// SetLoggerToStructured switches the standard logger to JSON lines on stderr,
// duplicated into filePath when one is given. It returns a closer for the
// file sink.
func SetLoggerToStructured(level logrus.Level, filePath string) io.Closer {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(level)

	if filePath == "" {
		logrus.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		logrus.WithError(err).Error("Could not create file for logging")
		return io.NopCloser(nil)
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, file))
	return file
}
