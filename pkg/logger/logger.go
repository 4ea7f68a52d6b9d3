package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger with the given level and format. Format "json"
// produces one JSON object per line for log shippers; anything else falls
// back to the human-readable text formatter.
func New(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return logger
}
