package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a logger at the configured level. Unknown levels fall
// back to info with a warning rather than failing startup, since the guard
// is usually launched by qBittorrent where a typo in LOG_LEVEL would
// otherwise silently disable the hook.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
		logger.WithField("level", level).Warn("Unknown log level, using info")
	}
	logger.SetLevel(logLevel)

	return logger
}
