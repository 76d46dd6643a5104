package log

import "github.com/sirupsen/logrus"

// New builds the application logger with the given level name.
// Unknown level names fall back to info.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
		logger.Warnf("Unknown log level %q, using info", level)
	}
	logger.SetLevel(parsed)
	return logger
}
