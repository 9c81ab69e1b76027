package util

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Log file rotation limits.
const (
	LogFileMaxSizeMB  = 50
	LogFileMaxBackups = 5
	LogFileMaxAgeDays = 30
)

// SetupLogging - Set the log level and, if a file is given, also log to a rotated file.
func SetupLogging(level string, file string) error {
	parsedLevel, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	log.SetLevel(parsedLevel)

	if file != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    LogFileMaxSizeMB,
			MaxBackups: LogFileMaxBackups,
			MaxAge:     LogFileMaxAgeDays,
			Compress:   true,
		}))
	}
	return nil
}
