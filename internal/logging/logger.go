// Package logging configures the global structured logger used across the
// auction engine. It mirrors the teacher's utils.Info/Warn/Error/Fatal
// shape so every layer logs the same way.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// init sets sane defaults; Configure may be called once at boot to adjust
// the level from configuration.
func init() {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// Configure sets the log level from a string (e.g. "debug", "info", "warn").
// Unrecognized levels fall back to info.
func Configure(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// Info logs a message at info level with structured fields.
func Info(message string, fields map[string]any) {
	log.WithFields(fields).Info(message)
}

// Warn logs a message at warning level with structured fields.
func Warn(message string, fields map[string]any) {
	log.WithFields(fields).Warn(message)
}

// Error logs a message at error level with structured fields.
func Error(message string, fields map[string]any) {
	log.WithFields(fields).Error(message)
}

// Fatal logs a message at fatal level and exits the process.
func Fatal(message string, fields map[string]any) {
	log.WithFields(fields).Fatal(message)
}
