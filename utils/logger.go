package utils

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// init initializes the global logger configuration when the package is imported.
func init() {
	//set log formatter to JSON with ISO 8601 timestamps
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})

	// Output to stdout
	log.SetOutput(os.Stdout)

	// Set default log level
	log.SetLevel(log.InfoLevel)
}

// InitLogger applies the configured level and format (json|text)
func InitLogger(level, format string) error {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}
	return nil
}

// Debug logs a message at debug level with optional fields
func Debug(message string, fields map[string]any) {
	log.WithFields(fields).Debug(message)
}

// Info logs a message at info level with optional fields
func Info(message string, fields map[string]any) {
	log.WithFields(fields).Info(message)
}

// Warn logs a message at warning level with optional fields
func Warn(message string, fields map[string]any) {
	log.WithFields(fields).Warn(message)
}

// Error logs a message at error level with optional fields
func Error(message string, fields map[string]any) {
	log.WithFields(fields).Error(message)
}

// Fatal logs a message at fatal level and exits the application
func Fatal(message string, fields map[string]any) {
	log.WithFields(fields).Fatal(message)
}
