package slogx

import (
	"fmt"
	"log/slog"
	"strings"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// Strings creates a slog.Attr holding a comma separated list, which keeps
// handlers that don't understand slices readable.
func Strings(key string, values []string) slog.Attr {
	return slog.String(key, strings.Join(values, ","))
}

const (
	// KeyLoggerName is the key for the name of the component emitting a record.
	KeyLoggerName = "logger"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
