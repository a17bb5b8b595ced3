package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	return zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ForAttempt returns a child logger tagged with checkout attempt fields.
// Customer details are never attached.
func ForAttempt(logger zerolog.Logger, attemptID, productID string) zerolog.Logger {
	return logger.With().
		Str("attempt_id", attemptID).
		Str("product_id", productID).
		Logger()
}
