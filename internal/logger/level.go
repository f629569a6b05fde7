package logger

import (
	"strings"

	"github.com/rs/zerolog"
)

type Level zerolog.Level

const (
	// TraceLevel defines trace log level.
	TraceLevel = Level(zerolog.TraceLevel)
	// DebugLevel defines debug log level.
	DebugLevel = Level(zerolog.DebugLevel)
	// InfoLevel defines info log level.
	InfoLevel = Level(zerolog.InfoLevel)
	// WarningLevel defines warn log level.
	WarningLevel = Level(zerolog.WarnLevel)
	// ErrorLevel defines error log level.
	ErrorLevel = Level(zerolog.ErrorLevel)
	// FatalLevel defines fatal log level.
	FatalLevel = Level(zerolog.FatalLevel)
	// Disabled disables the logger.
	Disabled = Level(zerolog.Disabled)
)

const DefaultLogLevel = InfoLevel

func LogLevel() Level {
	if stdoutLevel, stderrLevel := stdoutLogger.GetLevel(), stderrLogger.GetLevel(); stdoutLevel < stderrLevel {
		return Level(stdoutLevel)
	} else {
		return Level(stderrLevel)
	}
}

func SetLogLevel(level Level) {
	stdoutLogger = stdoutLogger.Level(zerolog.Level(level))
	stderrLogger = stderrLogger.Level(zerolog.Level(level))
}

// ParseLevel maps a config string onto a log level, defaulting to the
// current DefaultLogLevel for unknown values.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarningLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	case "off", "disabled":
		return Disabled
	default:
		return DefaultLogLevel
	}
}
