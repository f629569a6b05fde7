package logger

import (
	"io"

	"github.com/rs/zerolog"
)

var (
	stdoutLogger = zerolog.New(stdoutConsoleWriter).With().Timestamp().Logger().Level(zerolog.Level(DefaultLogLevel))
	stderrLogger = zerolog.New(stderrConsoleWriter).With().Timestamp().Logger().Level(zerolog.Level(DefaultLogLevel))
)

func SetTimestamp(enabled bool) {
	stdoutLogger = zerolog.New(stdoutConsoleWriter).Level(stdoutLogger.GetLevel())
	stderrLogger = zerolog.New(stderrConsoleWriter).Level(stderrLogger.GetLevel())
	if enabled {
		stdoutLogger = stdoutLogger.With().Timestamp().Logger()
		stderrLogger = stderrLogger.With().Timestamp().Logger()
	}
}

// Debug starts a new message with debug level.
//
// You must call Msg on the returned event in order to send the event.
func Debug() *zerolog.Event {
	return stdoutLogger.Debug()
}

// Info starts a new message with info level.
//
// You must call Msg on the returned event in order to send the event.
func Info() *zerolog.Event {
	return stdoutLogger.Info()
}

// Warning starts a new message with warn level.
//
// You must call Msg on the returned event in order to send the event.
func Warning() *zerolog.Event {
	return stdoutLogger.Warn()
}

// Error starts a new message with error level.
//
// You must call Msg on the returned event in order to send the event.
func Error() *zerolog.Event {
	return stderrLogger.Error()
}

// Err starts a new message with error level with err as a field if not nil or
// with info level if err is nil.
//
// You must call Msg on the returned event in order to send the event.
func Err(err error) *zerolog.Event {
	return stdoutLogger.Err(err)
}

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called by the Msg method, which terminates the program immediately.
//
// You must call Msg on the returned event in order to send the event.
func Fatal() *zerolog.Event {
	return stderrLogger.Fatal()
}

func Writer() io.Writer {
	return &stdoutLogger
}
