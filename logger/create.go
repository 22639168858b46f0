package logger

import (
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const (
	LogLevelFlag = "loglevel"

	consoleTimeFormat = time.RFC3339
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = utcNow
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// New builds the root console logger at the given level.
func New(level zerolog.Level) *zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        colorable.NewColorable(os.Stderr),
		TimeFormat: consoleTimeFormat,
	}
	log := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	return &log
}

// CreateLoggerFromContext builds the root logger from the CLI's loglevel
// flag, falling back to info on an unparsable level.
func CreateLoggerFromContext(c *cli.Context) *zerolog.Logger {
	level, err := zerolog.ParseLevel(c.String(LogLevelFlag))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return New(level)
}
