package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds the process logger: human-readable console output on a terminal,
// plain JSON lines otherwise (the scheduler captures stdout).
func New(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger()
}
