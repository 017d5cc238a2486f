package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the application logger. format is "json" or "console";
// unknown levels fall back to info.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

func NewWithWriter(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// Printf lets a zerolog.Logger stand in where a printf-style logger is expected
// (GORM's logger.Writer, for one).
type Printf struct {
	Log   zerolog.Logger
	Level zerolog.Level
}

func (p Printf) Printf(format string, args ...any) {
	p.Log.WithLevel(p.Level).Msgf(strings.TrimSpace(format), args...)
}
