package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Level   string
	Format  string // console, json
	NoColor bool
	Out     io.Writer
}

// InitDefault sets up a console logger used until flags are parsed.
func InitDefault() {
	Init(Options{Level: "info", Format: "console"})
}

// Init configures the global zerolog logger.
func Init(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = out
	if opts.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: time.TimeOnly,
		}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}
