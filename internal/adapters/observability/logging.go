package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog Logger tagged with the binary name.
// APP_ENV=dev (or development) uses a human-friendly console writer and
// debug level; anything else logs JSON at info.
func NewLogger(env, component string) zerolog.Logger {
	var w io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if env == "dev" || env == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}
