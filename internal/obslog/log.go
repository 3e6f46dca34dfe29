// Package obslog centralizes the package-level zerolog.Logger used
// across the agent's internals. The default is a no-op logger so the
// library stays silent unless a caller installs one.
package obslog

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Value

func init() {
	current.Store(zerolog.Nop())
}

// Set installs l as the logger used by every internal package.
func Set(l zerolog.Logger) {
	current.Store(l)
}

// SetPretty installs a human-readable console logger at the given level,
// convenient for local debugging (mirrors always-cache's dev logger setup).
func SetPretty(level zerolog.Level) {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	Set(l)
}

// L returns the currently installed logger.
func L() zerolog.Logger {
	return current.Load().(zerolog.Logger)
}
