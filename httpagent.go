package httpagent

import (
	"github.com/rs/zerolog"

	"github.com/arn-dev/httpagent/internal/obslog"
)

// SetLogger installs l as the logger used by every internal package.
// The default is a no-op logger, so the library stays silent unless a
// caller installs one.
func SetLogger(l zerolog.Logger) { obslog.Set(l) }
