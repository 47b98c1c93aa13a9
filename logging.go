package polystore

import (
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"
)

// nullLogger returns a logger that discards everything. Used whenever an
// Options.Logger is left unset.
func nullLogger() *slog.Logger {
	return slogutil.Null()
}
