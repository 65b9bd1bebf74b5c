package stepcompress

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// componentLogger returns a logger tagged with the owning stepper's
// oid. Logging here is reserved for the fault path -- an invalid move
// or a direction change, not the steady-state per-step traffic, which
// would dwarf everything else at any real step rate.
func componentLogger(oid uint32) zerolog.Logger {
	return log.With().Uint32("oid", oid).Logger()
}
