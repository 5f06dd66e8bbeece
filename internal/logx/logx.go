// Package logx centralizes the leveled logger used across the fabric, the
// codec, the shard server, and cmd/kvtest. It plays the role a gated
// DPrintf(format, ...) helper would play, but backed by zerolog so level
// filtering is cheap and structured fields are free.
package logx

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var base = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

var debugEnabled int32

// SetDebug toggles whether Debug-level records are emitted. Mirrors a
// `const Debug = true/false` compile-time gate, but settable at runtime
// so a single test binary can enable it per-scenario.
func SetDebug(on bool) {
	if on {
		atomic.StoreInt32(&debugEnabled, 1)
		base = base.Level(zerolog.DebugLevel)
	} else {
		atomic.StoreInt32(&debugEnabled, 0)
		base = base.Level(zerolog.InfoLevel)
	}
}

// Named returns a child logger tagged with a component name, e.g.
// Named("labrpc") or Named("kvsrv").
func Named(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// SetWriter overrides the sink, used by cmd/kvtest to install a
// zerolog.ConsoleWriter for human-readable scenario output.
func SetWriter(w zerolog.Logger) {
	base = w
}
