package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled gates the verbose trace.* event kinds. Read once from the
// environment at startup; atomic so the UI goroutine can read while tests
// flip it.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("REELFEED_TRACE") != "")
}

// TraceEnabled reports whether REELFEED_TRACE is set. When false, message
// tracing costs a single atomic load per check.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
