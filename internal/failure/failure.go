// Package failure implements the engine's top-level failure policy (§5, §7,
// §9): a data-integrity violation (an unknown wire symbol), a full fan-in
// queue, or an unhandled panic in a guarded worker terminates the process
// immediately with a nonzero exit code. The strategy does not call into this
// package: an order update that does not match the head of its active path
// is ignored, and an order error abandons the chain without exiting.
// Liveness is restored by process supervision outside the engine, not by
// in-process recovery.
package failure

import (
	"fmt"
	"log/slog"
	"os"
)

// Crash logs reason at error level and exits the process with status 1. It
// never returns.
func Crash(log *slog.Logger, reason string, args ...any) {
	log.Error(reason, args...)
	os.Exit(1)
}

// Guard recovers a panic in the calling goroutine, logs it through Crash,
// and exits. Every long-running worker goroutine (stream adapter, OMS
// session) defers this first so a programmer error surfaces as a loud
// process exit instead of a silently dead goroutine.
func Guard(log *slog.Logger, component string) {
	if r := recover(); r != nil {
		Crash(log, "unhandled panic, terminating process", "component", component, "panic", fmt.Sprint(r))
	}
}
