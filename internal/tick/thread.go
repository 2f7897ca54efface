// Package tick drives the fixed-rate simulation loop and owns the tick-thread
// identity every TickThreadOnly code path asserts against.
package tick

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/caelmor/world/internal/fault"
)

// tickGoroutine holds the goroutine id of the running tick loop, 0 when no
// loop is active. Go deliberately hides goroutine ids, so one is parsed out of
// runtime.Stack when the tick thread is captured; the per-call parse in
// OnTickThread is only paid when assertions are explicitly enabled.
var tickGoroutine atomic.Int64

var assertionsEnabled atomic.Bool

// EnableAssertions turns tick-thread assertions on or off process-wide.
// They are off until turned on: worldd sets them from the tick.assert_tick_thread
// config, and tests that check the assertion turn them on. Build tags do not
// change them.
func EnableAssertions(on bool) { assertionsEnabled.Store(on) }

// AssertionsEnabled reports the current assertion mode.
func AssertionsEnabled() bool { return assertionsEnabled.Load() }

func currentGoroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	// "goroutine 123 [running]: ..."
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func captureTickThread() { tickGoroutine.Store(currentGoroutineID()) }

func clearTickThread() { tickGoroutine.Store(0) }

// OnTickThread reports whether the caller runs on the captured tick thread.
// Always true when assertions are disabled, so release builds pay nothing.
func OnTickThread() bool {
	if !assertionsEnabled.Load() {
		return true
	}
	id := tickGoroutine.Load()
	return id != 0 && id == currentGoroutineID()
}

// AssertTickThread returns a fatal TickThreadViolation when the caller is not
// the tick thread. Nil when assertions are disabled.
func AssertTickThread(op string) error {
	if OnTickThread() {
		return nil
	}
	return fault.Invariant(fault.TickThreadViolation, "%s called off the tick thread", op)
}
