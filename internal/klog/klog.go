// Package klog is the kernel's console logger. It replaces the
// teacher's direct fmt.Printf-to-serial calls (main.go's tfdump,
// netdump, sizedump, kbd_daemon) with a small level-tagged wrapper
// around an io.Writer sink, keeping the same "just format text" idiom
// rather than adopting a hosted-process logging framework (see
// DESIGN.md "Ambient stack / Logging").
package klog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level tags a log line the way the teacher's ad hoc "[TRACE]"/
// "***"-prefixed prints do, formalized into four levels.
type Level int

const (
	LevelTrace Level = iota
	LevelInfo
	LevelWarn
	LevelPanic
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelPanic:
		return "PANIC"
	default:
		return "?"
	}
}

// Sink is the destination for log output — in the booted kernel this
// is the serial console (spec §6 "Trace log output format" goes "to
// the serial console"); under `go test` it is os.Stderr.
var (
	mu   sync.Mutex
	sink io.Writer = os.Stderr
)

// SetSink redirects kernel log output, e.g. to the serial-port driver
// once it is brought up during boot.
func SetSink(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
}

// Printf writes a level-tagged line. Safe to call concurrently; not
// safe to call from //go:nosplit interrupt-context code — use Unsafe
// for that (it performs no formatting, just writes raw bytes).
func Printf(lvl Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(sink, "[%s] "+format+"\n", append([]interface{}{lvl}, args...)...)
}

func Trace(format string, args ...interface{}) { Printf(LevelTrace, format, args...) }
func Info(format string, args ...interface{})  { Printf(LevelInfo, format, args...) }
func Warn(format string, args ...interface{})  { Printf(LevelWarn, format, args...) }

// TraceEntry emits the syscall-entry trace line in the exact format
// spec §6 requires.
func TraceEntry(pid int, name string, num uintptr, args [6]uintptr) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(sink, "[TRACE] pid=%d %s(%d) args=(%x %x %x %x %x %x)\n",
		pid, name, num, args[0], args[1], args[2], args[3], args[4], args[5])
}

// TraceExit emits the syscall-exit trace line; errnoName is "" when
// ret >= 0 (success), or the decoded errno name on failure.
func TraceExit(pid int, name string, num uintptr, ret int64, errnoName string) {
	mu.Lock()
	defer mu.Unlock()
	if errnoName != "" {
		fmt.Fprintf(sink, "[TRACE] pid=%d %s(%d) → %x (%s)\n", pid, name, num, ret, errnoName)
	} else {
		fmt.Fprintf(sink, "[TRACE] pid=%d %s(%d) → %x (%d)\n", pid, name, num, ret, ret)
	}
}

// Unsafe writes raw bytes with no formatting and no lock; it is the
// only logging primitive allowed from nosplit interrupt-context code
// (spec §4.10), matching the teacher's discipline around trapstub:
// "cannot do anything that may have side-effects on the runtime".
func Unsafe(b []byte) {
	sink.Write(b)
}

// Panic logs at PANIC level and is the last thing called before the
// kernel-level invariant-violation halt path (spec §7) takes over; it
// never returns control to the caller in the real boot path, but does
// not itself call panic() so tests can observe the formatted line.
func Panic(format string, args ...interface{}) {
	Printf(LevelPanic, format, args...)
}
