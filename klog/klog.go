// Package klog gives the bare fmt.Printf status lines the teacher's
// actors write (e.g. "GameActor %s: Processing Started message.") a
// level and a single sink, satisfying the log(level, text) external
// collaborator contract from spec.md §6 without pulling in a structured
// logging framework the rest of the kernel doesn't need.
package klog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level mirrors the four severities the log(level, text) contract names.
type Level int32

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sink is the shape of the log(level, text) contract. Nothing in this
// package attaches or calls a Sink: every line goes only to the default
// writer.
type Sink interface {
	Log(level Level, text string)
}

var minLevel atomic.Int32

func init() { minLevel.Store(int32(Info)) }

// SetMinLevel changes the process-wide minimum level written to the
// default sink. Defaults to Info.
func SetMinLevel(l Level) { minLevel.Store(int32(l)) }

var std = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

func writeLine(level Level, text string) {
	if Level(minLevel.Load()) > level {
		return
	}
	std.Printf("[%s] %s", level, text)
}

// Logf writes a formatted line at the given level, dropped when level is
// below the minimum set by SetMinLevel, mirroring the teacher's
// actor-prefixed status lines.
func Logf(level Level, format string, args ...interface{}) {
	writeLine(level, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) { Logf(Debug, format, args...) }
func Infof(format string, args ...interface{})  { Logf(Info, format, args...) }
func Warnf(format string, args ...interface{})  { Logf(Warn, format, args...) }
func Errorf(format string, args ...interface{}) { Logf(Error, format, args...) }
