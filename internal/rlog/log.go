// Package rlog provides the leveled, context-tagged logging used across
// arsync. Every call takes the object being logged about as its first
// argument (a path string, an entry, or nil for global messages) followed
// by a Printf-style format, mirroring the logging idiom the rest of this
// tree is built against.
package rlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level controls which calls actually print.
type Level int32

const (
	// LevelError only prints Errorf calls.
	LevelError Level = iota
	// LevelNotice prints Errorf and Logf calls.
	LevelNotice
	// LevelInfo adds Infof.
	LevelInfo
	// LevelDebug prints everything.
	LevelDebug
)

var current int32 = int32(LevelNotice)

// SetLevel adjusts the global verbosity, safe to call concurrently with
// logging calls.
func SetLevel(l Level) {
	atomic.StoreInt32(&current, int32(l))
}

func enabled(l Level) bool {
	return Level(atomic.LoadInt32(&current)) >= l
}

var logger = log.New(os.Stderr, "", log.LstdFlags)

func format(ctx interface{}, format string, args []interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if ctx == nil {
		return msg
	}
	return fmt.Sprintf("%v: %s", ctx, msg)
}

// Debugf logs at debug level about ctx.
func Debugf(ctx interface{}, f string, args ...interface{}) {
	if enabled(LevelDebug) {
		logger.Print("DEBUG : " + format(ctx, f, args))
	}
}

// Infof logs at info level about ctx.
func Infof(ctx interface{}, f string, args ...interface{}) {
	if enabled(LevelInfo) {
		logger.Print("INFO  : " + format(ctx, f, args))
	}
}

// Logf logs at notice level about ctx - always visible unless running quiet.
func Logf(ctx interface{}, f string, args ...interface{}) {
	if enabled(LevelNotice) {
		logger.Print("NOTICE: " + format(ctx, f, args))
	}
}

// Errorf logs at error level about ctx.
func Errorf(ctx interface{}, f string, args ...interface{}) {
	if enabled(LevelError) {
		logger.Print("ERROR : " + format(ctx, f, args))
	}
}
