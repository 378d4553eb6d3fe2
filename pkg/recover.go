package pkg

import "runtime/debug"

// Recover is meant to be deferred at the top of every goroutine the library
// spawns, so a panic in user-supplied callbacks never kills the process.
func Recover() {
	if r := recover(); r != nil {
		DefaultLogger.Errorf("panic recovered: %v\nstack: %s", r, debug.Stack())
	}
}
