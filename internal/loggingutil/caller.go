package loggingutil

import (
	"os"
	"runtime"
)

// CallerFields describes the execution context of the calling goroutine as
// log key/value pairs: process id, OS thread id and the live goroutine count.
// The thread id is only meaningful for the instant it is sampled, since the
// scheduler may migrate the goroutine afterwards.
func CallerFields() []any {
	return []any{
		"pid", os.Getpid(),
		"tid", threadID(),
		"goroutines", runtime.NumGoroutine(),
	}
}
