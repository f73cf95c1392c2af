//go:build !linux

package loggingutil

import "os"

func threadID() int {
	return os.Getpid()
}
