//go:build linux

package core

import "golang.org/x/sys/unix"

// currentThreadID returns the kernel id of the calling OS thread. Only
// meaningful after runtime.LockOSThread.
func currentThreadID() int {
	return unix.Gettid()
}
