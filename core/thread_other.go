//go:build !linux

package core

func currentThreadID() int {
	return -1
}
