//go:build !(darwin || linux)
// +build !darwin,!linux

package pool

import "net"

// peekLiveness has no portable non-blocking peek on this platform;
// idle connections are trusted until a real exchange proves otherwise.
func peekLiveness(c net.Conn) bool { return true }
