// Package iox provides I/O helpers for resource cleanup and stream shutdown.
package iox

import (
	"errors"
	"io"
)

// ErrHalfCloseUnsupported is returned by CloseWrite for connections
// without a write half-close.
var ErrHalfCloseUnsupported = errors.New("half-close not supported")

// WriteCloser is implemented by connections that can shut down their
// write side independently (*net.TCPConn, *net.UnixConn, *tls.Conn).
type WriteCloser interface {
	CloseWrite() error
}

// CloseWrite half-closes c when it supports it.
func CloseWrite(c any) error {
	if wc, ok := c.(WriteCloser); ok {
		return wc.CloseWrite()
	}
	return ErrHalfCloseUnsupported
}

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(conn))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}
