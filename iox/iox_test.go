package iox

import (
	"errors"
	"net"
	"testing"
)

type closer struct{ closed, halfClosed bool }

func (c *closer) Close() error      { c.closed = true; return errors.New("ignored") }
func (c *closer) CloseWrite() error { c.halfClosed = true; return nil }

func TestCloseWrite(t *testing.T) {
	c := &closer{}
	if err := CloseWrite(c); err != nil || !c.halfClosed {
		t.Errorf("CloseWrite = %v, halfClosed = %v", err, c.halfClosed)
	}

	a, b := net.Pipe()
	defer DiscardClose(a)
	defer DiscardClose(b)
	if err := CloseWrite(a); !errors.Is(err, ErrHalfCloseUnsupported) {
		t.Errorf("CloseWrite(pipe) = %v, want ErrHalfCloseUnsupported", err)
	}
}

func TestDiscardClose(t *testing.T) {
	c := &closer{}
	DiscardClose(c)
	if !c.closed {
		t.Error("expected Close to be called")
	}
}

func TestCloseFunc(t *testing.T) {
	c := &closer{}
	fn := CloseFunc(c)
	if c.closed {
		t.Fatal("CloseFunc must not close eagerly")
	}
	fn()
	if !c.closed {
		t.Error("expected Close to be called")
	}
}
