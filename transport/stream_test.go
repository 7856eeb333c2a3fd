package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/justapithecus/framecap/iox"
)

func pipeStream(t *testing.T, cfg Config) (*Stream, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	s := New(client, cfg)
	t.Cleanup(func() {
		_ = s.Close()
		_ = server.Close()
	})
	return s, server
}

func collect(t *testing.T, s *Stream) []byte {
	t.Helper()
	var buf bytes.Buffer
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-s.Chunks():
			if !ok {
				return buf.Bytes()
			}
			buf.Write(c.Data)
		case <-timeout:
			t.Fatal("timed out waiting for stream end")
		}
	}
}

func TestStream_ReadsUntilEOF(t *testing.T) {
	s, server := pipeStream(t, Config{ReadSize: 4})

	go func() {
		_, _ = server.Write([]byte("$hello;$world;"))
		_ = server.Close()
	}()

	got := collect(t, s)
	if string(got) != "$hello;$world;" {
		t.Errorf("read %q", got)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil on EOF", err)
	}
	stats := s.Stats()
	if stats.BytesRead != 14 {
		t.Errorf("BytesRead = %d, want 14", stats.BytesRead)
	}
	if stats.Chunks < 4 {
		t.Errorf("Chunks = %d, want at least 4 with ReadSize 4", stats.Chunks)
	}
}

func TestStream_SlowConsumerSuspendsReading(t *testing.T) {
	s, server := pipeStream(t, Config{ReadSize: 8})

	written := make(chan int, 1)
	go func() {
		total := 0
		for i := 0; i < 4; i++ {
			n, err := server.Write([]byte("01234567"))
			total += n
			if err != nil {
				break
			}
		}
		written <- total
		_ = server.Close()
	}()

	// Nobody is receiving: the reader holds one chunk and the pipe blocks the writer.
	time.Sleep(50 * time.Millisecond)
	select {
	case n := <-written:
		t.Fatalf("peer wrote %d bytes without a consumer", n)
	default:
	}

	got := collect(t, s)
	if len(got) != 32 {
		t.Errorf("read %d bytes, want 32", len(got))
	}
	if <-written != 32 {
		t.Error("peer write incomplete")
	}
	if s.Stats().Stalls == 0 {
		t.Error("expected at least one stall")
	}
}

func TestStream_SendDrainsBeforeClose(t *testing.T) {
	s, server := pipeStream(t, Config{})

	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(server)
		received <- data
	}()

	for _, msg := range []string{"AUTH secret\n", "STATUS\n"} {
		if err := s.Send(t.Context(), []byte(msg)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "AUTH secret\nSTATUS\n" {
			t.Errorf("peer received %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("peer never saw EOF")
	}
	if s.Stats().BytesWritten != int64(len("AUTH secret\nSTATUS\n")) {
		t.Errorf("BytesWritten = %d", s.Stats().BytesWritten)
	}
	if err := s.Send(t.Context(), []byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after shutdown = %v, want ErrClosed", err)
	}
}

func TestStream_ShutdownBoundedByContext(t *testing.T) {
	s, _ := pipeStream(t, Config{})

	// The peer never reads, so the write blocks until the deadline.
	if err := s.Send(t.Context(), []byte("STATUS\n")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Shutdown(ctx)
	if err == nil {
		t.Fatal("expected error from undrained shutdown")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("shutdown took %v", time.Since(start))
	}
}

func TestStream_ShutdownReleasesBlockedReader(t *testing.T) {
	s, server := pipeStream(t, Config{})

	go func() { _, _ = server.Write([]byte("$hello;")) }()
	time.Sleep(20 * time.Millisecond)

	// Reader is parked on the hand-off; Shutdown must not hang.
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine did not exit")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() after local close = %v, want nil", err)
	}
}

func TestStream_WriteErrorIsSticky(t *testing.T) {
	s, server := pipeStream(t, Config{})
	_ = server.Close()

	_ = s.Send(t.Context(), []byte("AUTH x\n"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := s.Send(t.Context(), []byte("STATUS\n"))
		if err != nil {
			if errors.Is(err, ErrClosed) {
				t.Fatalf("unexpected ErrClosed: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("write error never surfaced")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDial_TCPHalfClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(iox.CloseFunc(ln))

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer iox.DiscardClose(conn)
		_, _ = conn.Write([]byte("$ready;"))
		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	s, err := Dial(t.Context(), "tcp", ln.Addr().String(), Config{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if s.RemoteAddr() != ln.Addr().String() {
		t.Errorf("RemoteAddr = %q", s.RemoteAddr())
	}

	select {
	case c := <-s.Chunks():
		if string(c.Data) != "$ready;" {
			t.Errorf("first chunk = %q", c.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no data from server")
	}

	if err := s.Send(t.Context(), []byte("STATUS\n")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case got := <-received:
		if got != "STATUS\n" {
			t.Errorf("server received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw EOF")
	}
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := Dial(t.Context(), "tcp", addr, Config{DialTimeout: time.Second}); err == nil {
		t.Fatal("expected dial error")
	}
}
