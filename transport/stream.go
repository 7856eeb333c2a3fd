// Package transport provides the ordered byte stream a session reads from.
//
// A Stream runs one reader goroutine and one writer goroutine over a
// net.Conn. Inbound chunks are handed over an unbuffered channel, so a
// consumer that stops receiving suspends reading from the socket. Outbound
// messages go through a bounded queue that is drained before the
// connection closes.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/framecap/iox"
)

// Defaults.
const (
	DefaultReadSize     = 32 * 1024
	DefaultWriteQueue   = 16
	DefaultDialTimeout  = 10 * time.Second
	DefaultCloseTimeout = 5 * time.Second
)

// ErrClosed is returned by Send after the stream began shutting down.
var ErrClosed = errors.New("transport: stream closed")

// Chunk is one read from the connection. Data is owned by the receiver.
type Chunk struct {
	Data       []byte
	ReceivedAt time.Time
}

// Stats is a point-in-time view of stream counters.
type Stats struct {
	// BytesRead is the total bytes received.
	BytesRead int64
	// Chunks is the number of chunks delivered.
	Chunks int64
	// Stalls counts reads whose hand-off had to wait for the consumer.
	Stalls int64
	// BytesWritten is the total bytes sent.
	BytesWritten int64
}

// Config configures a Stream.
type Config struct {
	// ReadSize is the read buffer size (default DefaultReadSize).
	ReadSize int
	// WriteQueue bounds queued outbound messages (default DefaultWriteQueue).
	WriteQueue int
	// DialTimeout bounds connection establishment (default DefaultDialTimeout).
	DialTimeout time.Duration
	// TLS enables TLS when non-nil.
	TLS *tls.Config
}

func (c Config) withDefaults() Config {
	if c.ReadSize <= 0 {
		c.ReadSize = DefaultReadSize
	}
	if c.WriteQueue <= 0 {
		c.WriteQueue = DefaultWriteQueue
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Stream is a full-duplex byte stream over a net.Conn.
type Stream struct {
	conn net.Conn
	cfg  Config

	chunks     chan Chunk
	readerDone chan struct{}
	readErr    error // valid after readerDone is closed

	sendMu     sync.RWMutex
	sendClosed bool
	out        chan []byte
	writerDone chan struct{}
	writeErr   atomic.Pointer[error]

	closeOnce sync.Once
	closing   chan struct{}
	closed    atomic.Bool
	closeErr  error

	bytesRead    atomic.Int64
	chunkCount   atomic.Int64
	stalls       atomic.Int64
	bytesWritten atomic.Int64
}

// Dial connects to address and starts the stream.
func Dial(ctx context.Context, network, address string, cfg Config) (*Stream, error) {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if cfg.TLS != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: cfg.TLS}
		conn, err = td.DialContext(ctx, network, address)
	} else {
		conn, err = dialer.DialContext(ctx, network, address)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", network, address, err)
	}
	return New(conn, cfg), nil
}

// New starts a stream over an established connection.
// The stream owns conn and closes it on Close.
func New(conn net.Conn, cfg Config) *Stream {
	cfg = cfg.withDefaults()
	s := &Stream{
		conn:       conn,
		cfg:        cfg,
		chunks:     make(chan Chunk),
		readerDone: make(chan struct{}),
		out:        make(chan []byte, cfg.WriteQueue),
		writerDone: make(chan struct{}),
		closing:    make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// RemoteAddr returns the peer address.
func (s *Stream) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Chunks returns the inbound chunk channel. It is closed when the peer
// ends the stream, a read fails or the stream is closed; Err then
// reports why.
func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// Err returns the read error after Chunks is closed.
// A clean EOF or a local Close yields nil.
func (s *Stream) Err() error {
	select {
	case <-s.readerDone:
		return s.readErr
	default:
		return nil
	}
}

// Done is closed when the reader goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.readerDone
}

func (s *Stream) readLoop() {
	defer close(s.readerDone)
	defer close(s.chunks)

	buf := make([]byte, s.cfg.ReadSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := Chunk{Data: append([]byte(nil), buf[:n]...), ReceivedAt: time.Now()}
			s.bytesRead.Add(int64(n))
			if !s.deliver(chunk) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				s.readErr = fmt.Errorf("transport: read: %w", err)
			}
			return
		}
	}
}

// deliver hands a chunk to the consumer, counting a stall when the
// consumer is not ready. Returns false when the stream is closing.
func (s *Stream) deliver(chunk Chunk) bool {
	select {
	case s.chunks <- chunk:
		s.chunkCount.Add(1)
		return true
	default:
	}

	s.stalls.Add(1)
	select {
	case s.chunks <- chunk:
		s.chunkCount.Add(1)
		return true
	case <-s.closing:
		return false
	}
}

// Send queues data for the writer goroutine. It blocks while the queue
// is full. A previous write failure is returned to every later Send.
func (s *Stream) Send(ctx context.Context, data []byte) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.sendClosed {
		return ErrClosed
	}
	if err := s.loadWriteErr(); err != nil {
		return err
	}
	select {
	case s.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) writeLoop() {
	defer close(s.writerDone)

	// Keep draining after a failure so blocked senders are released.
	for data := range s.out {
		if s.loadWriteErr() != nil {
			continue
		}
		n, err := s.conn.Write(data)
		s.bytesWritten.Add(int64(n))
		if err != nil {
			werr := fmt.Errorf("transport: write: %w", err)
			s.writeErr.Store(&werr)
		}
	}
}

func (s *Stream) loadWriteErr() error {
	if p := s.writeErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Shutdown drains queued outbound messages, half-closes the write side
// where supported, then closes the connection. Draining is bounded by
// ctx: once it is done, pending writes fail and the connection closes.
// Returns the first write error, or ctx's error if draining was cut short.
func (s *Stream) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown(ctx)
	})
	return s.closeErr
}

func (s *Stream) shutdown(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	s.sendMu.Lock()
	s.sendClosed = true
	close(s.out)
	s.sendMu.Unlock()

	var drainErr error
	select {
	case <-s.writerDone:
	case <-ctx.Done():
		drainErr = ctx.Err()
	}

	_ = iox.CloseWrite(s.conn)

	s.closed.Store(true)
	close(s.closing)
	closeErr := s.conn.Close()
	<-s.writerDone
	<-s.readerDone

	if drainErr != nil {
		return drainErr
	}
	if err := s.loadWriteErr(); err != nil {
		return err
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return closeErr
	}
	return nil
}

// Close shuts the stream down with DefaultCloseTimeout.
func (s *Stream) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCloseTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Stats returns a snapshot of stream counters.
func (s *Stream) Stats() Stats {
	return Stats{
		BytesRead:    s.bytesRead.Load(),
		Chunks:       s.chunkCount.Load(),
		Stalls:       s.stalls.Load(),
		BytesWritten: s.bytesWritten.Load(),
	}
}
