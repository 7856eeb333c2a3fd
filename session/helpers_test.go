package session

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/justapithecus/framecap/log"
	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/transport"
	"github.com/justapithecus/framecap/types"
)

// fakePeer is the remote end of a net.Pipe session.
type fakePeer struct {
	conn  net.Conn
	lines chan string
}

// newPeer returns a dialer that connects to a fresh fake peer.
func newPeer(t *testing.T) (Dialer, *fakePeer) {
	t.Helper()
	client, server := net.Pipe()
	p := &fakePeer{conn: server, lines: make(chan string, 16)}

	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(server)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
	}()
	t.Cleanup(func() { _ = server.Close() })

	dial := func(context.Context) (*transport.Stream, error) {
		return transport.New(client, transport.Config{}), nil
	}
	return dial, p
}

// expect waits for the next command line from the controller.
func (p *fakePeer) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-p.lines:
		if !ok {
			t.Fatalf("connection closed, expected %q", want)
		}
		if got != want {
			t.Fatalf("peer received %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// rest drains the remaining command lines after the connection closed.
func (p *fakePeer) rest(t *testing.T) []string {
	t.Helper()
	var out []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return out
			}
			out = append(out, line)
		case <-timeout:
			t.Fatal("timed out draining peer lines")
		}
	}
}

func (p *fakePeer) write(t *testing.T, data string) {
	t.Helper()
	if _, err := p.conn.Write([]byte(data)); err != nil {
		t.Fatalf("peer write: %v", err)
	}
}

func (p *fakePeer) close() {
	_ = p.conn.Close()
}

func testMeta() *types.SessionMeta {
	return &types.SessionMeta{SessionID: "sess-1", Source: "feed"}
}

// newTestController builds a controller over a strict policy and stub sink.
func newTestController(t *testing.T, dial Dialer, sink *policy.StubSink, mutate func(*Config)) *Controller {
	t.Helper()
	cfg := Config{
		Meta:         testMeta(),
		Token:        "secret",
		DrainTimeout: 5 * time.Second,
		Policy:       policy.NewStrictPolicy(sink),
		Logger:       log.NewNop(),
		Dialer:       dial,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// waitResult waits for the session to end.
func waitResult(t *testing.T, c *Controller) *Result {
	t.Helper()
	done := make(chan *Result, 1)
	go func() { done <- c.Wait() }()
	select {
	case r := <-done:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func payloads(records []*types.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, string(r.Payload))
	}
	return out
}
