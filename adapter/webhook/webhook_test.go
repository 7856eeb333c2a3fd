package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/framecap/adapter"
	"github.com/justapithecus/framecap/iox"
)

func completedEvent() *adapter.SessionCompletedEvent {
	return &adapter.SessionCompletedEvent{
		ContractVersion: "0.1.0",
		EventType:       adapter.EventTypeSessionCompleted,
		SessionID:       "sess-001",
		Source:          "feed",
		Day:             "2026-02-07",
		Outcome:         "completed",
		StoragePath:     "/data/datasets/framecap/partitions/source=feed/day=2026-02-07/session_id=sess-001",
		Timestamp:       "2026-02-07T12:00:00Z",
		StatusSent:      true,
		TotalRecords:    42,
		TextRecords:     40,
		BinaryRecords:   2,
		DurationMs:      1500,
	}
}

// receiver answers with codes in order, repeating the last one, and
// records every request it sees.
type receiver struct {
	mu       sync.Mutex
	codes    []int
	delay    time.Duration
	requests []*http.Request
	bodies   []adapter.SessionCompletedEvent
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ev adapter.SessionCompletedEvent
	_ = json.NewDecoder(r.Body).Decode(&ev)

	rc.mu.Lock()
	rc.requests = append(rc.requests, r)
	rc.bodies = append(rc.bodies, ev)
	n := len(rc.requests)
	code := http.StatusOK
	if len(rc.codes) > 0 {
		code = rc.codes[min(n, len(rc.codes))-1]
	}
	rc.mu.Unlock()

	if rc.delay > 0 {
		select {
		case <-time.After(rc.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.WriteHeader(code)
}

func (rc *receiver) attempts() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.requests)
}

func startReceiver(t *testing.T, rc *receiver) string {
	t.Helper()
	ts := httptest.NewServer(rc)
	t.Cleanup(ts.Close)
	return ts.URL
}

func newAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { iox.DiscardClose(a) })
	return a
}

func TestPublish_DeliversEventWithHeaders(t *testing.T) {
	rc := &receiver{}
	a := newAdapter(t, Config{
		URL: startReceiver(t, rc),
		Headers: map[string]string{
			"Authorization": "Bearer test-token",
			HeaderSession:   "spoofed",
		},
	})

	if err := a.Publish(t.Context(), completedEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rc.attempts() != 1 {
		t.Fatalf("attempts = %d, want 1", rc.attempts())
	}

	req := rc.requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s", req.Method)
	}
	for header, want := range map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer test-token",
		HeaderEvent:     adapter.EventTypeSessionCompleted,
		HeaderSession:   "sess-001",
	} {
		if got := req.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	got := rc.bodies[0]
	if got.SessionID != "sess-001" || got.Outcome != "completed" || got.TextRecords != 40 || got.BinaryRecords != 2 {
		t.Errorf("body = %+v", got)
	}
}

func TestPublish_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		codes        []int
		retries      int
		wantErr      bool
		wantAttempts int
	}{
		{name: "200", codes: []int{200}, retries: 3, wantAttempts: 1},
		{name: "204", codes: []int{204}, retries: 3, wantAttempts: 1},
		{name: "recovers after 5xx", codes: []int{500, 503, 200}, retries: 3, wantAttempts: 3},
		{name: "5xx exhausts retries", codes: []int{502}, retries: 2, wantErr: true, wantAttempts: 3},
		{name: "400 is final", codes: []int{400}, retries: 3, wantErr: true, wantAttempts: 1},
		{name: "401 is final", codes: []int{401}, retries: 3, wantErr: true, wantAttempts: 1},
		{name: "404 after 500", codes: []int{500, 404}, retries: 3, wantErr: true, wantAttempts: 2},
		{name: "304 is final", codes: []int{304}, retries: 3, wantErr: true, wantAttempts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &receiver{codes: tt.codes}
			a := newAdapter(t, Config{URL: startReceiver(t, rc), Retries: tt.retries, Backoff: time.Millisecond})

			err := a.Publish(t.Context(), completedEvent())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Publish error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := rc.attempts(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestPublish_ContextDeadline(t *testing.T) {
	rc := &receiver{delay: 5 * time.Second}
	a := newAdapter(t, Config{URL: startReceiver(t, rc)})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, completedEvent()); err == nil {
		t.Fatal("expected error once the context expires")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     bool
		wantTimeout time.Duration
	}{
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "negative retries", cfg: Config{URL: "http://example.com", Retries: -1}, wantErr: true},
		{name: "default timeout", cfg: Config{URL: "http://example.com"}, wantTimeout: DefaultTimeout},
		{name: "explicit timeout", cfg: Config{URL: "http://example.com", Timeout: time.Second, Retries: 5}, wantTimeout: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if a.cfg.Timeout != tt.wantTimeout || a.client.Timeout != tt.wantTimeout {
				t.Errorf("timeout = %v, want %v", a.cfg.Timeout, tt.wantTimeout)
			}
			if a.cfg.Retries != tt.cfg.Retries {
				t.Errorf("retries = %d, want %d", a.cfg.Retries, tt.cfg.Retries)
			}
		})
	}
}
