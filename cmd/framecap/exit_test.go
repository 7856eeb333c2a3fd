package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/framecap/session"
)

func TestExitErrHandler_NilError(_ *testing.T) {
	// Must not exit on nil.
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"completed no message", cli.Exit("", session.ExitCodeCompleted), 0, ""},
		{"incomplete no message", cli.Exit("", session.ExitCodeIncomplete), 1, ""},
		{"transport with message", cli.Exit("connection refused", session.ExitCodeTransport), 2, "connection refused"},
		{"storage", cli.Exit("disk full", session.ExitCodeStorage), 3, "disk full"},
		{"protocol", cli.Exit("", session.ExitCodeProtocol), 4, ""},
		{"config", cli.Exit("--source is required", session.ExitCodeConfigError), 5, "--source is required"},
		{"wrapped exit coder", errors.Join(errors.New("context"), cli.Exit("inner", 42)), 42, "inner"},
		{"plain error", errors.New("boom"), 1, "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
