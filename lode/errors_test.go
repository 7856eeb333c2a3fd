package lode

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		wantKind error
	}{
		{"context deadline exceeded", "context deadline exceeded", ErrTimeout},
		{"operation timed out", "operation timed out", ErrTimeout},
		{"timeout in message", "connection timeout after 30s", ErrTimeout},

		{"AccessDenied response", "AccessDenied: you do not have access", ErrAccessDenied},
		{"Forbidden response", "Forbidden", ErrAccessDenied},
		{"HTTP 403", "received status 403", ErrAccessDenied},

		{"permission denied", "permission denied for /data/output", ErrPermissionDenied},
		{"EACCES errno", "open /tmp/file: EACCES", ErrPermissionDenied},

		{"no space left on device", "write /data/output: no space left on device", ErrDiskFull},
		{"ENOSPC errno", "ENOSPC: write failed", ErrDiskFull},
		{"quota exceeded", "quota exceeded for user", ErrDiskFull},

		{"no such file", "no such file or directory", ErrNotFound},
		{"NoSuchKey S3", "NoSuchKey: The specified key does not exist", ErrNotFound},
		{"HTTP 404", "received status 404", ErrNotFound},

		{"HTTP 429", "received status 429", ErrThrottled},
		{"SlowDown S3", "SlowDown: please reduce request rate", ErrThrottled},
		{"throttled message", "request was throttled", ErrThrottled},

		{"NoCredentialProviders", "NoCredentialProviders: no valid credential providers", ErrAuth},
		{"ExpiredToken", "ExpiredToken: the security token has expired", ErrAuth},
		{"HTTP 401", "received status 401", ErrAuth},

		{"connection refused", "dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"no route to host", "no route to host", ErrNetwork},
		{"DNS resolution failure", "DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},

		{"unrecognized error", "something completely unexpected happened", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(errors.New(tt.errMsg))
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

func TestClassifyError_Typed(t *testing.T) {
	wrapped := fmt.Errorf("put segment: %w", context.DeadlineExceeded)
	if got := classifyError(wrapped); got != ErrTimeout {
		t.Errorf("classifyError(wrapped deadline) = %v, want ErrTimeout", got)
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v, want nil", got)
	}
}

func TestWrapErrors(t *testing.T) {
	if WrapWriteError(nil, "p") != nil || WrapReadError(nil, "p") != nil || WrapInitError(nil, "d") != nil {
		t.Fatal("wrapping nil must return nil")
	}

	err := WrapReadError(errors.New("NoSuchKey"), "framecap/snapshots")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if se.Op != "read" || se.Path != "framecap/snapshots" || !errors.Is(err, ErrNotFound) {
		t.Errorf("StorageError = %+v", se)
	}

	// Already-classified errors are not wrapped twice.
	if again := WrapWriteError(err, "other"); again != err {
		t.Errorf("rewrap = %v, want original", again)
	}
}

func TestStorageError_Message(t *testing.T) {
	err := NewStorageError(ErrDiskFull, "write", "datasets/framecap", errors.New("ENOSPC"))
	want := "write datasets/framecap: no space left on device: ENOSPC"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	noPath := NewStorageError(ErrTimeout, "init", "", errors.New("slow"))
	if noPath.Error() != "init: operation timed out: slow" {
		t.Errorf("Error() = %q", noPath.Error())
	}
}
