package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/framecap/policy"
	"github.com/justapithecus/framecap/session"
	"github.com/justapithecus/framecap/types"
)

func printSessionResult(w io.Writer, result *session.Result, policyName string) {
	fmt.Fprintf(w, "\nsession_id=%s, outcome=%s, duration=%s\n",
		result.Meta.SessionID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)
	fmt.Fprintf(w, "policy=%s, status_sent=%t\n", policyName, result.StatusSent)

	fmt.Fprintf(w, "\n=== Session Result ===\n")
	fmt.Fprintf(w, "Session ID:   %s\n", result.Meta.SessionID)
	fmt.Fprintf(w, "Source:       %s\n", result.Meta.Source)
	fmt.Fprintf(w, "Remote:       %s\n", result.Meta.Remote)
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Duration:     %s\n", result.Duration)

	printStatistics(w, result.Statistics)
	printPolicyStats(w, result.PolicyStats)

	fmt.Fprintf(w, "\n=== Transport ===\n")
	fmt.Fprintf(w, "Bytes Read:       %d\n", result.TransportStats.BytesRead)
	fmt.Fprintf(w, "Bytes Written:    %d\n", result.TransportStats.BytesWritten)
	fmt.Fprintf(w, "Reads:            %d\n", result.TransportStats.Chunks)
	fmt.Fprintf(w, "Read Stalls:      %d\n", result.TransportStats.Stalls)
}

func printReplayResult(w io.Writer, result *session.ReplayResult) {
	fmt.Fprintf(w, "\nsession_id=%s, outcome=%s, duration=%s\n",
		result.Meta.SessionID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Replay Result ===\n")
	if result.Capture != nil {
		fmt.Fprintf(w, "Input:        capture (session %s, layout %s)\n", result.Capture.SessionID, result.Capture.Layout)
	} else {
		fmt.Fprintf(w, "Input:        raw bytes\n")
	}
	fmt.Fprintf(w, "Chunks:       %d\n", result.Chunks)
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)

	printStatistics(w, result.Statistics)
	printPolicyStats(w, result.PolicyStats)
}

func printStatistics(w io.Writer, s types.Statistics) {
	fmt.Fprintf(w, "\n=== Records ===\n")
	fmt.Fprintf(w, "Total:            %d\n", s.TotalRecords)
	fmt.Fprintf(w, "Text:             %d\n", s.TextRecords)
	fmt.Fprintf(w, "Binary:           %d\n", s.BinaryRecords)
	fmt.Fprintf(w, "Failed:           %d\n", s.FailedRecords)
	fmt.Fprintf(w, "Framing Errors:   %d\n", s.FramingErrors)
	fmt.Fprintf(w, "Bytes Received:   %d\n", s.BytesReceived)
	fmt.Fprintf(w, "Payload Bytes:    %d\n", s.PayloadBytes)
}

func printPolicyStats(w io.Writer, ps policy.Stats) {
	fmt.Fprintf(w, "\n=== Policy Stats ===\n")
	fmt.Fprintf(w, "Records Total:     %d\n", ps.TotalRecords)
	fmt.Fprintf(w, "Records Persisted: %d\n", ps.RecordsPersisted)
	fmt.Fprintf(w, "Chunks Total:      %d\n", ps.TotalChunks)
	fmt.Fprintf(w, "Chunks Persisted:  %d\n", ps.ChunksPersisted)
	fmt.Fprintf(w, "Errors:            %d\n", ps.Errors)
	fmt.Fprintf(w, "Flushes:           %d\n", ps.FlushCount)
	fmt.Fprintf(w, "Blocked Ingests:   %d\n", ps.Blocked)
}
