package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestWithOpTagsSubsequentLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelInfo)

	WithOp(logger, "create_chunk", "lib-1").Info("inserted")

	out := buf.String()
	if !strings.Contains(out, "op=create_chunk") || !strings.Contains(out, "library_id=lib-1") {
		t.Fatalf("expected op/library_id fields in log line, got %q", out)
	}
}

func TestLogCoreErrorExtractsKindOpLibrary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelInfo)

	err := wrapErr(Upstream, "delete_chunk", "lib-1", errors.New("disk full"))
	LogCoreError(logger, err)

	out := buf.String()
	for _, want := range []string{"kind=UPSTREAM", "op=delete_chunk", "library_id=lib-1", "disk full"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log line to contain %q, got %q", want, out)
		}
	}
}

func TestLogCoreErrorHandlesNonCoreError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelInfo)

	LogCoreError(logger, errors.New("plain error"))

	if !strings.Contains(buf.String(), "plain error") {
		t.Fatalf("expected plain error message to be logged, got %q", buf.String())
	}
}

func TestLogCoreErrorNilIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelInfo)

	LogCoreError(logger, nil)

	if buf.Len() != 0 {
		t.Fatalf("expected no log output for nil error, got %q", buf.String())
	}
}
