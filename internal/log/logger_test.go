package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func bufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, ComponentLedger)

	l.Info("posted", FieldAmount, 10)
	out := buf.String()
	if !strings.Contains(out, "component=ledger") {
		t.Errorf("missing component in %q", out)
	}
	if !strings.Contains(out, "amount=10") {
		t.Errorf("missing field in %q", out)
	}

	buf.Reset()
	l.WithComponent(ComponentWorker).Debug("tick")
	if got := buf.String(); strings.Count(got, "component=") != 1 || !strings.Contains(got, "component=worker") {
		t.Errorf("unexpected component attrs in %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	a := NewAudit(bufferLogger(&buf, ComponentApp))

	a.Record(context.Background(), EventOperationPosted, NewFields().WithLedgerOperation(7, "expense", 300).WithError(nil))
	out := buf.String()
	for _, want := range []string{"component=audit", "event=operation.posted", "op_id=7", "amount=300"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit record %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "error=") {
		t.Errorf("nil error should not be logged: %q", out)
	}

	buf.Reset()
	a.Denied(context.Background(), 42, "post")
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "external_id=42") {
		t.Errorf("unexpected denial record %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("default component = %q", got.Component())
	}
	l := Discard().WithComponent(ComponentCLI)
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Error("logger not returned from context")
	}
}

func TestLogFieldsWithError(t *testing.T) {
	f := NewFields().WithError(errors.New("boom")).WithOperation("post")
	if f[FieldError] != "boom" || f[FieldOperation] != "post" {
		t.Errorf("unexpected fields %v", f)
	}
	if len(f.ToSlice()) != 4 {
		t.Errorf("ToSlice length = %d", len(f.ToSlice()))
	}
}
