package loggingutil

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func TestSubsystemSkipsEmptyParts(t *testing.T) {
	cases := map[string][]string{
		"":                  nil,
		"core":              {"core"},
		"core.session":      {"core", "", ".session."},
		"locking.monitor.x": {" locking", "monitor", "x "},
	}
	for want, parts := range cases {
		if got := Subsystem(parts...); got != want {
			t.Fatalf("Subsystem(%q) = %q, want %q", parts, got, want)
		}
	}
}

func TestEnsureLoggerNeverNil(t *testing.T) {
	if EnsureLogger(nil) == nil {
		t.Fatal("expected noop logger")
	}
	if NoopLogger() != NoopLogger() {
		t.Fatal("expected noop logger to be shared")
	}
}

func TestWithSubsystemTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	base := pslog.NewStructured(context.Background(), &buf)
	WithSubsystem(base, "core", "session").Info("session.open")
	out := buf.String()
	if !strings.Contains(out, "core.session") {
		t.Fatalf("expected subsystem tag in %q", out)
	}
}

func TestCallerFieldsShape(t *testing.T) {
	fields := CallerFields()
	if len(fields) != 6 {
		t.Fatalf("expected 3 key/value pairs, got %d entries", len(fields))
	}
	for i := 0; i < len(fields); i += 2 {
		if _, ok := fields[i].(string); !ok {
			t.Fatalf("expected string key at %d, got %T", i, fields[i])
		}
	}
	if tid, ok := fields[3].(int); !ok || tid <= 0 {
		t.Fatalf("expected positive tid, got %v", fields[3])
	}
}

func TestFromContextPrefersContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctxLogger := pslog.NewStructured(context.Background(), &buf)
	ctx := pslog.ContextWithLogger(context.Background(), ctxLogger)
	FromContext(ctx, nil).Info("from.ctx")
	if !strings.Contains(buf.String(), "from.ctx") {
		t.Fatalf("expected context logger to receive entry")
	}
	if FromContext(context.Background(), nil) == nil {
		t.Fatal("expected fallback logger")
	}
}
