package failure

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestFailureMatchesSentinelByCode(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid argument", InvalidArgument("len %d < %d", 1, 128), ErrInvalidArgument},
		{"unavailable", Unavailable("secret not set"), ErrUnavailable},
		{"fault", Fault("copy out", io.ErrShortWrite), ErrFault},
		{"invalid state", InvalidState("closed"), ErrInvalidState},
		{"wrapped", fmt.Errorf("read: %w", Unavailable("empty")), ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Fatalf("expected %v to match %v", tc.err, tc.sentinel)
			}
			if errors.Is(tc.err, ErrContractViolation) {
				t.Fatalf("unexpected match against contract violation")
			}
		})
	}
}

func TestFaultKeepsCause(t *testing.T) {
	err := Fault("copy out", io.ErrShortWrite)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if got := err.Error(); got != "fault: copy out: short write" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", InvalidState("nope"))); got != CodeInvalidState {
		t.Fatalf("expected %q, got %q", CodeInvalidState, got)
	}
	if got := CodeOf(io.EOF); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}
