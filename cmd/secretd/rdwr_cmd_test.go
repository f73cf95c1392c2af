package main

import (
	"strings"
	"testing"
)

func TestParseRdwrOp(t *testing.T) {
	cases := []struct {
		raw     string
		want    rdwrOp
		wantErr bool
	}{
		{raw: "r", want: rdwrOp{}},
		{raw: "read=200", want: rdwrOp{length: 200}},
		{raw: "w=initmsg", want: rdwrOp{write: true, secret: "initmsg"}},
		{raw: "w=", want: rdwrOp{write: true}},
		{raw: "w", wantErr: true},
		{raw: "r=-1", wantErr: true},
		{raw: "x=1", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseRdwrOp(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %+v (%v), want %+v", tc.raw, got, err, tc.want)
		}
	}
}

func TestRdwrWriteThenRead(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "rdwr", "--op", "w=initmsg", "--op", "r", "--op", "r=200")
	if err != nil {
		t.Fatalf("rdwr: %v", err)
	}
	if !strings.Contains(stdout, "wrote 8 bytes") {
		t.Fatalf("expected strlen+1 write, got %q", stdout)
	}
	if strings.Count(stdout, `"initmsg"`) != 2 {
		t.Fatalf("expected two reads of initmsg, got %q", stdout)
	}
}

func TestRdwrInitialSecret(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "rdwr", "--initial-secret", "initmsg", "--op", "r")
	if err != nil {
		t.Fatalf("rdwr: %v", err)
	}
	if !strings.Contains(stdout, "read 7 bytes") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestRdwrErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no ops", []string{"rdwr"}, "at least one --op"},
		{"short read", []string{"rdwr", "--initial-secret", "x", "--op", "r=64"}, "invalid_argument"},
		{"empty record", []string{"rdwr", "--op", "r"}, "unavailable"},
		{"too big", []string{"rdwr", "--op", "w=" + strings.Repeat("a", 129)}, "too big a secret"},
		// 128 characters pass the length check but strlen+1 exceeds the capacity.
		{"exactly capacity", []string{"rdwr", "--op", "w=" + strings.Repeat("a", 128)}, "invalid_argument"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := executeRootCommand(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
