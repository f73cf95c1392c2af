package locking

import "testing"

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		in   string
		want Strategy
	}{
		{"", Blocking},
		{"blocking", Blocking},
		{"Mutex", Blocking},
		{"spin", SpinOnly},
		{" SpinOnly ", SpinOnly},
		{"spinlock", SpinOnly},
		{"atomic", Atomic},
	}
	for _, tc := range cases {
		got, err := ParseStrategy(tc.in)
		if err != nil {
			t.Fatalf("ParseStrategy(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseStrategy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseStrategy("rcu"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestStrategyTextRoundTrip(t *testing.T) {
	for _, s := range Strategies() {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back Strategy
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %q: %v", text, err)
		}
		if back != s {
			t.Fatalf("round trip %v -> %q -> %v", s, text, back)
		}
	}
}

func TestStrategyGuardKinds(t *testing.T) {
	if Blocking.RecordKind() != KindMutex {
		t.Fatal("blocking record should use a mutex")
	}
	if SpinOnly.RecordKind() != KindSpin || Atomic.RecordKind() != KindSpin {
		t.Fatal("spin and atomic records should use a spin guard")
	}
	if k, ok := Blocking.CounterKind(); !ok || k != KindMutex {
		t.Fatalf("blocking counters: got %v %v", k, ok)
	}
	if k, ok := SpinOnly.CounterKind(); !ok || k != KindSpin {
		t.Fatalf("spin counters: got %v %v", k, ok)
	}
	if _, ok := Atomic.CounterKind(); ok {
		t.Fatal("atomic counters must not carry a guard")
	}
	if !Atomic.AtomicCounters() || SpinOnly.AtomicCounters() {
		t.Fatal("only the atomic strategy uses atomic counters")
	}
	if KindSpin.MaySuspend() || !KindMutex.MaySuspend() {
		t.Fatal("unexpected MaySuspend classification")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyLog {
		t.Fatalf("default policy: %v %v", p, err)
	}
	if p, err := ParsePolicy("PANIC"); err != nil || p != PolicyPanic {
		t.Fatalf("panic policy: %v %v", p, err)
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
