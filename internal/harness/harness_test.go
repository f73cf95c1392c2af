package harness

import (
	"context"
	"strings"
	"testing"
	"time"

	"pkt.systems/secretd/internal/core"
	"pkt.systems/secretd/internal/correlation"
	"pkt.systems/secretd/internal/fault"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/record"
)

func newService(t *testing.T, strategy locking.Strategy, inject bool) *core.Service {
	t.Helper()
	monitor := locking.NewMonitor(locking.MonitorConfig{MaxSpinHold: time.Second})
	var hook record.Hook
	if inject {
		hook = fault.New(true, 5*time.Millisecond).Hook
	}
	rec, err := record.New(record.Config{Strategy: strategy, Monitor: monitor, Hook: hook})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := core.New(core.Config{Strategy: strategy, Record: rec, Monitor: monitor})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestRunKeepsInvariants(t *testing.T) {
	for _, strategy := range locking.Strategies() {
		t.Run(strategy.String(), func(t *testing.T) {
			svc := newService(t, strategy, false)
			report, err := Run(context.Background(), svc, Config{Sessions: 50, Rounds: 3})
			if err != nil {
				t.Fatal(err)
			}
			if err := report.Err(); err != nil {
				t.Fatal(err)
			}
			if report.Violations != 0 {
				t.Fatalf("unexpected violations: %v", svc.Violations())
			}
			rx := report.Stats.Record.BytesReceived
			if rx != uint64(50*3*20) {
				t.Fatalf("expected rx=%d, got %d", 50*3*20, rx)
			}
		})
	}
}

func TestRunDefaults(t *testing.T) {
	svc := newService(t, locking.Atomic, false)
	report, err := Run(context.Background(), svc, Config{SampleCPU: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Sessions != DefaultSessions || report.Rounds != 1 {
		t.Fatalf("unexpected defaults: %+v", report)
	}
	if report.Stats.GA != 0 || report.Stats.GB != 1 {
		t.Fatalf("unexpected counters: %+v", report.Stats)
	}
}

func TestRunFlagsInjectedFaultUnderSpin(t *testing.T) {
	monitor := locking.NewMonitor(locking.MonitorConfig{MaxSpinHold: time.Millisecond})
	rec, err := record.New(record.Config{
		Strategy: locking.SpinOnly,
		Monitor:  monitor,
		Hook:     fault.New(true, 2*time.Millisecond).Hook,
	})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := core.New(core.Config{Strategy: locking.SpinOnly, Record: rec, Monitor: monitor})
	if err != nil {
		t.Fatal(err)
	}
	report, err := Run(context.Background(), svc, Config{Sessions: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("invariants should still hold: %v", err)
	}
	// Each write reports the declared suspension and the hold breach.
	if report.Violations < 8 {
		t.Fatalf("expected at least 8 violations, got %d", report.Violations)
	}
}

func TestRunUnderBlockingFaultIsLegal(t *testing.T) {
	svc := newService(t, locking.Blocking, true)
	report, err := Run(context.Background(), svc, Config{Sessions: 4})
	if err != nil {
		t.Fatal(err)
	}
	if report.Violations != 0 {
		t.Fatalf("unexpected violations: %v", svc.Violations())
	}
}

func TestReportErrListsProblems(t *testing.T) {
	r := Report{Stats: core.Stats{GA: 1, GB: 0, OpenSessions: 1}, Torn: 2}
	err := r.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"ga=1", "left open", "2 reads"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestRunRejectsNilTarget(t *testing.T) {
	if _, err := Run(context.Background(), nil, Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunTagsRunID(t *testing.T) {
	svc := newService(t, locking.Blocking, false)
	report, err := Run(context.Background(), svc, Config{Sessions: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.RunID == "" {
		t.Fatal("expected generated run id")
	}
	ctx := correlation.With(context.Background(), "stress-fixed")
	report, err = Run(ctx, svc, Config{Sessions: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.RunID != "stress-fixed" {
		t.Fatalf("expected caller run id, got %q", report.RunID)
	}
}
