package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pkt.systems/secretd/internal/counter"
	"pkt.systems/secretd/internal/failure"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/record"
)

func newTestService(t *testing.T, strategy locking.Strategy) *Service {
	t.Helper()
	monitor := locking.NewMonitor(locking.MonitorConfig{MaxSpinHold: time.Second})
	svc, err := New(Config{Strategy: strategy, Monitor: monitor})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewRejectsMismatchedStrategy(t *testing.T) {
	rec, err := record.New(record.Config{Strategy: locking.SpinOnly})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{Strategy: locking.Blocking, Record: rec}); err == nil {
		t.Fatal("expected record strategy mismatch")
	}
	pair := counter.NewPair(locking.Atomic, nil)
	if _, err := New(Config{Strategy: locking.Blocking, Counter: pair}); err == nil {
		t.Fatal("expected counter strategy mismatch")
	}
}

func TestScenarioWriteThenRead(t *testing.T) {
	for _, strategy := range locking.Strategies() {
		t.Run(strategy.String(), func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, strategy)
			h := svc.Open(ctx)
			defer svc.Close(ctx, h)

			if n, err := svc.Write(ctx, h, []byte("initmsg")); err != nil || n != 7 {
				t.Fatalf("write: n=%d err=%v", n, err)
			}
			got, err := svc.Read(ctx, h, 200)
			if err != nil || string(got) != "initmsg" || len(got) != 7 {
				t.Fatalf("read: %q %v", got, err)
			}
			if _, err := svc.Write(ctx, h, bytes.Repeat([]byte("z"), 130)); !errors.Is(err, failure.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if _, err := svc.Read(ctx, h, 64); !errors.Is(err, failure.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestHandleStateMachine(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, locking.Blocking)
	other := newTestService(t, locking.Blocking)

	if _, err := svc.Write(ctx, Handle{}, []byte("x")); !errors.Is(err, failure.ErrInvalidState) {
		t.Fatalf("zero handle: expected invalid state, got %v", err)
	}
	foreign := other.Open(ctx)
	if _, err := svc.Read(ctx, foreign, 128); !errors.Is(err, failure.ErrInvalidState) {
		t.Fatalf("foreign handle: expected invalid state, got %v", err)
	}
	h := svc.Open(ctx)
	if err := svc.Close(ctx, h); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Write(ctx, h, []byte("x")); !errors.Is(err, failure.ErrInvalidState) {
		t.Fatalf("closed handle: expected invalid state, got %v", err)
	}
	st := svc.Stats(ctx)
	if st.Record.Errors != 0 {
		t.Fatalf("invalid state must not touch the record: %+v", st.Record)
	}
}

func TestCloseTwiceIsNoop(t *testing.T) {
	for _, strategy := range locking.Strategies() {
		t.Run(strategy.String(), func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, strategy)
			keep := svc.Open(ctx)
			h := svc.Open(ctx)
			if err := svc.Close(ctx, h); err != nil {
				t.Fatal(err)
			}
			if err := svc.Close(ctx, h); err != nil {
				t.Fatalf("second close: %v", err)
			}
			if err := svc.Close(ctx, Handle{}); err != nil {
				t.Fatalf("zero close: %v", err)
			}
			st := svc.Stats(ctx)
			if st.GA != 1 || st.GB != 0 || st.OpenSessions != 1 {
				t.Fatalf("unexpected stats after double close: %+v", st)
			}
			_ = svc.Close(ctx, keep)
			st = svc.Stats(ctx)
			if st.GA != 0 || st.GB != 1 || st.OpenSessions != 0 {
				t.Fatalf("unexpected stats: %+v", st)
			}
		})
	}
}

func TestHundredConcurrentSessions(t *testing.T) {
	for _, strategy := range locking.Strategies() {
		t.Run(strategy.String(), func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, strategy)
			const sessions = 100
			ids := make(map[string]struct{}, sessions)
			var idsMu sync.Mutex
			var wg sync.WaitGroup
			errs := make(chan error, sessions)
			for i := 0; i < sessions; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					h := svc.Open(ctx)
					defer svc.Close(ctx, h)
					payload := fmt.Sprintf("session-%03d", i)
					idsMu.Lock()
					ids[payload] = struct{}{}
					idsMu.Unlock()
					if _, err := svc.Write(ctx, h, []byte(payload)); err != nil {
						errs <- err
						return
					}
					got, err := svc.Read(ctx, h, svc.Capacity())
					if err != nil {
						errs <- err
						return
					}
					idsMu.Lock()
					_, known := ids[string(got)]
					idsMu.Unlock()
					if !known {
						errs <- fmt.Errorf("read unknown secret %q", got)
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatal(err)
			}
			st := svc.Stats(ctx)
			if st.GA != 0 || st.GB != 1 {
				t.Fatalf("expected ga=0 gb=1, got ga=%d gb=%d", st.GA, st.GB)
			}
			if st.OpenSessions != 0 {
				t.Fatalf("expected no open sessions, got %d", st.OpenSessions)
			}
			if st.Record.Errors != 0 {
				t.Fatalf("unexpected record errors: %+v", st.Record)
			}
			if st.Violations != 0 {
				t.Fatalf("unexpected violations: %v", svc.Violations())
			}
		})
	}
}

func TestStatsReportsStrategy(t *testing.T) {
	svc := newTestService(t, locking.Atomic)
	st := svc.Stats(context.Background())
	if st.Strategy != locking.Atomic || st.Record.Capacity != record.DefaultCapacity {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.GA != counter.InitialA || st.GB != counter.InitialB {
		t.Fatalf("unexpected counters %+v", st)
	}
}
