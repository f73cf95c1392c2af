package counter

import (
	"context"
	"sync"
	"testing"

	"pkt.systems/secretd/internal/locking"
)

func TestPairStartsAtInitialValues(t *testing.T) {
	for _, strategy := range locking.Strategies() {
		p := NewPair(strategy, nil)
		ga, gb := p.Snapshot(context.Background())
		if ga != InitialA || gb != InitialB {
			t.Fatalf("%v: got ga=%d gb=%d", strategy, ga, gb)
		}
	}
}

func TestPairOpenCloseShiftsOneUnit(t *testing.T) {
	ctx := context.Background()
	for _, strategy := range locking.Strategies() {
		t.Run(strategy.String(), func(t *testing.T) {
			p := NewPair(strategy, nil)
			if ga, gb := p.Open(ctx); ga != 1 || gb != 0 {
				t.Fatalf("after open: ga=%d gb=%d", ga, gb)
			}
			if ga, gb := p.Open(ctx); ga != 2 || gb != -1 {
				t.Fatalf("after second open: ga=%d gb=%d", ga, gb)
			}
			p.Close(ctx)
			if ga, gb := p.Close(ctx); ga != 0 || gb != 1 {
				t.Fatalf("after closes: ga=%d gb=%d", ga, gb)
			}
		})
	}
}

func TestPairSumIsConstantAtQuiescence(t *testing.T) {
	ctx := context.Background()
	for _, strategy := range locking.Strategies() {
		t.Run(strategy.String(), func(t *testing.T) {
			monitor := locking.NewMonitor(locking.MonitorConfig{MaxSpinHold: -1})
			p := NewPair(strategy, monitor)
			const workers = 64
			const rounds = 200
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < rounds; j++ {
						p.Open(ctx)
						p.Close(ctx)
					}
				}()
			}
			wg.Wait()
			ga, gb := p.Snapshot(ctx)
			if ga != 0 || gb != 1 || ga+gb != InitialA+InitialB {
				t.Fatalf("ga=%d gb=%d", ga, gb)
			}
			if monitor.Count() != 0 {
				t.Fatalf("unexpected violations: %v", monitor.Violations())
			}
		})
	}
}

func TestPairGuardedSnapshotIsConsistent(t *testing.T) {
	ctx := context.Background()
	for _, strategy := range []locking.Strategy{locking.Blocking, locking.SpinOnly} {
		t.Run(strategy.String(), func(t *testing.T) {
			p := NewPair(strategy, locking.NewMonitor(locking.MonitorConfig{MaxSpinHold: -1}))
			stop := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					p.Open(ctx)
					p.Close(ctx)
				}
			}()
			for i := 0; i < 1000; i++ {
				ga, gb := p.Snapshot(ctx)
				if ga+gb != 1 {
					close(stop)
					wg.Wait()
					t.Fatalf("torn snapshot ga=%d gb=%d", ga, gb)
				}
			}
			close(stop)
			wg.Wait()
		})
	}
}
