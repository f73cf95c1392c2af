// Package harness drives many concurrent sessions through the
// open/write/read/close lifecycle and checks the resulting invariants.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/core"
	"pkt.systems/secretd/internal/correlation"
	"pkt.systems/secretd/internal/counter"
	"pkt.systems/secretd/internal/loggingutil"
)

// DefaultSessions is the number of concurrent sessions driven by default.
const DefaultSessions = 100

// Target is the session surface the harness drives.
type Target interface {
	Open(ctx context.Context) core.Handle
	Write(ctx context.Context, h core.Handle, data []byte) (int, error)
	Read(ctx context.Context, h core.Handle, requested int) ([]byte, error)
	Close(ctx context.Context, h core.Handle) error
	Capacity() int
	Stats(ctx context.Context) core.Stats
}

// Config configures a run.
type Config struct {
	Sessions  int
	Rounds    int
	SampleCPU bool
	Logger    pslog.Logger
}

// Report summarizes a run.
type Report struct {
	// RunID tags every operation issued by the run.
	RunID      string
	Sessions   int
	Rounds     int
	Elapsed    time.Duration
	Stats      core.Stats
	Failures   int
	Torn       int
	Violations int
	CPUs       int
	CPUBusy    float64
	// FirstError is the first operation failure observed, if any.
	FirstError error
}

// Err reports the first broken invariant, or nil.
func (r Report) Err() error {
	var problems []string
	if r.Stats.GA != counter.InitialA || r.Stats.GB != counter.InitialB {
		problems = append(problems, fmt.Sprintf("counters ga=%d gb=%d, want ga=%d gb=%d", r.Stats.GA, r.Stats.GB, counter.InitialA, counter.InitialB))
	}
	if r.Stats.OpenSessions != 0 {
		problems = append(problems, fmt.Sprintf("%d sessions left open", r.Stats.OpenSessions))
	}
	if r.Torn > 0 {
		problems = append(problems, fmt.Sprintf("%d reads returned content no session wrote", r.Torn))
	}
	if r.Failures > 0 {
		problems = append(problems, fmt.Sprintf("%d operations failed (first: %v)", r.Failures, r.FirstError))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("harness: " + strings.Join(problems, "; "))
}

// Run opens cfg.Sessions sessions concurrently. Each session writes its own
// id, reads the record back and closes, cfg.Rounds times.
func Run(ctx context.Context, target Target, cfg Config) (Report, error) {
	if target == nil {
		return Report{}, errors.New("harness: nil target")
	}
	if cfg.Sessions <= 0 {
		cfg.Sessions = DefaultSessions
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, runID := correlation.Ensure(ctx)
	logger := loggingutil.WithSubsystem(cfg.Logger, "harness").With("run_id", runID)
	report := Report{RunID: runID, Sessions: cfg.Sessions, Rounds: cfg.Rounds}
	if cfg.SampleCPU {
		if n, err := cpu.CountsWithContext(ctx, true); err == nil {
			report.CPUs = n
		} else {
			logger.Warn("harness.cpu.count_failed", "error", err)
		}
		// Prime the busy-time baseline for the sample taken after the run.
		_, _ = cpu.PercentWithContext(ctx, 0, false)
	}

	var (
		mu       sync.Mutex
		written  = make(map[string]struct{}, cfg.Sessions*cfg.Rounds)
		failures int
		torn     int
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		failures++
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	logger.Info("harness.start", "sessions", cfg.Sessions, "rounds", cfg.Rounds)
	begin := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < cfg.Rounds; round++ {
				if ctx.Err() != nil {
					return
				}
				h := target.Open(ctx)
				payload := h.ID().String()
				mu.Lock()
				written[payload] = struct{}{}
				mu.Unlock()
				if _, err := target.Write(ctx, h, []byte(payload)); err != nil {
					fail(fmt.Errorf("write %s: %w", payload, err))
				}
				got, err := target.Read(ctx, h, target.Capacity())
				if err != nil {
					fail(fmt.Errorf("read %s: %w", payload, err))
				} else {
					mu.Lock()
					if _, ok := written[string(got)]; !ok {
						torn++
					}
					mu.Unlock()
				}
				if err := target.Close(ctx, h); err != nil {
					fail(fmt.Errorf("close %s: %w", payload, err))
				}
			}
		}()
	}
	wg.Wait()
	report.Elapsed = time.Since(begin)

	if cfg.SampleCPU {
		if busy, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(busy) > 0 {
			report.CPUBusy = busy[0]
		} else if err != nil {
			logger.Warn("harness.cpu.percent_failed", "error", err)
		}
	}
	report.Stats = target.Stats(ctx)
	report.Violations = report.Stats.Violations
	report.Failures = failures
	report.Torn = torn
	report.FirstError = firstErr
	logger.Info("harness.done",
		"elapsed", report.Elapsed,
		"ga", report.Stats.GA,
		"gb", report.Stats.GB,
		"tx", report.Stats.Record.BytesSent,
		"rx", report.Stats.Record.BytesReceived,
		"errors", report.Stats.Record.Errors,
		"violations", report.Violations,
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
