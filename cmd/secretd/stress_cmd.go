package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/correlation"
	"pkt.systems/secretd/internal/harness"
)

func newStressCommand(baseLogger pslog.Logger) *cobra.Command {
	var sessions, rounds int
	var expectViolations, sampleCPU bool
	var runID string
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Drive concurrent sessions through open/write/read/close and check the invariants",
		Example: `
  secretd stress --sessions 100 --strategy atomic
  secretd stress --strategy spin --inject-fault --fault-delay 50ms --expect-violations
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			srv, logger, err := openServer(cmd, baseLogger)
			if err != nil {
				return err
			}
			defer shutdownServer(srv, logger)

			if runID != "" {
				normalized, ok := correlation.Normalize(runID)
				if !ok {
					return fmt.Errorf("stress: invalid --run-id %q", runID)
				}
				ctx = correlation.With(ctx, normalized)
			}
			report, err := harness.Run(ctx, srv, harness.Config{
				Sessions:  sessions,
				Rounds:    rounds,
				SampleCPU: sampleCPU,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			if err := writeStressReport(cmd.OutOrStdout(), srv.Strategy().String(), report); err != nil {
				return err
			}
			if err := report.Err(); err != nil {
				return err
			}
			switch {
			case report.Violations > 0 && !expectViolations:
				return fmt.Errorf("stress: %d contract violations recorded", report.Violations)
			case report.Violations == 0 && expectViolations:
				return fmt.Errorf("stress: expected contract violations but none were recorded")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&sessions, "sessions", "n", harness.DefaultSessions, "number of concurrent sessions")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "open/write/read/close cycles per session")
	cmd.Flags().BoolVar(&expectViolations, "expect-violations", false, "succeed only if contract violations were recorded")
	cmd.Flags().StringVar(&runID, "run-id", "", "tag every operation of the run with this id (generated when empty)")
	cmd.Flags().BoolVar(&sampleCPU, "sample-cpu", true, "report host CPU count and busy percentage")
	return cmd
}

func writeStressReport(w io.Writer, strategy string, r harness.Report) error {
	_, err := fmt.Fprintf(w,
		"run:         %s\n"+
			"strategy:    %s\n"+
			"sessions:    %d x %d rounds\n"+
			"elapsed:     %s\n"+
			"ga/gb:       %d/%d\n"+
			"tx/rx:       %d/%d bytes\n"+
			"errors:      %d\n"+
			"violations:  %d\n"+
			"cpus:        %d (busy %.1f%%)\n",
		r.RunID,
		strategy,
		r.Sessions, r.Rounds,
		r.Elapsed,
		r.Stats.GA, r.Stats.GB,
		r.Stats.Record.BytesSent, r.Stats.Record.BytesReceived,
		r.Stats.Record.Errors,
		r.Violations,
		r.CPUs, r.CPUBusy,
	)
	return err
}
