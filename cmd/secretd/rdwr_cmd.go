package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/secretd"
)

// rdwrOp is one step of an rdwr run: a write of a secret or a read of up to
// length bytes.
type rdwrOp struct {
	write  bool
	secret string
	length int
}

func parseRdwrOp(raw string) (rdwrOp, error) {
	kind, value, hasValue := strings.Cut(raw, "=")
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "w", "write":
		if !hasValue {
			return rdwrOp{}, fmt.Errorf("op %q: write needs a secret (w=<secret>)", raw)
		}
		return rdwrOp{write: true, secret: value}, nil
	case "r", "read":
		if !hasValue {
			return rdwrOp{}, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return rdwrOp{}, fmt.Errorf("op %q: invalid read length", raw)
		}
		return rdwrOp{length: n}, nil
	}
	return rdwrOp{}, fmt.Errorf("op %q: expected r, r=<len> or w=<secret>", raw)
}

func newRdwrCommand(baseLogger pslog.Logger) *cobra.Command {
	var rawOps []string
	cmd := &cobra.Command{
		Use:   "rdwr",
		Short: "Open one session and issue reads and writes against the secret",
		Long: `rdwr opens a session on an in-process server and runs each --op in order.
A write sends the secret plus a terminating NUL (strlen+1 bytes). A read
without a length requests exactly the record capacity.`,
		Example: `
  secretd rdwr --op w=initmsg --op r
  secretd rdwr --initial-secret initmsg --op r=200
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(rawOps) == 0 {
				return fmt.Errorf("rdwr: at least one --op is required")
			}
			ops := make([]rdwrOp, 0, len(rawOps))
			for _, raw := range rawOps {
				op, err := parseRdwrOp(raw)
				if err != nil {
					return err
				}
				ops = append(ops, op)
			}

			ctx := cmd.Context()
			srv, logger, err := openServer(cmd, baseLogger)
			if err != nil {
				return err
			}
			defer shutdownServer(srv, logger)

			out := cmd.OutOrStdout()
			capacity := srv.Capacity()
			h := srv.Open(ctx)
			defer srv.Close(ctx, h)
			fmt.Fprintf(out, "session %s opened (capacity %d bytes, strategy %s)\n", h, capacity, srv.Strategy())

			for _, op := range ops {
				if op.write {
					if len(op.secret) > capacity {
						return fmt.Errorf("rdwr: too big a secret (%d bytes); restrict to %d bytes max", len(op.secret), capacity)
					}
					payload := append([]byte(op.secret), 0)
					n, err := srv.Write(ctx, h, payload)
					if err != nil {
						return fmt.Errorf("rdwr: write failed (%s): %w", secretd.ErrorCode(err), err)
					}
					fmt.Fprintf(out, "wrote %d bytes\n", n)
					continue
				}
				length := op.length
				if length == 0 {
					length = capacity
				}
				secret, err := srv.Read(ctx, h, length)
				if err != nil {
					return fmt.Errorf("rdwr: read failed (%s): %w", secretd.ErrorCode(err), err)
				}
				fmt.Fprintf(out, "read %d bytes\nThe 'secret' is:\n \"%s\"\n", len(secret), secret)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&rawOps, "op", "o", nil, "operation to run: r, r=<len> or w=<secret> (repeatable)")
	return cmd
}
