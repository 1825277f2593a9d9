package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tokenledger/internal/engine"
)

// ReplayReport is the replay command output.
type ReplayReport struct {
	Calls          int                 `json:"calls"`
	RecordedDigest string              `json:"recorded_digest"`
	ReplayedDigest string              `json:"replayed_digest"`
	Deterministic  bool                `json:"deterministic"`
	Divergences    []engine.Divergence `json:"divergences"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the call log and verify determinism",
		Long: `Re-execute every recorded call, in seq order and at its recorded time,
against a fresh in-memory ledger. Each call must reproduce its recorded
outcome and result, and the final state digest must match the database.

Exit codes:
  0 - Replay reproduced the log
  1 - Replay diverged
  2 - Command error (database not found, etc.)

Examples:
  tokenledger replay --db ./ledger.db
  tokenledger replay --db ./ledger.db --rate-mode explicit --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rootOpts, cmd)
		},
	}
	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	eng, st, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := eng.Replay(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	report := ReplayReport{
		Calls:          res.Calls,
		RecordedDigest: res.RecordedDigest,
		ReplayedDigest: res.ReplayedDigest,
		Deterministic:  res.Match(),
		Divergences:    res.Divergences,
	}
	if report.Divergences == nil {
		report.Divergences = []engine.Divergence{}
	}

	out := opts.formatter(cmd)
	if mismatch := res.Err(); mismatch != nil {
		if err := out.Error(string(engine.ErrCodeReplayDiverged), mismatch.Error(), report); err != nil {
			return err
		}
		if opts.Format != "json" {
			writeReplayText(cmd.OutOrStdout(), report)
		}
		return WrapExitError(ExitFailure, "determinism verification failed", mismatch)
	}

	return out.Success(report, func(w io.Writer) {
		writeReplayText(w, report)
	})
}

func writeReplayText(w io.Writer, r ReplayReport) {
	fmt.Fprintf(w, "Replay Summary: %d call(s)\n", r.Calls)
	fmt.Fprintf(w, "  Recorded digest: %s\n", r.RecordedDigest)
	fmt.Fprintf(w, "  Replayed digest: %s\n", r.ReplayedDigest)
	for _, d := range r.Divergences {
		fmt.Fprintf(w, "✗ seq %d (%s)\n    recorded: %s\n    replayed: %s\n", d.Seq, d.Op, d.Want, d.Got)
	}
	if r.Deterministic {
		fmt.Fprintln(w, "✓ Replay reproduced the log")
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
