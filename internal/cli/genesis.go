package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tokenledger/internal/genesis"
	"github.com/roach88/tokenledger/internal/ledger"
)

// GenesisResult summarizes an applied genesis file.
type GenesisResult struct {
	File     string        `json:"file"`
	Calls    int           `json:"calls"`
	Receipts []ReceiptView `json:"receipts"`
}

// NewGenesisCommand creates the genesis command.
func NewGenesisCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis <file.cue>",
		Short: "Bootstrap a ledger from a CUE genesis file",
		Long: `Validate a CUE genesis file and apply it to an empty ledger.

Genesis expands into ordinary recorded calls: initialize, assign-owner,
exemptions, approved callers, vault setup, funding and vesting schedules.
All of them are pinned to the file's time.

Exit codes:
  0 - Genesis applied
  1 - A genesis call was rejected (earlier calls stay recorded)
  2 - Command error (invalid file, database failure)

Examples:
  tokenledger genesis ./launch.cue --db ./ledger.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenesis(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runGenesis(ctx context.Context, opts *RootOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := genesis.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid genesis file", err)
	}

	eng, st, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	receipts, applyErr := g.Apply(ctx, eng)
	result := GenesisResult{File: path, Calls: len(g.Calls()), Receipts: make([]ReceiptView, len(receipts))}
	for i, r := range receipts {
		result.Receipts[i] = receiptView(r)
	}

	out := opts.formatter(cmd)
	if applyErr != nil {
		code := ledger.CodeOf(applyErr)
		if code == "" {
			return WrapExitError(ExitCommandError, "genesis failed", applyErr)
		}
		if err := out.Error(string(code), applyErr.Error(), result); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "genesis rejected", applyErr)
	}

	opts.Logger().Info("genesis applied", "file", path, "calls", len(receipts))
	return out.Success(result, func(w io.Writer) {
		for _, r := range receipts {
			fmt.Fprintf(w, "  seq %d: %d event(s)\n", r.Seq, len(r.Events))
		}
		fmt.Fprintf(w, "✓ Genesis applied: %d call(s) from %s\n", len(receipts), path)
	})
}
