package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tokenledger/internal/config"
	"github.com/roach88/tokenledger/internal/engine"
	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/store"
)

// RootOptions holds global flags for all commands. Unset flags fall back to
// TOKENLEDGER_* environment variables.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	DB       string
	RateMode string

	mode   ledger.RateMode
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tokenledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tokenledger",
		Short: "Burn-on-transfer token ledger with a vesting vault",
		Long: `tokenledger runs a fungible token ledger that burns part of every
qualifying transfer, plus a vault that releases vested allocations.

Every mutating call is appended to a SQLite log together with the events
it produced, so a ledger can be audited and replayed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "tokenledger.db", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.RateMode, "rate-mode", "inline", "burn tier recomputation (inline|explicit)")

	cmd.AddCommand(NewGenesisCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewOpsCommand(opts))

	return cmd
}

// resolve merges flags over the environment and validates the result.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("format") {
		o.Format = cfg.Format
	}
	if !flags.Changed("db") {
		o.DB = cfg.DB
	}
	if !flags.Changed("rate-mode") {
		o.RateMode = cfg.RateMode
	}

	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.mode, err = ledger.ParseRateMode(o.RateMode); err != nil {
		return WrapExitError(ExitCommandError, "invalid --rate-mode", err)
	}

	level := cfg.LogLevel
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.logger = newLogger(cmd.ErrOrStderr(), o.Format, level)
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// Logger returns the logger configured by the last resolve, or the default.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// openEngine opens the configured database and an engine over it. The
// caller closes the store.
func (o *RootOptions) openEngine(ctx context.Context) (*engine.Engine, *store.Store, error) {
	st, err := store.Open(o.DB)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	eng, err := engine.New(ctx, st,
		engine.WithRateMode(o.mode),
		engine.WithLogger(o.Logger()),
	)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	o.Logger().Debug("engine ready", "db", o.DB, "rate_mode", o.RateMode)
	return eng, st, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
