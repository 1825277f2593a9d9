package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tokenledger/internal/engine"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Args string
	Time uint64
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <op>",
		Short: "Run a read-only ledger query",
		Long: `Run a read-only query. Nothing is recorded.

Vesting queries evaluate at --time when given, otherwise at the current time.

Examples:
  tokenledger query balance-of --args '{"account":"alice"}'
  tokenledger query compute-releasable-amount --args '{"beneficiary":"bob","index":0}' --time 1700000000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "query arguments as JSON")
	cmd.Flags().Uint64Var(&opts.Time, "time", 0, "evaluate at this unix time (default: now)")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, op string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	args, err := parseCallArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	eng, st, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	call := engine.Call{Op: op, Args: args}
	if cmd.Flags().Changed("time") {
		at := opts.Time
		call.Time = &at
	}

	result, err := eng.Query(ctx, call)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", op), err)
	}
	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		writeFields(w, "", result)
	})
}

// NewOpsCommand creates the ops command.
func NewOpsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the ops accepted by invoke and query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := map[string][]string{
				"invoke": engine.Ops(false),
				"query":  engine.Ops(true),
			}
			return rootOpts.formatter(cmd).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "invoke: %s\n", strings.Join(data["invoke"], ", "))
				fmt.Fprintf(w, "query:  %s\n", strings.Join(data["query"], ", "))
			})
		},
	}
}
