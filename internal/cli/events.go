package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tokenledger/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Kind    string
	FromSeq int64
}

// EventsResult holds the events command output.
type EventsResult struct {
	Events []EventView `json:"events"`
	Total  int         `json:"total"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded audit events",
		Long: `List audit events in log order (seq, then index within the call).

Examples:
  tokenledger events --db ./ledger.db
  tokenledger events --kind burn --from 12
  tokenledger events --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind")
	cmd.Flags().Int64Var(&opts.FromSeq, "from", 0, "only events at or after this seq")

	return cmd
}

func runEvents(ctx context.Context, opts *EventsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, store.EventFilter{Kind: opts.Kind, FromSeq: opts.FromSeq})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := EventsResult{Events: eventViews(events), Total: len(events)}
	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		if len(events) == 0 {
			fmt.Fprintln(w, "No events found.")
			return
		}
		for _, ev := range events {
			writeEvent(w, ev)
		}
		fmt.Fprintf(w, "\n%d event(s)\n", len(events))
	})
}
