package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tokenledger/internal/audit"
	"github.com/roach88/tokenledger/internal/engine"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Caller string
	Args   string
	Time   uint64
}

// ReceiptView is the JSON shape of a recorded call.
type ReceiptView struct {
	Seq       int64          `json:"seq"`
	FlowToken string         `json:"flow_token"`
	CallID    string         `json:"call_id"`
	Timestamp int64          `json:"timestamp"`
	Outcome   string         `json:"outcome"`
	ErrorCode string         `json:"error_code,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Events    []EventView    `json:"events"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <op>",
		Short: "Execute a mutating ledger call",
		Long: `Execute one mutating call and record it in the log.

Arguments are a JSON object. Amounts are base-unit integers, given either
as JSON numbers or decimal strings; 1 token is 10^18 base units.

Exit codes:
  0 - Call succeeded
  1 - The ledger rejected the call (the rejection is recorded)
  2 - Command error (unknown op, bad arguments, database failure)

Examples:
  tokenledger invoke transfer --caller alice --args '{"recipient":"bob","amount":"1000000000000000000000"}'
  tokenledger invoke claim --caller bob --args '{"index":0}' --time 1700000000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "calling account (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "call arguments as JSON")
	cmd.Flags().Uint64Var(&opts.Time, "time", 0, "pin the call's unix time (default: now)")

	return cmd
}

func runInvoke(ctx context.Context, opts *InvokeOptions, op string, cmd *cobra.Command) error {
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

	call := engine.Call{Op: op, Caller: opts.Caller, Args: args}
	if cmd.Flags().Changed("time") {
		at := opts.Time
		call.Time = &at
	}

	receipt, err := eng.Execute(ctx, call)
	if err != nil && receipt.ErrorCode == "" {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", op), err)
	}

	view := receiptView(receipt)
	out := opts.formatter(cmd)
	if receipt.ErrorCode != "" {
		opts.Logger().Info("call rejected", "op", op, "seq", receipt.Seq, "code", receipt.ErrorCode)
		if ferr := out.Error(string(receipt.ErrorCode), err.Error(), view); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "call rejected", err)
	}

	opts.Logger().Debug("call recorded", "op", op, "seq", receipt.Seq, "events", len(receipt.Events))
	return out.Success(view, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s recorded at seq %d (t=%d)\n", op, receipt.Seq, receipt.Timestamp)
		if len(receipt.Result) > 0 {
			fmt.Fprintln(w, "Result:")
			writeFields(w, "  ", receipt.Result)
		}
		if len(receipt.Events) > 0 {
			fmt.Fprintln(w, "Events:")
			for _, ev := range receipt.Events {
				fmt.Fprint(w, "  ")
				writeEvent(w, ev)
			}
		}
	})
}

func receiptView(r engine.Receipt) ReceiptView {
	outcome := audit.OutcomeOK
	if r.ErrorCode != "" {
		outcome = audit.OutcomeError
	}
	return ReceiptView{
		Seq:       r.Seq,
		FlowToken: r.FlowToken,
		CallID:    r.CallID,
		Timestamp: r.Timestamp,
		Outcome:   outcome,
		ErrorCode: string(r.ErrorCode),
		Result:    r.Result,
		Events:    eventViews(r.Events),
	}
}

// parseCallArgs decodes a JSON object of scalars into string arguments.
// Numbers must be integers; they are kept digit-for-digit so amounts beyond
// 2^53 survive.
func parseCallArgs(raw string) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = fmt.Sprint(val)
		case json.Number:
			s := val.String()
			if strings.ContainsAny(s, ".eE-") {
				return nil, fmt.Errorf("argument %q: %s is not a non-negative integer", k, s)
			}
			out[k] = s
		default:
			return nil, fmt.Errorf("argument %q: unsupported value %v", k, v)
		}
	}
	return out, nil
}
