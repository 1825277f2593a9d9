package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/engine"
	"github.com/roach88/tokenledger/internal/genesis"
	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/store"
	"github.com/roach88/tokenledger/internal/testutil"
)

// Harness drives one scenario against one engine.
type Harness struct {
	engine  *engine.Engine
	store   *store.Store
	clock   *testutil.ManualTime
	queries map[string]bool
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The returned error is
// reserved for infrastructure failures; failed expectations and assertions
// are reported through Result.
//
// Execution flow:
//  1. Open an in-memory store and an engine with a fixed flow token
//  2. Apply the genesis file, if any
//  3. Execute steps and check their expectations
//  4. Evaluate assertions
//  5. Read the recorded trace back from the store
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	mode := ledger.RateModeInline
	if scenario.RateMode != "" {
		if mode, err = ledger.ParseRateMode(scenario.RateMode); err != nil {
			return nil, err
		}
	}

	clock := testutil.NewManualTime(0)
	eng, err := engine.New(ctx, st,
		engine.WithFlowTokens(testutil.NewFixedFlowGenerator(scenario.FlowToken)),
		engine.WithTimeSource(clock),
		engine.WithRateMode(mode),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		engine:  eng,
		store:   st,
		clock:   clock,
		queries: make(map[string]bool),
	}
	for _, op := range engine.Ops(true) {
		h.queries[op] = true
	}

	if scenario.Genesis != "" {
		g, err := genesis.Load(scenario.Genesis)
		if err != nil {
			return nil, err
		}
		clock.Set(g.Time)
		if _, err := g.Apply(ctx, eng); err != nil {
			return nil, fmt.Errorf("failed to apply genesis: %w", err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Engine: eng}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if result.Trace, err = ReadTrace(ctx, st); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	args, err := convertArgs(step.Args)
	if err != nil {
		return fmt.Errorf("failed to convert args: %w", err)
	}
	if step.Time != nil {
		h.clock.Set(*step.Time)
	}

	call := engine.Call{Op: step.Op, Caller: step.Caller, Args: args}
	var (
		got   map[string]any
		opErr error
	)
	if h.queries[step.Op] {
		got, opErr = h.engine.Query(ctx, call)
	} else {
		var r engine.Receipt
		r, opErr = h.engine.Execute(ctx, call)
		got = r.Result
	}

	code := errorCode(opErr)
	if opErr != nil && code == "" {
		return opErr
	}

	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	if code != want {
		if want == "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, opErr))
		} else {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", i, step.Op, want, orSuccess(code)))
		}
		return nil
	}
	if step.Expect == nil || code != "" {
		return nil
	}

	for key, exp := range step.Expect.Result {
		act, ok := got[key]
		if !ok {
			result.AddError(fmt.Sprintf("steps[%d] %s: result has no field %q", i, step.Op, key))
			continue
		}
		if !reflect.DeepEqual(normalize(exp), normalize(act)) {
			result.AddError(fmt.Sprintf("steps[%d] %s: result.%s = %v, expected %v", i, step.Op, key, normalize(act), normalize(exp)))
		}
	}
	return nil
}

// ReadTrace rebuilds the trace from the store's call and event logs.
func ReadTrace(ctx context.Context, st *store.Store) ([]TraceEntry, error) {
	calls, err := st.ReadCalls(ctx)
	if err != nil {
		return nil, err
	}
	events, err := st.ReadEvents(ctx, store.EventFilter{})
	if err != nil {
		return nil, err
	}

	trace := make([]TraceEntry, 0, len(calls))
	next := 0
	for _, c := range calls {
		entry := TraceEntry{
			Seq:       c.Seq,
			Op:        c.Op,
			Caller:    c.Caller,
			Timestamp: c.Timestamp,
			Args:      c.Args,
			Outcome:   c.Outcome,
			ErrorCode: c.ErrorCode,
			Result:    c.Result,
		}
		for next < len(events) && events[next].Seq == c.Seq {
			entry.Events = append(entry.Events, events[next])
			next++
		}
		trace = append(trace, entry)
	}
	return trace, nil
}

// errorCode extracts a ledger or engine error code.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return ""
}

func orSuccess(code string) string {
	if code == "" {
		return "success"
	}
	return code
}

// convertArgs turns YAML scalars into the engine's string arguments.
func convertArgs(args map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for key, val := range args {
		s, err := scalarString(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = s
	}
	return out, nil
}

// scalarString renders a YAML scalar. Nulls, floats and collections are
// rejected because call arguments are canonical strings.
func scalarString(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", fmt.Errorf("null values are forbidden in call arguments")
	case string:
		return expandAmount(v)
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return "", fmt.Errorf("floats are forbidden: %v", v)
	default:
		return "", fmt.Errorf("unsupported type %T", val)
	}
}

// normalize maps expected and actual values onto one comparable shape:
// scalars become strings, collections are normalized element-wise.
func normalize(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	default:
		s, err := scalarString(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return s
	}
}

var tokensPattern = regexp.MustCompile(`^(\d+)(?:\.(\d{1,18}))? tokens$`)

// expandAmount scales "<n> tokens" to base units. Other strings pass through.
func expandAmount(s string) (string, error) {
	m := tokensPattern.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}
	digits := strings.TrimLeft(m[1]+m[2]+strings.Repeat("0", ledger.Decimals-len(m[2])), "0")
	if digits == "" {
		return "0", nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return "", fmt.Errorf("amount %q: %w", s, err)
	}
	return v.Dec(), nil
}
