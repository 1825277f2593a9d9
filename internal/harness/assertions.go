package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tokenledger/internal/engine"
	"github.com/roach88/tokenledger/internal/store"
)

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx    context.Context
	Engine *engine.Engine
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertBalance:
		return assertAmount(actx, a, "balance-of", map[string]string{"account": a.Account}, "balance")
	case AssertTotalSupply:
		return assertAmount(actx, a, "total-supply", nil, "total_supply")
	case AssertReleased:
		return assertReleased(actx, a)
	case AssertEventCount:
		return assertEventCount(actx, a)
	case AssertEventOrder:
		return assertEventOrder(actx, a)
	case AssertSupplyInvariant:
		if err := actx.Engine.Store().CheckSupply(actx.Ctx); err != nil {
			return &AssertionError{Type: a.Type, Expected: "balances sum to total supply", Actual: err.Error()}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertAmount runs a query and compares one amount field.
func assertAmount(actx *AssertionContext, a Assertion, op string, args map[string]string, field string) error {
	want, err := expandAmount(a.Equals)
	if err != nil {
		return err
	}
	res, err := actx.Engine.Query(actx.Ctx, engine.Call{Op: op, Args: args})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if got := fmt.Sprint(res[field]); got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s", field, want),
			Actual:   fmt.Sprintf("%s %s", field, got),
		}
	}
	return nil
}

// assertReleased reads the released amount of one schedule.
func assertReleased(actx *AssertionContext, a Assertion) error {
	want, err := expandAmount(a.Equals)
	if err != nil {
		return err
	}
	res, err := actx.Engine.Query(actx.Ctx, engine.Call{
		Op:   "get-vesting-info",
		Args: map[string]string{"beneficiary": a.Beneficiary},
	})
	if err != nil {
		return fmt.Errorf("get-vesting-info: %w", err)
	}
	schedules, _ := res["schedules"].([]map[string]any)
	if a.Index >= uint64(len(schedules)) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("schedule %d of %s", a.Index, a.Beneficiary),
			Actual:   fmt.Sprintf("%d schedules", len(schedules)),
		}
	}
	if got := fmt.Sprint(schedules[a.Index]["released"]); got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("released %s", want),
			Actual:   fmt.Sprintf("released %s", got),
		}
	}
	return nil
}

// assertEventCount checks the number of events of one kind.
func assertEventCount(actx *AssertionContext, a Assertion) error {
	events, err := actx.Engine.Store().ReadEvents(actx.Ctx, store.EventFilter{Kind: a.Kind})
	if err != nil {
		return err
	}
	if len(events) != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s events", *a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d %s events", len(events), a.Kind),
		}
	}
	return nil
}

// assertEventOrder checks that kinds occur in the event log in the given
// order. Other events may occur in between.
func assertEventOrder(actx *AssertionContext, a Assertion) error {
	events, err := actx.Engine.Store().ReadEvents(actx.Ctx, store.EventFilter{})
	if err != nil {
		return err
	}
	matched := 0
	for _, ev := range events {
		if matched < len(a.Kinds) && ev.Kind == a.Kinds[matched] {
			matched++
		}
	}
	if matched < len(a.Kinds) {
		kinds := make([]string, len(events))
		for i, ev := range events {
			kinds[i] = strconv.FormatInt(ev.Seq, 10) + ":" + ev.Kind
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("events in order: %v", a.Kinds),
			Actual:   fmt.Sprintf("%s not found after %v; log: %v", a.Kinds[matched], a.Kinds[:matched], kinds),
		}
	}
	return nil
}
