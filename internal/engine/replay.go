package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/tokenledger/internal/audit"
	"github.com/roach88/tokenledger/internal/store"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Calls          int
	RecordedDigest string
	ReplayedDigest string
	Divergences    []Divergence
}

// Match reports whether the replay reproduced the log exactly.
func (r ReplayResult) Match() bool {
	return len(r.Divergences) == 0 && r.RecordedDigest == r.ReplayedDigest
}

// Divergence is a call whose replayed outcome differs from the log.
type Divergence struct {
	Seq  int64  `json:"seq"`
	Op   string `json:"op"`
	Want string `json:"recorded"`
	Got  string `json:"replayed"`
}

// Replay re-executes every recorded call, in seq order and at its recorded
// time, against a fresh in-memory store. Each call must reproduce its outcome
// and result, and the final state digest must match this store's.
//
// Replay takes the engine's write lock for its whole duration.
func (e *Engine) Replay(ctx context.Context) (ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	calls, err := e.store.ReadCalls(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	recorded, err := e.store.Digest(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	scratch, err := store.Open(":memory:")
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	defer scratch.Close()

	replayer, err := New(ctx, scratch,
		WithFlowTokens(NewSequentialGenerator("replay")),
		WithRateMode(e.rateMode),
		WithLogger(e.logger),
	)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	res := ReplayResult{Calls: len(calls), RecordedDigest: recorded}
	for _, c := range calls {
		at := uint64(c.Timestamp)
		receipt, err := replayer.Execute(ctx, Call{Op: c.Op, Caller: c.Caller, Args: c.Args, Time: &at})
		if err != nil && receipt.ErrorCode == "" {
			return res, fmt.Errorf("replay seq %d: %w", c.Seq, err)
		}
		want, err := outcomeKey(c.Outcome, c.ErrorCode, c.Result)
		if err != nil {
			return res, fmt.Errorf("replay seq %d: %w", c.Seq, err)
		}
		got, err := outcomeKey(outcomeOf(receipt), string(receipt.ErrorCode), receipt.Result)
		if err != nil {
			return res, fmt.Errorf("replay seq %d: %w", c.Seq, err)
		}
		if !bytes.Equal(want, got) {
			res.Divergences = append(res.Divergences, Divergence{Seq: c.Seq, Op: c.Op, Want: string(want), Got: string(got)})
			e.logger.Warn("replay diverged", "seq", c.Seq, "op", c.Op, "want", string(want), "got", string(got))
		}
	}

	res.ReplayedDigest, err = scratch.Digest(ctx)
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}
	return res, nil
}

// Err converts a mismatched replay into a RuntimeError.
func (r ReplayResult) Err() error {
	if r.Match() {
		return nil
	}
	if len(r.Divergences) > 0 {
		d := r.Divergences[0]
		return &RuntimeError{
			Code:    ErrCodeReplayDiverged,
			Message: fmt.Sprintf("recorded %s, replayed %s", d.Want, d.Got),
			Op:      d.Op,
			Seq:     d.Seq,
		}
	}
	return &RuntimeError{
		Code:    ErrCodeReplayDiverged,
		Message: fmt.Sprintf("state digest %s, replayed %s", r.RecordedDigest, r.ReplayedDigest),
	}
}

func outcomeOf(r Receipt) string {
	if r.ErrorCode != "" {
		return audit.OutcomeError
	}
	return audit.OutcomeOK
}

func outcomeKey(outcome, code string, result map[string]any) ([]byte, error) {
	if result == nil {
		result = map[string]any{}
	}
	return audit.MarshalCanonical(map[string]any{
		"outcome": outcome,
		"error":   code,
		"result":  result,
	})
}
