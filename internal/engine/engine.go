package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tokenledger/internal/access"
	"github.com/roach88/tokenledger/internal/audit"
	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/store"
	"github.com/roach88/tokenledger/internal/vesting"
)

// Call is one entry point delivered by the host.
type Call struct {
	Op     string
	Caller string
	Args   map[string]string

	// Time pins the call's unix time. Nil means the engine's TimeSource.
	Time *uint64
}

// Receipt reports what the engine recorded for a call.
type Receipt struct {
	Seq       int64
	FlowToken string
	CallID    string
	Timestamp int64
	Result    map[string]any
	Events    []audit.Event

	// ErrorCode is set when the ledger rejected the call.
	ErrorCode ledger.Code
}

// Engine serializes calls against one store.
//
// Thread-safety: Execute and Query may be called from any goroutine; a
// mutex admits one call at a time.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	clock    *Clock
	flowGen  FlowTokenGenerator
	now      TimeSource
	rateMode ledger.RateMode
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFlowTokens sets the flow token generator.
// Default: UUIDv7Generator.
func WithFlowTokens(g FlowTokenGenerator) Option {
	return func(e *Engine) {
		e.flowGen = g
	}
}

// WithTimeSource sets the time used for calls that do not pin one.
// Default: SystemTime.
func WithTimeSource(ts TimeSource) Option {
	return func(e *Engine) {
		e.now = ts
	}
}

// WithRateMode selects inline or explicit tier recomputation.
// Default: ledger.RateModeInline.
func WithRateMode(m ledger.RateMode) Option {
	return func(e *Engine) {
		e.rateMode = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over s. The clock resumes after the last recorded
// seq so a reopened store keeps a gapless, increasing log.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		store:    s,
		clock:    NewClockAt(last),
		flowGen:  UUIDv7Generator{},
		now:      SystemTime{},
		rateMode: ledger.RateModeInline,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs a mutating call as one atomic unit of work.
//
// A ledger rejection is recorded and returned as the *ledger.Error alongside
// a receipt carrying its code. Any other error means nothing was recorded.
func (e *Engine) Execute(ctx context.Context, c Call) (Receipt, error) {
	h, ok := handlers[c.Op]
	if !ok {
		return Receipt{}, NewUnknownOpError(c.Op)
	}
	if h.query {
		return Receipt{}, newWrongModeError(c.Op, true)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.timeFor(c)
	rec := audit.Call{
		Seq:       e.clock.Next(),
		FlowToken: e.flowGen.Generate(),
		Op:        c.Op,
		Caller:    c.Caller,
		Args:      copyArgs(c.Args),
		Timestamp: int64(now),
	}
	id, err := audit.CallID(rec.FlowToken, rec.Op, rec.Caller, rec.Args, rec.Seq, rec.Timestamp)
	if err != nil {
		return Receipt{}, fmt.Errorf("execute %s: %w", c.Op, err)
	}
	rec.ID = id

	log := e.logger.With("seq", rec.Seq, "op", rec.Op, "flow", rec.FlowToken)

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("execute %s: %w", c.Op, err)
	}
	sess := &session{Tx: tx}
	result, opErr := h.run(ctx, e.views(sess, c.Caller, now), newArgs(c.Args))

	if opErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback failed", "error", rbErr)
		}
		code := ledger.CodeOf(opErr)
		if code == "" {
			log.Error("call failed", "error", opErr)
			return Receipt{}, fmt.Errorf("execute %s: %w", c.Op, opErr)
		}
		rec.Outcome = audit.OutcomeError
		rec.ErrorCode = string(code)
		if err := e.recordFailure(ctx, rec); err != nil {
			return Receipt{}, err
		}
		log.Debug("call rejected", "code", code, "error", opErr)
		return Receipt{Seq: rec.Seq, FlowToken: rec.FlowToken, CallID: rec.ID, Timestamp: rec.Timestamp, ErrorCode: code}, opErr
	}

	rec.Outcome = audit.OutcomeOK
	rec.Result = result
	events, err := stampEvents(rec, sess.events)
	if err == nil {
		err = tx.WriteCall(ctx, rec)
	}
	if err == nil {
		err = tx.WriteEvents(ctx, events)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback failed", "error", rbErr)
		}
		log.Error("commit failed", "error", err)
		return Receipt{}, fmt.Errorf("execute %s: %w", c.Op, err)
	}

	log.Debug("call applied", "events", len(events))
	return Receipt{
		Seq:       rec.Seq,
		FlowToken: rec.FlowToken,
		CallID:    rec.ID,
		Timestamp: rec.Timestamp,
		Result:    result,
		Events:    events,
	}, nil
}

// Query runs a read-only op in a transaction that is always rolled back.
// Nothing is recorded and the clock does not advance.
func (e *Engine) Query(ctx context.Context, c Call) (map[string]any, error) {
	h, ok := handlers[c.Op]
	if !ok {
		return nil, NewUnknownOpError(c.Op)
	}
	if !h.query {
		return nil, newWrongModeError(c.Op, false)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var result map[string]any
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		result, err = h.run(ctx, e.views(&session{Tx: tx}, c.Caller, e.timeFor(c)), newArgs(c.Args))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) timeFor(c Call) uint64 {
	if c.Time != nil {
		return *c.Time
	}
	return e.now.Now()
}

// views composes the ledger entity for one call: token, vault and the access
// module, all over the same session.
func (e *Engine) views(sess *session, caller string, now uint64) env {
	roles := access.New(sess)
	token := ledger.New(sess, roles, roles, ledger.WithRateMode(e.rateMode))
	return env{
		token:  token,
		vault:  vesting.NewVault(sess, token, roles, roles, now),
		caller: ledger.Address(caller),
	}
}

func (e *Engine) recordFailure(ctx context.Context, rec audit.Call) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.Op, err)
	}
	if err := tx.WriteCall(ctx, rec); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Error("rollback failed", "seq", rec.Seq, "op", rec.Op, "flow", rec.FlowToken, "error", rbErr)
		}
		return fmt.Errorf("record %s: %w", rec.Op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record %s: %w", rec.Op, err)
	}
	return nil
}

// session is the per-call State: the store transaction plus an event buffer
// that is only persisted if the call succeeds.
type session struct {
	*store.Tx
	events []ledger.Event
}

// Emit buffers an event.
func (s *session) Emit(ev ledger.Event) {
	s.events = append(s.events, ev)
}

func stampEvents(rec audit.Call, buffered []ledger.Event) ([]audit.Event, error) {
	events := make([]audit.Event, 0, len(buffered))
	for i, ev := range buffered {
		id, err := audit.EventID(rec.FlowToken, ev.Kind, ev.Fields, rec.Seq, i)
		if err != nil {
			return nil, err
		}
		events = append(events, audit.Event{
			ID:        id,
			Seq:       rec.Seq,
			Index:     i,
			FlowToken: rec.FlowToken,
			Kind:      ev.Kind,
			Fields:    ev.Fields,
			Timestamp: rec.Timestamp,
		})
	}
	return events, nil
}

func copyArgs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
