package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/store"
)

// State is a ledger.State and vesting.State over an open transaction on a
// private in-memory store. Emitted events are collected in order.
type State struct {
	*store.Tx
	Events []ledger.Event
}

// NewState opens a store and begins a transaction rolled back at cleanup.
func NewState(t *testing.T) *State {
	t.Helper()
	tx, err := OpenStore(t).Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	return &State{Tx: tx}
}

// Emit records ev.
func (s *State) Emit(ev ledger.Event) {
	s.Events = append(s.Events, ev)
}

// Kinds lists the kinds of recorded events.
func (s *State) Kinds() []string {
	kinds := make([]string, len(s.Events))
	for i, ev := range s.Events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Reset forgets recorded events.
func (s *State) Reset() {
	s.Events = nil
}
